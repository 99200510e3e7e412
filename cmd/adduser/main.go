// Command adduser creates a user or resets the password of an existing one.
//
//	adduser -email someone@example.com
//
// The password is read from the terminal without echo, or from the first
// line of stdin when stdin is not a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	"golang.org/x/term"

	"despesas/internal/auth"
	"despesas/internal/backend"
	"despesas/internal/cli"
	"despesas/internal/config"
	applog "despesas/internal/log"
)

const minPasswordLength = 6

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "email of the user to create or reset")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if addr, err := mail.ParseAddress(*email); err != nil || addr.Address != *email {
		fmt.Fprintln(stderr, "adduser: -email must be a valid email address")
		fs.Usage()
		return 2
	}

	logger := applog.New(applog.Config{Level: slog.LevelWarn, Output: stderr})
	cli.LoadEnvFile(logger)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "adduser: %v\n", err)
		return 1
	}

	password, err := readPassword(stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: read password: %v\n", err)
		return 1
	}
	if len([]rune(password)) < minPasswordLength {
		fmt.Fprintf(stderr, "adduser: password must have at least %d characters\n", minPasswordLength)
		return 1
	}

	created, err := upsert(context.Background(), logger, cfg, *email, password)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: %v\n", err)
		return 1
	}
	if created {
		fmt.Fprintf(stdout, "User %s created\n", *email)
	} else {
		fmt.Fprintf(stdout, "Password of %s reset\n", *email)
	}
	return 0
}

func upsert(ctx context.Context, logger *applog.Logger, cfg *config.Config, email, password string) (bool, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return false, err
	}
	bcfg.AMQPURL = ""

	res, err := backend.NewFactory(cli.Slog(logger)).CreateBackend(ctx, bcfg)
	if err != nil {
		return false, err
	}
	created, err := auth.UpsertUser(ctx, res.Users, email, password)
	return created, errors.Join(err, res.Close())
}

// readPassword prompts on the terminal when stdin is one.
func readPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(stdout, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stdout)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
