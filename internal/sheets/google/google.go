package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"despesas/internal/core"
	ports "despesas/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the first row written to the mirrored sheet.
var Header = []any{"ID", "Título", "Valor", "Categoria", "Data", "Criado em", "Atualizado em"}

const lastColumn = "G"

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ExpenseMirror = (*Client)(nil)

// New creates a Sheets client authenticated with service account
// credentials. Inline JSON takes precedence over the credentials file;
// GOOGLE_APPLICATION_CREDENTIALS is the last fallback.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Despesas"
	}

	creds, err := credentialsJSON(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", sheetName)

	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: sheetName}, nil
}

func credentialsJSON(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ReplaceExpenses implements ports.ExpenseMirror. The sheet is cleared and
// rewritten, so repeated calls with the same list leave the same content.
func (c *Client) ReplaceExpenses(ctx context.Context, expenses []core.Expense) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:%s", quoteSheet(c.sheetName), lastColumn)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := Rows(expenses)
	writeRange := fmt.Sprintf("%s!A1:%s%d", quoteSheet(c.sheetName), lastColumn, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", writeRange, err)
	}

	slog.InfoContext(ctx, "Mirrored expenses to Google Sheets",
		"sheet", c.sheetName,
		"rows", len(expenses))
	return len(expenses), nil
}

// Rows renders the header followed by one row per expense.
func Rows(expenses []core.Expense) [][]any {
	out := make([][]any, 0, len(expenses)+1)
	out = append(out, Header)
	for _, e := range expenses {
		out = append(out, []any{
			e.ID,
			e.Title,
			e.Amount.StringFixed(core.AmountPlaces),
			string(e.Category),
			e.Date.String(),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// quoteSheet wraps a sheet name in single quotes for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
