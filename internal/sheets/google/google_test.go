package google

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"despesas/internal/core"
)

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"})
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentialsJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(file, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	tests := []struct {
		name    string
		cfg     Config
		envFile string
		want    string
		wantErr string
	}{
		{
			name: "inline wins over file",
			cfg:  Config{CredentialsJSON: `{"from":"inline"}`, CredentialsFile: file},
			want: `{"from":"inline"}`,
		},
		{
			name: "file",
			cfg:  Config{CredentialsFile: file},
			want: `{"from":"file"}`,
		},
		{
			name:    "application credentials fallback",
			envFile: file,
			want:    `{"from":"file"}`,
		},
		{
			name:    "unreadable file",
			cfg:     Config{CredentialsFile: filepath.Join(dir, "missing.json")},
			wantErr: "read service account file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", tt.envFile)
			got, err := credentialsJSON(context.Background(), tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("credentials = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRows(t *testing.T) {
	ts := time.Date(2025, 4, 24, 13, 5, 0, 0, time.UTC)
	rows := Rows([]core.Expense{
		{
			ID:        "550e8400-e29b-41d4-a716-446655440002",
			Title:     "Posto de Gasolina Shell",
			Amount:    decimal.RequireFromString("89.9"),
			Category:  core.Transporte,
			Date:      core.NewDate(2025, 4, 24),
			CreatedAt: ts,
			UpdatedAt: ts,
		},
	})

	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[0][0] != "ID" || len(rows[0]) != len(rows[1]) {
		t.Errorf("unexpected header %v", rows[0])
	}
	want := []any{
		"550e8400-e29b-41d4-a716-446655440002",
		"Posto de Gasolina Shell",
		"89.90",
		"TRANSPORTE",
		"2025-04-24",
		"2025-04-24T13:05:00Z",
		"2025-04-24T13:05:00Z",
	}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, rows[1][i], want[i])
		}
	}
}

func TestRows_EmptyListKeepsHeader(t *testing.T) {
	rows := Rows(nil)
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Despesas":     "'Despesas'",
		"2025 Gastos":  "'2025 Gastos'",
		"Conta d'água": "'Conta d''água'",
	}
	for in, want := range tests {
		if got := quoteSheet(in); got != want {
			t.Errorf("quoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReplaceExpenses_Uninitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Despesas"}
	if _, err := c.ReplaceExpenses(context.Background(), nil); err == nil {
		t.Fatal("expected error when service is nil")
	}
}
