//go:build integration

package google

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_ExportLedger(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	cfg := Config{
		SpreadsheetID:      spreadsheetID,
		ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		ServiceAccountFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
		SheetPrefix:        "Integration",
	}
	if cfg.ServiceAccountJSON == "" && cfg.ServiceAccountFile == "" {
		t.Skip("service account not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exporter, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l := core.NewLedger("integration-test", time.Now())
	l.TotalAmount = decimal.RequireFromString("12.34")
	l.Transactions = []core.Transaction{{
		ID: "it-1", Value: decimal.RequireFromString("1.50"), Type: core.Expense,
		Date: core.NewDate(2025, 1, 1), Description: "integration",
	}}

	ref, err := exporter.ExportLedger(ctx, l)
	if err != nil {
		t.Fatalf("ExportLedger: %v", err)
	}
	if !strings.Contains(ref, "integration-test") {
		t.Errorf("unexpected ref %q", ref)
	}
}
