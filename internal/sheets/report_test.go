package sheets

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

func TestBuildReport(t *testing.T) {
	l := core.NewLedger("u1", time.Now())
	l.TotalAmount = decimal.NewFromInt(80)
	l.TotalIncome = decimal.NewFromInt(100)
	l.TotalSpend = decimal.NewFromInt(20)
	l.Transactions = []core.Transaction{
		{ID: "e1", Value: decimal.NewFromInt(20), Type: core.Expense, Date: core.NewDate(2025, 2, 3), Category: "food", Description: "lunch"},
		{ID: "i1", Value: decimal.NewFromInt(100), Type: core.Income, Date: core.NewDate(2025, 2, 1)},
	}
	l.NextMonthEssentials = []core.EssentialItem{{ID: "rent", Title: "Rent", Amount: decimal.NewFromInt(500), Checked: true}}

	rows := BuildReport(l, time.Date(2025, 2, 4, 10, 0, 0, 0, time.UTC))

	if rows[0][1] != "u1" || rows[1][1] != "2025-02-04T10:00:00Z" {
		t.Fatalf("unexpected header rows: %v %v", rows[0], rows[1])
	}
	if rows[3][1] != "80.00" || rows[5][1] != "20.00" {
		t.Fatalf("unexpected summary: %v %v", rows[3], rows[5])
	}

	txStart := 10
	if rows[txStart-1][0] != "Date" {
		t.Fatalf("expected transaction header at %d, got %v", txStart-1, rows[txStart-1])
	}
	if got := rows[txStart]; got[0] != "2025-02-03" || got[1] != "expense" || got[4] != "-20.00" {
		t.Fatalf("expense row = %v", got)
	}
	if got := rows[txStart+1]; got[4] != "100.00" {
		t.Fatalf("income row = %v", got)
	}

	last := rows[len(rows)-1]
	if last[0] != "next-month" || last[1] != "rent" || last[3] != "500.00" || last[4] != true {
		t.Fatalf("essentials row = %v", last)
	}
}

func TestSheetName(t *testing.T) {
	if got := SheetName("Ledger", "a/b:c"); got != "Ledger a_b_c" {
		t.Fatalf("SheetName() = %q", got)
	}
	long := SheetName("Ledger", strings.Repeat("x", 200))
	if len([]rune(long)) != 100 {
		t.Fatalf("SheetName() length = %d", len([]rune(long)))
	}
}
