package core

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseTransactionType(t *testing.T) {
	cases := []struct {
		in  string
		out TransactionType
		ok  bool
	}{
		{"income", Income, true},
		{"INCOME", Income, true},
		{"expense", Expense, true},
		{"expence", Expense, true},
		{" expense ", Expense, true},
		{"transfer", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseTransactionType(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.out, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseScope(t *testing.T) {
	for _, s := range []string{"default", "this-month", "next-month"} {
		if _, err := ParseScope(s); err != nil {
			t.Fatalf("%q expected ok, got %v", s, err)
		}
	}
	if _, err := ParseScope("last-month"); err != ErrInvalidScope {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{ID: "t1", Value: decimal.NewFromInt(10), Type: Expense, Date: NewDate(2025, 1, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	zero := good
	zero.Value = decimal.Zero
	if err := zero.Validate(); err != nil {
		t.Fatalf("zero value should be allowed, got %v", err)
	}

	bads := []Transaction{
		{ID: "", Value: decimal.NewFromInt(1), Type: Income},
		{ID: "a", Value: decimal.NewFromInt(-1), Type: Income},
		{ID: "a", Value: decimal.NewFromInt(1), Type: "gift"},
		{ID: "a", Value: decimal.NewFromInt(1), Type: Income, Description: strings.Repeat("x", 201)},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestTransactionJSON(t *testing.T) {
	body := `{"id":"t1","value":12.5,"type":"expence","date":"2025-03-04","category":"food","description":"lunch"}`
	var tx Transaction
	if err := json.Unmarshal([]byte(body), &tx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tx.Type != Expense {
		t.Errorf("Type = %q, want expense", tx.Type)
	}
	if !tx.Value.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Value = %s, want 12.5", tx.Value)
	}
	if tx.Date.Year() != 2025 || tx.Date.Month() != time.March || tx.Date.Day() != 4 {
		t.Errorf("Date = %v", tx.Date)
	}

	if err := json.Unmarshal([]byte(`{"id":"t1","type":"loan"}`), &tx); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestNewLedgerAndClone(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLedger("u1", now)
	if !l.TotalAmount.IsZero() || !l.TotalIncome.IsZero() || !l.TotalSpend.IsZero() {
		t.Fatal("new ledger must have zero totals")
	}
	if l.Transactions == nil || len(l.Transactions) != 0 {
		t.Fatal("new ledger must have an empty, non-nil transaction list")
	}

	l.Transactions = append(l.Transactions, Transaction{ID: "a"})
	c := l.Clone()
	c.Transactions[0].ID = "b"
	if l.Transactions[0].ID != "a" {
		t.Fatal("Clone must not share the transaction slice")
	}
	if c.FindTransaction("b") != 0 || c.FindTransaction("a") != -1 {
		t.Fatal("FindTransaction returned wrong index")
	}
}
