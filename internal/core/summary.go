package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Totals are the three aggregates driven by transactions.
type Totals struct {
	Amount decimal.Decimal `json:"totalAmount"`
	Income decimal.Decimal `json:"totalIncome"`
	Spend  decimal.Decimal `json:"totalSpend"`
}

// ApplyTransaction returns the totals after adding a transaction.
// Expenses clamp the balance at zero; income and spend are never clamped.
func ApplyTransaction(t Totals, amount decimal.Decimal, typ TransactionType) (Totals, error) {
	switch typ {
	case Income:
		return Totals{
			Amount: t.Amount.Add(amount),
			Income: t.Income.Add(amount),
			Spend:  t.Spend,
		}, nil
	case Expense:
		return Totals{
			Amount: decimal.Max(decimal.Zero, t.Amount.Sub(amount)),
			Income: t.Income,
			Spend:  t.Spend.Add(amount),
		}, nil
	default:
		return t, fmt.Errorf("%w: %q", ErrInvalidTransactionType, string(typ))
	}
}

// RevertTransaction is the inverse of ApplyTransaction. It does not clamp:
// the balance may go negative while an update is being reconciled.
func RevertTransaction(t Totals, amount decimal.Decimal, typ TransactionType) (Totals, error) {
	switch typ {
	case Income:
		return Totals{
			Amount: t.Amount.Sub(amount),
			Income: t.Income.Sub(amount),
			Spend:  t.Spend,
		}, nil
	case Expense:
		return Totals{
			Amount: t.Amount.Add(amount),
			Income: t.Income,
			Spend:  t.Spend.Sub(amount),
		}, nil
	default:
		return t, fmt.Errorf("%w: %q", ErrInvalidTransactionType, string(typ))
	}
}

// SumTransactions recomputes income and spend from a transaction list.
func SumTransactions(txs []Transaction) (income, spend decimal.Decimal) {
	income, spend = decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			income = income.Add(tx.Value)
		case Expense:
			spend = spend.Add(tx.Value)
		}
	}
	return income, spend
}
