package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
)

// AuditReport compares the stored income and spend with the sums of the
// transactions actually present.
type AuditReport struct {
	UserID         string          `json:"userId"`
	Transactions   int             `json:"transactions"`
	StoredIncome   decimal.Decimal `json:"storedIncome"`
	StoredSpend    decimal.Decimal `json:"storedSpend"`
	ComputedIncome decimal.Decimal `json:"computedIncome"`
	ComputedSpend  decimal.Decimal `json:"computedSpend"`
	IncomeDrift    decimal.Decimal `json:"incomeDrift"`
	SpendDrift     decimal.Decimal `json:"spendDrift"`
	NegativeTotal  bool            `json:"negativeTotal"`
}

// Consistent reports whether the stored aggregates match the list.
func (r AuditReport) Consistent() bool {
	return r.IncomeDrift.IsZero() && r.SpendDrift.IsZero() && !r.NegativeTotal
}

// AuditLedger checks l without touching any store.
func AuditLedger(l core.Ledger) AuditReport {
	income, spend := core.SumTransactions(l.Transactions)
	return AuditReport{
		UserID:         l.UserID,
		Transactions:   len(l.Transactions),
		StoredIncome:   l.TotalIncome,
		StoredSpend:    l.TotalSpend,
		ComputedIncome: income,
		ComputedSpend:  spend,
		IncomeDrift:    l.TotalIncome.Sub(income),
		SpendDrift:     l.TotalSpend.Sub(spend),
		NegativeTotal:  l.TotalAmount.IsNegative(),
	}
}

// Audit loads the user's ledger and reports drift between the incrementally
// maintained totals and the transaction list. It never writes.
func (s *Service) Audit(ctx context.Context, userID string) (AuditReport, error) {
	l, err := s.GetAllInfo(ctx, userID)
	if err != nil {
		return AuditReport{}, err
	}
	return AuditLedger(l), nil
}
