// Package sheets builds tabular ledger reports and defines the exporter
// port that ships them to a spreadsheet.
package sheets

import (
	"strings"
	"time"

	"moneyflow/internal/core"
)

// TransactionHeader is the header row of the transaction table.
var TransactionHeader = []any{"Date", "Type", "Category", "Description", "Value"}

// EssentialsHeader is the header row of the essentials table.
var EssentialsHeader = []any{"Scope", "ID", "Title", "Amount", "Checked"}

// BuildReport lays a ledger out as spreadsheet rows: a summary block, the
// transactions newest first, then the three essentials collections.
// Expense values are negative so a column sum gives the net movement.
func BuildReport(l core.Ledger, generatedAt time.Time) [][]any {
	rows := [][]any{
		{"Ledger", l.UserID},
		{"Generated", generatedAt.UTC().Format(time.RFC3339)},
		{},
		{"Total amount", core.FormatAmount(l.TotalAmount)},
		{"Total income", core.FormatAmount(l.TotalIncome)},
		{"Total spend", core.FormatAmount(l.TotalSpend)},
		{"Next month total", core.FormatAmount(l.NextMonthTotalAmount)},
		{"Save percent", core.FormatAmount(l.SavePercent)},
		{},
		TransactionHeader,
	}

	for _, tx := range l.Transactions {
		rows = append(rows, []any{
			formatDate(tx.Date),
			string(tx.Type),
			tx.Category,
			tx.Description,
			core.FormatAmount(tx.SignedValue()),
		})
	}

	rows = append(rows, []any{}, EssentialsHeader)
	for _, group := range []struct {
		scope core.Scope
		items []core.EssentialItem
	}{
		{core.ScopeDefault, l.DefaultEssentials},
		{core.ScopeThisMonth, l.Essentials},
		{core.ScopeNextMonth, l.NextMonthEssentials},
	} {
		for _, it := range group.items {
			rows = append(rows, []any{string(group.scope), it.ID, it.Title, core.FormatAmount(it.Amount), it.Checked})
		}
	}
	return rows
}

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

// SheetName derives a per-user tab title. Sheets forbids some characters in
// titles and caps them at 100 runes.
func SheetName(prefix, userID string) string {
	name := strings.TrimSpace(prefix + " " + userID)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '*', '?', '/', '\\', ':':
			return '_'
		}
		return r
	}, name)
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}
