package sheets

import (
	"context"

	"moneyflow/internal/core"
)

// LedgerExporter writes a ledger report to an external destination and
// returns a reference to where it landed.
type LedgerExporter interface {
	ExportLedger(ctx context.Context, l core.Ledger) (ref string, err error)
}
