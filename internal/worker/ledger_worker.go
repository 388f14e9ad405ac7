// Package worker consumes ledger change events: it audits the changed
// ledger and exports a report of it to Google Sheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moneyflow/internal/amqp"
	"moneyflow/internal/cache"
	"moneyflow/internal/core"
	"moneyflow/internal/ledger"
	"moneyflow/internal/log"
	"moneyflow/internal/sheets"
)

const (
	seenCacheSize = 10000
	seenCacheTTL  = time.Hour
)

// LedgerSource loads the current state of a user's ledger.
type LedgerSource interface {
	GetAllInfo(ctx context.Context, userID string) (core.Ledger, error)
}

// LedgerWorker handles ledger change events. Events carry no ledger data, so
// every event reloads the record and works on its current state.
type LedgerWorker struct {
	source       LedgerSource
	exporter     sheets.LedgerExporter
	auditOnEvent bool
	seen         *cache.LRUCache[time.Time]
	logger       *log.Logger
}

// NewLedgerWorker creates a worker. exporter may be nil to disable report
// export.
func NewLedgerWorker(source LedgerSource, exporter sheets.LedgerExporter, auditOnEvent bool, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerWorker{
		source:       source,
		exporter:     exporter,
		auditOnEvent: auditOnEvent,
		seen:         cache.NewLRUCache[time.Time](seenCacheSize, seenCacheTTL),
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// SeenCache exposes the processed-event cache so it can be swept.
func (w *LedgerWorker) SeenCache() cache.Cleaner {
	return w.seen
}

// HandleLedgerChanged processes a single ledger change message from AMQP.
// An error requeues the message; events for ledgers that no longer exist
// are dropped.
func (w *LedgerWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	logger := w.logger.With(
		log.FieldEventID, msg.EventID,
		log.FieldUserID, msg.UserID,
		log.FieldOperation, msg.Operation)

	// A newer event for the same user already exported the current state.
	if last, ok := w.seen.Get(msg.UserID); ok && msg.Timestamp.Before(last) {
		logger.DebugContext(ctx, "Skipping stale ledger change", "processed_up_to", last)
		return nil
	}

	logger.InfoContext(ctx, "Processing ledger change")

	l, err := w.source.GetAllInfo(ctx, msg.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		logger.WarnContext(ctx, "Ledger no longer exists, dropping change")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	if w.auditOnEvent {
		w.audit(ctx, logger, l)
	}

	if w.exporter != nil {
		ref, err := w.exporter.ExportLedger(ctx, l)
		if err != nil {
			return fmt.Errorf("export ledger to sheets: %w", err)
		}
		logger.InfoContext(ctx, "Exported ledger report",
			log.FieldSheetsRef, ref,
			"transactions", len(l.Transactions))
	}

	w.seen.Set(msg.UserID, msg.Timestamp)
	return nil
}

func (w *LedgerWorker) audit(ctx context.Context, logger *log.Logger, l core.Ledger) {
	report := ledger.AuditLedger(l)
	if report.Consistent() {
		logger.DebugContext(ctx, "Ledger audit passed", "transactions", report.Transactions)
		return
	}
	logger.WarnContext(ctx, "Ledger totals drifted from transactions",
		"income_drift", report.IncomeDrift.String(),
		"spend_drift", report.SpendDrift.String(),
		"negative_total", report.NegativeTotal,
		log.FieldTotalAmount, core.FormatAmount(l.TotalAmount))
}

// Resync audits and exports the given users outside the event flow, for
// example after the worker was down. Failures are logged and counted.
func (w *LedgerWorker) Resync(ctx context.Context, userIDs []string) (synced, failed int) {
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		msg := &amqp.LedgerChangedMessage{UserID: userID, Operation: log.OpExport, Timestamp: time.Now().UTC()}
		if err := w.HandleLedgerChanged(ctx, msg); err != nil {
			w.logger.ErrorContext(ctx, "Failed to resync ledger",
				log.FieldUserID, userID,
				log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Resync completed",
		"total", len(userIDs),
		"synced", synced,
		"errors", failed)
	return synced, failed
}
