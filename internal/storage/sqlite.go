package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"moneyflow/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore keeps ledger records in three tables (ledgers, transactions,
// essentials). Every write runs in a single SQL transaction.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between users.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (core.Ledger, error) {
	var (
		l                                 core.Ledger
		amount, income, spend, next, save string
		createdAt, updatedAt              string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, total_amount, total_income, total_spend, next_month_total_amount,
		       save_percent, created_at, updated_at
		FROM ledgers WHERE user_id = ?`, userID).
		Scan(&l.UserID, &amount, &income, &spend, &next, &save, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Ledger{}, ErrNotFound
	}
	if err != nil {
		return core.Ledger{}, fmt.Errorf("get ledger: %w", err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&l.TotalAmount, amount},
		{&l.TotalIncome, income},
		{&l.TotalSpend, spend},
		{&l.NextMonthTotalAmount, next},
		{&l.SavePercent, save},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return core.Ledger{}, fmt.Errorf("parse stored amount %q: %w", f.src, err)
		}
	}
	l.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	l.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	if l.Transactions, err = s.listTransactions(ctx, userID); err != nil {
		return core.Ledger{}, err
	}

	l.DefaultEssentials = []core.EssentialItem{}
	l.Essentials = []core.EssentialItem{}
	l.NextMonthEssentials = []core.EssentialItem{}
	if err := s.loadEssentials(ctx, &l); err != nil {
		return core.Ledger{}, err
	}

	return l, nil
}

func (s *SQLiteStore) listTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, type, date, category, description
		FROM transactions WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			tx          core.Transaction
			value, date string
			typ         string
		)
		if err := rows.Scan(&tx.ID, &value, &typ, &date, &tx.Category, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parse transaction %s value: %w", tx.ID, err)
		}
		tx.Type = core.TransactionType(typ)
		if date != "" {
			if tx.Date, err = core.ParseDate(date); err != nil {
				return nil, fmt.Errorf("parse transaction %s date: %w", tx.ID, err)
			}
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *SQLiteStore) loadEssentials(ctx context.Context, l *core.Ledger) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, id, title, amount, checked
		FROM essentials WHERE user_id = ? ORDER BY scope, position`, l.UserID)
	if err != nil {
		return fmt.Errorf("list essentials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item          core.EssentialItem
			scope, amount string
		)
		if err := rows.Scan(&scope, &item.ID, &item.Title, &amount, &item.Checked); err != nil {
			return fmt.Errorf("scan essential: %w", err)
		}
		if item.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("parse essential %s amount: %w", item.ID, err)
		}
		switch core.Scope(scope) {
		case core.ScopeDefault:
			l.DefaultEssentials = append(l.DefaultEssentials, item)
		case core.ScopeThisMonth:
			l.Essentials = append(l.Essentials, item)
		case core.ScopeNextMonth:
			l.NextMonthEssentials = append(l.NextMonthEssentials, item)
		default:
			slog.WarnContext(ctx, "Skipping essential with unknown scope", "user_id", l.UserID, "scope", scope)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) Put(ctx context.Context, l core.Ledger) error {
	now := s.now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledgers (user_id, total_amount, total_income, total_spend,
			                     next_month_total_amount, save_percent, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				total_amount = excluded.total_amount,
				total_income = excluded.total_income,
				total_spend = excluded.total_spend,
				next_month_total_amount = excluded.next_month_total_amount,
				save_percent = excluded.save_percent,
				updated_at = excluded.updated_at`,
			l.UserID, l.TotalAmount.String(), l.TotalIncome.String(), l.TotalSpend.String(),
			l.NextMonthTotalAmount.String(), l.SavePercent.String(),
			l.CreatedAt.Format(timeLayout), now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("upsert ledger: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, l.UserID); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		for i, t := range l.Transactions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (user_id, id, position, value, type, date, category, description)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				l.UserID, t.ID, i, t.Value.String(), string(t.Type), formatDate(t.Date), t.Category, t.Description)
			if err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.ID, err)
			}
		}

		for _, si := range ScopeItems(l) {
			if err := replaceEssentials(ctx, tx, l.UserID, si.Scope, si.Items); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Patch(ctx context.Context, userID string, p Patch) error {
	now := s.now().UTC().Format(timeLayout)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledgers (user_id, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING`, userID, now, now)
		if err != nil {
			return fmt.Errorf("ensure ledger: %w", err)
		}

		// Column names come from this fixed list, never from input.
		for _, f := range []struct {
			column string
			value  *decimal.Decimal
		}{
			{"total_amount", p.TotalAmount},
			{"next_month_total_amount", p.NextMonthTotalAmount},
			{"save_percent", p.SavePercent},
		} {
			if f.value == nil {
				continue
			}
			q := fmt.Sprintf(`UPDATE ledgers SET %s = ?, updated_at = ? WHERE user_id = ?`, f.column)
			if _, err := tx.ExecContext(ctx, q, f.value.String(), now, userID); err != nil {
				return fmt.Errorf("update %s: %w", f.column, err)
			}
		}

		for _, f := range []struct {
			scope core.Scope
			items *[]core.EssentialItem
		}{
			{core.ScopeDefault, p.DefaultEssentials},
			{core.ScopeThisMonth, p.Essentials},
			{core.ScopeNextMonth, p.NextMonthEssentials},
		} {
			if f.items == nil {
				continue
			}
			if err := replaceEssentials(ctx, tx, userID, f.scope, *f.items); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE ledgers SET updated_at = ? WHERE user_id = ?`, now, userID); err != nil {
				return fmt.Errorf("touch ledger: %w", err)
			}
		}
		return nil
	})
}

func replaceEssentials(ctx context.Context, tx *sql.Tx, userID string, scope core.Scope, items []core.EssentialItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM essentials WHERE user_id = ? AND scope = ?`, userID, string(scope)); err != nil {
		return fmt.Errorf("clear %s essentials: %w", scope, err)
	}
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO essentials (user_id, scope, id, position, title, amount, checked)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, string(scope), item.ID, i, item.Title, item.Amount.String(), item.Checked)
		if err != nil {
			return fmt.Errorf("insert %s essential %s: %w", scope, item.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.UTC().Format(timeLayout)
}
