package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	ScopeDefault   Scope = "default"
	ScopeThisMonth Scope = "this-month"
	ScopeNextMonth Scope = "next-month"
)

type (
	TransactionType string

	// Scope selects one of the three essentials collections.
	Scope string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID          string          `json:"id"`
		Value       decimal.Decimal `json:"value"`
		Type        TransactionType `json:"type"`
		Date        Date            `json:"date"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
	}

	EssentialItem struct {
		ID      string          `json:"id"`
		Title   string          `json:"title"`
		Amount  decimal.Decimal `json:"amount"`
		Checked bool            `json:"checked"`
	}

	// Ledger is the per-user aggregate record.
	Ledger struct {
		UserID               string          `json:"userId"`
		TotalAmount          decimal.Decimal `json:"totalAmount"`
		TotalIncome          decimal.Decimal `json:"totalIncome"`
		TotalSpend           decimal.Decimal `json:"totalSpend"`
		NextMonthTotalAmount decimal.Decimal `json:"nextMonthTotalAmount"`
		SavePercent          decimal.Decimal `json:"savePercent"`
		DefaultEssentials    []EssentialItem `json:"defaultEssentials"`
		Essentials           []EssentialItem `json:"essentials"`
		NextMonthEssentials  []EssentialItem `json:"nextMonthEssentials"`
		Transactions         []Transaction   `json:"transactions"` // newest first
		CreatedAt            time.Time       `json:"createdAt"`
		UpdatedAt            time.Time       `json:"updatedAt"`
	}
)

var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidScope           = errors.New("invalid essentials scope")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyID                = errors.New("empty id")
	ErrDescriptionTooLong     = errors.New("description too long (max 200 characters)")
)

// ParseTransactionType normalises a wire value. The legacy "expence"
// spelling is still sent by older clients.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense", "expence":
		return Expense, nil
	default:
		return "", ErrInvalidTransactionType
	}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t *TransactionType) UnmarshalText(b []byte) error {
	v, err := ParseTransactionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	if !sc.Valid() {
		return "", ErrInvalidScope
	}
	return sc, nil
}

func (s Scope) Valid() bool {
	switch s {
	case ScopeDefault, ScopeThisMonth, ScopeNextMonth:
		return true
	default:
		return false
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts a plain calendar date or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t.UTC()}, nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.Value.IsNegative() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidTransactionType
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (e EssentialItem) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// NewLedger returns the record created for a user at registration:
// zero totals, empty collections.
func NewLedger(userID string, now time.Time) Ledger {
	return Ledger{
		UserID:              userID,
		DefaultEssentials:   []EssentialItem{},
		Essentials:          []EssentialItem{},
		NextMonthEssentials: []EssentialItem{},
		Transactions:        []Transaction{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Totals returns the three transaction-driven aggregates.
func (l Ledger) Totals() Totals {
	return Totals{Amount: l.TotalAmount, Income: l.TotalIncome, Spend: l.TotalSpend}
}

func (l *Ledger) SetTotals(t Totals) {
	l.TotalAmount = t.Amount
	l.TotalIncome = t.Income
	l.TotalSpend = t.Spend
}

// Clone returns a copy whose slices can be modified independently.
func (l Ledger) Clone() Ledger {
	out := l
	out.DefaultEssentials = append([]EssentialItem{}, l.DefaultEssentials...)
	out.Essentials = append([]EssentialItem{}, l.Essentials...)
	out.NextMonthEssentials = append([]EssentialItem{}, l.NextMonthEssentials...)
	out.Transactions = append([]Transaction{}, l.Transactions...)
	return out
}

// FindTransaction returns the index of the transaction with the given id, or -1.
func (l Ledger) FindTransaction(id string) int {
	for i, tx := range l.Transactions {
		if tx.ID == id {
			return i
		}
	}
	return -1
}
