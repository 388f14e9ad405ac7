package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"moneyflow/internal/core"
)

// ledgerDocument is the stored shape of a ledger. Amounts are Decimal128 so
// the server never rounds them through a double.
type ledgerDocument struct {
	UserID               string                `bson:"userId"`
	TotalAmount          primitive.Decimal128  `bson:"totalAmount"`
	TotalIncome          primitive.Decimal128  `bson:"totalIncome"`
	TotalSpend           primitive.Decimal128  `bson:"totalSpend"`
	NextMonthTotalAmount primitive.Decimal128  `bson:"nextMonthTotalAmount"`
	SavePercent          primitive.Decimal128  `bson:"savePercent"`
	DefaultEssentials    []essentialDocument   `bson:"defaultEssentialsArray"`
	Essentials           []essentialDocument   `bson:"essentialsArray"`
	NextMonthEssentials  []essentialDocument   `bson:"nextMonthEssentialsArray"`
	Transactions         []transactionDocument `bson:"transactions"`
	CreatedAt            time.Time             `bson:"createdAt"`
	UpdatedAt            time.Time             `bson:"updatedAt"`
}

type transactionDocument struct {
	ID          string               `bson:"id"`
	Value       primitive.Decimal128 `bson:"value"`
	Type        string               `bson:"transactionType"`
	Date        time.Time            `bson:"date"`
	Category    string               `bson:"category"`
	Description string               `bson:"description"`
}

type essentialDocument struct {
	ID      string               `bson:"id"`
	Title   string               `bson:"title"`
	Amount  primitive.Decimal128 `bson:"amount"`
	Checked bool                 `bson:"checked"`
}

// encoder converts amounts to Decimal128 and keeps the first failure, so a
// whole document can be built before checking for errors.
type encoder struct {
	err error
}

func (e *encoder) amount(d decimal.Decimal) primitive.Decimal128 {
	if e.err != nil {
		return primitive.Decimal128{}
	}
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		e.err = fmt.Errorf("amount %s not representable as Decimal128: %w", d, err)
	}
	return v
}

func (e *encoder) essentials(items []core.EssentialItem) []essentialDocument {
	out := make([]essentialDocument, 0, len(items))
	for _, it := range items {
		out = append(out, essentialDocument{
			ID:      it.ID,
			Title:   it.Title,
			Amount:  e.amount(it.Amount),
			Checked: it.Checked,
		})
	}
	return out
}

func (e *encoder) ledger(l core.Ledger) ledgerDocument {
	txs := make([]transactionDocument, 0, len(l.Transactions))
	for _, tx := range l.Transactions {
		txs = append(txs, transactionDocument{
			ID:          tx.ID,
			Value:       e.amount(tx.Value),
			Type:        string(tx.Type),
			Date:        tx.Date.Time,
			Category:    tx.Category,
			Description: tx.Description,
		})
	}
	return ledgerDocument{
		UserID:               l.UserID,
		TotalAmount:          e.amount(l.TotalAmount),
		TotalIncome:          e.amount(l.TotalIncome),
		TotalSpend:           e.amount(l.TotalSpend),
		NextMonthTotalAmount: e.amount(l.NextMonthTotalAmount),
		SavePercent:          e.amount(l.SavePercent),
		DefaultEssentials:    e.essentials(l.DefaultEssentials),
		Essentials:           e.essentials(l.Essentials),
		NextMonthEssentials:  e.essentials(l.NextMonthEssentials),
		Transactions:         txs,
		CreatedAt:            l.CreatedAt,
		UpdatedAt:            l.UpdatedAt,
	}
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	if v == (primitive.Decimal128{}) {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String())
}

func fromEssentialDocuments(docs []essentialDocument) ([]core.EssentialItem, error) {
	out := make([]core.EssentialItem, 0, len(docs))
	for _, d := range docs {
		amount, err := fromDecimal128(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("essential %s amount: %w", d.ID, err)
		}
		out = append(out, core.EssentialItem{ID: d.ID, Title: d.Title, Amount: amount, Checked: d.Checked})
	}
	return out, nil
}

func fromDocument(d ledgerDocument) (core.Ledger, error) {
	l := core.Ledger{UserID: d.UserID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}

	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&l.TotalAmount, d.TotalAmount},
		{&l.TotalIncome, d.TotalIncome},
		{&l.TotalSpend, d.TotalSpend},
		{&l.NextMonthTotalAmount, d.NextMonthTotalAmount},
		{&l.SavePercent, d.SavePercent},
	} {
		if *f.dst, err = fromDecimal128(f.src); err != nil {
			return core.Ledger{}, fmt.Errorf("ledger %s totals: %w", d.UserID, err)
		}
	}

	if l.DefaultEssentials, err = fromEssentialDocuments(d.DefaultEssentials); err != nil {
		return core.Ledger{}, err
	}
	if l.Essentials, err = fromEssentialDocuments(d.Essentials); err != nil {
		return core.Ledger{}, err
	}
	if l.NextMonthEssentials, err = fromEssentialDocuments(d.NextMonthEssentials); err != nil {
		return core.Ledger{}, err
	}

	l.Transactions = make([]core.Transaction, 0, len(d.Transactions))
	for _, td := range d.Transactions {
		value, err := fromDecimal128(td.Value)
		if err != nil {
			return core.Ledger{}, fmt.Errorf("transaction %s value: %w", td.ID, err)
		}
		typ, err := core.ParseTransactionType(td.Type)
		if err != nil {
			return core.Ledger{}, fmt.Errorf("transaction %s: %w", td.ID, err)
		}
		l.Transactions = append(l.Transactions, core.Transaction{
			ID:          td.ID,
			Value:       value,
			Type:        typ,
			Date:        core.Date{Time: td.Date.UTC()},
			Category:    td.Category,
			Description: td.Description,
		})
	}
	return l, nil
}
