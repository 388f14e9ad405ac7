// Package http provides HTTP server and handler implementations.
//
// This file implements decoding and validation of the JSON request bodies.
// Amounts go through core.ParseAmount so the API accepts the same inputs
// everywhere: JSON numbers or strings, dot or comma decimals.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneyflow/internal/core"
	"moneyflow/internal/ledger"
)

const maxBodyBytes = 1 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Amount is a money value in a request body.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return core.ErrInvalidAmount
	}
	d, err := core.ParseAmount(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

// TransactionRequest is the body of POST /api/ledger/transactions.
type TransactionRequest struct {
	ID          string  `json:"id"`
	Value       *Amount `json:"value"`
	Type        string  `json:"type"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// ToTransaction validates the request. A missing id gets a generated one
// and a missing date defaults to today.
func (req TransactionRequest) ToTransaction(now time.Time) (core.Transaction, error) {
	if req.Value == nil {
		return core.Transaction{}, badRequest("value is required")
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		return core.Transaction{}, badRequest("%v: %q", err, req.Type)
	}

	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if strings.TrimSpace(req.Date) != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			return core.Transaction{}, badRequest("invalid date %q", req.Date)
		}
	}

	id := sanitizeInput(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	return core.Transaction{
		ID:          id,
		Value:       req.Value.Decimal,
		Type:        typ,
		Date:        date,
		Category:    sanitizeInput(req.Category),
		Description: sanitizeInput(req.Description),
	}, nil
}

// TransactionUpdateRequest is the body of PATCH
// /api/ledger/transactions/{id}. Absent fields keep their value.
type TransactionUpdateRequest struct {
	Value       *Amount `json:"value"`
	Type        *string `json:"type"`
	Date        *string `json:"date"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

func (req TransactionUpdateRequest) ToUpdate() (ledger.TransactionUpdate, error) {
	var upd ledger.TransactionUpdate
	if req.Value != nil {
		upd.Value = &req.Value.Decimal
	}
	if req.Type != nil {
		typ, err := core.ParseTransactionType(*req.Type)
		if err != nil {
			return upd, badRequest("%v: %q", err, *req.Type)
		}
		upd.Type = &typ
	}
	if req.Date != nil {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			return upd, badRequest("invalid date %q", *req.Date)
		}
		upd.Date = &date
	}
	if req.Category != nil {
		category := sanitizeInput(*req.Category)
		upd.Category = &category
	}
	if req.Description != nil {
		description := sanitizeInput(*req.Description)
		upd.Description = &description
	}
	return upd, nil
}

// ValueRequest is the body of the scalar setters.
type ValueRequest struct {
	Value *Amount `json:"value"`
}

func (req ValueRequest) Amount() (decimal.Decimal, error) {
	if req.Value == nil {
		return decimal.Zero, badRequest("value is required")
	}
	return req.Value.Decimal, nil
}

// EssentialRequest is one essentials item in a request body.
type EssentialRequest struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Amount  *Amount `json:"amount"`
	Checked bool    `json:"checked"`
}

// ToItem converts the request. A missing id gets a generated one.
func (req EssentialRequest) ToItem() (core.EssentialItem, error) {
	if req.Amount == nil {
		return core.EssentialItem{}, badRequest("amount is required")
	}
	id := sanitizeInput(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return core.EssentialItem{
		ID:      id,
		Title:   sanitizeInput(req.Title),
		Amount:  req.Amount.Decimal,
		Checked: req.Checked,
	}, nil
}

// EssentialsRequest is the body of PUT /api/ledger/essentials/{scope}.
type EssentialsRequest struct {
	Items []EssentialRequest `json:"items"`
}

func (req EssentialsRequest) ToItems() ([]core.EssentialItem, error) {
	items := make([]core.EssentialItem, 0, len(req.Items))
	for i, r := range req.Items {
		item, err := r.ToItem()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// CheckedRequest is the body of PATCH /api/ledger/essentials/{scope}/{id}.
type CheckedRequest struct {
	Checked *bool `json:"checked"`
}

// ClearRequest is the optional body of POST /api/ledger/clear.
type ClearRequest struct {
	ClearTotals bool `json:"clearTotals"`
}

// DecodeJSON reads a JSON body into v. Unknown fields, trailing data and
// bodies over 1 MiB are rejected. An empty body is accepted only when
// allowEmpty is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body exceeds %d bytes", tooLarge.Limit)
		}
		return badRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return badRequest("request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("invalid JSON body: trailing data")
	}
	return nil
}

// ParseScope reads the {scope} path value.
func ParseScope(r *http.Request) (core.Scope, error) {
	raw := r.PathValue("scope")
	scope, err := core.ParseScope(raw)
	if err != nil {
		return "", badRequest("%v: %q", err, raw)
	}
	return scope, nil
}

// PathID reads the {id} path value.
func PathID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return "", badRequest("missing id")
	}
	return id, nil
}
