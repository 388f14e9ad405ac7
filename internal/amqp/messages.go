package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LedgerChangedMessage tells consumers that a user's ledger was written.
// It carries no ledger data; consumers reload the record.
type LedgerChangedMessage struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingUser = errors.New("ledger change message without user id")

func NewLedgerChangedMessage(userID, operation string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		EventID:   uuid.NewString(),
		UserID:    userID,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects ones that name
// no user.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errMissingUser
	}
	return &msg, nil
}
