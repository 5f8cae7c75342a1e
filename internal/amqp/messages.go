package amqp

import (
	"encoding/json"
	"time"
)

// LedgerSyncMessage announces a purchase whose rows are waiting in SQLite.
// The worker loads the rows itself, so the message stays small.
type LedgerSyncMessage struct {
	PurchaseID string    `json:"purchase_id"`
	Entries    int       `json:"entries"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewLedgerSyncMessage(purchaseID string, entries int) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		PurchaseID: purchaseID,
		Entries:    entries,
		Timestamp:  time.Now(),
	}
}

func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
