package merchant

import (
	"context"
	"time"
)

// Journal statuses recorded for each write operation.
const (
	JournalSubmitted = "submitted"
	JournalConfirmed = "confirmed"
	JournalFailed    = "failed"
)

// JournalEntry is one row of the operation journal: a durable record of a
// submitted contract write and its outcome.
type JournalEntry struct {
	ID        string    `json:"id"`
	Chain     string    `json:"chain"`
	Operation string    `json:"operation"`
	Wallet    string    `json:"wallet"`
	TxHash    string    `json:"tx_hash"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists operation records. Recording is best-effort: a journal
// failure never fails the operation itself.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context, wallet string, limit int) ([]JournalEntry, error)
}
