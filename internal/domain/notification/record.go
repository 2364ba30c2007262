// internal/domain/notification/record.go
package notification

import (
	"database/sql"
	"time"
)

// RecordStatus represents the delivery state of a single
// (deadline, threshold) reminder.
type RecordStatus string

const (
	StatusPending RecordStatus = "PENDING"
	// StatusSent is terminal and immutable: at most one record per
	// (deadline, threshold) key ever reaches it.
	StatusSent RecordStatus = "SENT"
	// StatusFailed is terminal and operator-visible; failed records are
	// never retried automatically.
	StatusFailed RecordStatus = "FAILED"
)

// Record is a ledger entry tracking delivery of one reminder threshold for
// one deadline. Corresponds to the 'notification_records' table, whose
// UNIQUE (deadline_id, threshold) index backs the exactly-once guarantee.
type Record struct {
	ID            int64
	DeadlineID    int64
	Threshold     Threshold
	Status        RecordStatus
	Attempts      int
	LastAttemptAt sql.NullTime
	CreatedAt     time.Time
}

// ReserveResult is the outcome of a ledger reservation attempt.
type ReserveResult struct {
	// Granted is true when this caller created the PENDING record and owns
	// the dispatch. False means the key was already handled (SENT, FAILED,
	// or PENDING under another reservation).
	Granted  bool
	RecordID int64
}
