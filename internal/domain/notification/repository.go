// internal/domain/notification/repository.go
package notification

import (
	"context"
	"time"
)

// Ledger is the durable exactly-once bookkeeping store for reminder
// delivery. Reserve is the single mandatory mutual-exclusion point of the
// whole scheduler: it must be one atomic conditional insert, never a
// read-then-write pair, so overlapping scan cycles (or multiple scheduler
// instances) can race on the same key and only one receives Granted.
type Ledger interface {
	// Reserve atomically creates a PENDING record for the key, or reports
	// AlreadyHandled (Granted=false) if any record exists for it.
	Reserve(ctx context.Context, deadlineID int64, threshold Threshold) (ReserveResult, error)

	// ConfirmSent transitions a PENDING record to SENT. A record already in
	// a terminal state is left untouched (idempotent replay safety).
	ConfirmSent(ctx context.Context, recordID int64) error

	// ConfirmFailed transitions a PENDING record to terminal FAILED,
	// recording how many dispatch attempts were made.
	ConfirmFailed(ctx context.Context, recordID int64, attempts int) error

	// TouchAttempt increments the attempt count and stamps last_attempt_at
	// on a PENDING record. Called when reconciliation re-enqueues it.
	TouchAttempt(ctx context.Context, recordID int64) error

	// Invalidate removes every record for the deadline, so thresholds are
	// re-evaluated against a changed due instant (or dropped entirely after
	// deletion).
	Invalidate(ctx context.Context, deadlineID int64) error

	// ListStalePending returns PENDING records untouched since 'before' and
	// still within the attempt budget: reservations orphaned by a crash or a
	// full dispatch queue, due for re-dispatch.
	ListStalePending(ctx context.Context, before time.Time, maxAttempts int) ([]*Record, error)

	// MarkExhaustedFailed sweeps PENDING records whose attempt count reached
	// the budget into terminal FAILED, returning how many were swept.
	MarkExhaustedFailed(ctx context.Context, maxAttempts int) (int64, error)

	// Counts reports the number of PENDING and FAILED records for the
	// status surface.
	Counts(ctx context.Context) (pending int, failed int, err error)
}

// SettingsRepository provides per-user notification settings. Settings rows
// are created lazily with defaults on first read.
type SettingsRepository interface {
	GetOrCreate(ctx context.Context, userID int64) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}
