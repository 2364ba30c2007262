// internal/infra/database/postgres_ledger_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"deadline_notification_bot/internal/domain/notification"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Custom errors specific to the notification ledger
var ErrRecordNotFound = fmt.Errorf("notification record not found")

// PostgresLedger implements notification.Ledger on top of the
// notification_records table. The UNIQUE (deadline_id, threshold) index
// makes Reserve a single conditional insert: correct even with multiple
// scheduler instances or overlapping scan ticks.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (r *PostgresLedger) Reserve(ctx context.Context, deadlineID int64, threshold notification.Threshold) (notification.ReserveResult, error) {
	// Single atomic check-and-create. ON CONFLICT DO NOTHING returns no row
	// when any record already exists for the key, whatever its state.
	query := `INSERT INTO notification_records (deadline_id, threshold, status, attempts)
               VALUES ($1, $2, $3, 0)
               ON CONFLICT (deadline_id, threshold) DO NOTHING
               RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, query, deadlineID, threshold, notification.StatusPending).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return notification.ReserveResult{Granted: false}, nil
		}
		return notification.ReserveResult{}, fmt.Errorf("error reserving notification record: %w", err)
	}
	return notification.ReserveResult{Granted: true, RecordID: id}, nil
}

func (r *PostgresLedger) ConfirmSent(ctx context.Context, recordID int64) error {
	// The status guard keeps SENT immutable and makes replayed confirms
	// no-ops.
	query := `UPDATE notification_records
               SET status = $1, last_attempt_at = NOW()
               WHERE id = $2 AND status = $3`
	_, err := r.db.ExecContext(ctx, query, notification.StatusSent, recordID, notification.StatusPending)
	if err != nil {
		return fmt.Errorf("error confirming record %d as sent: %w", recordID, err)
	}
	return nil
}

func (r *PostgresLedger) ConfirmFailed(ctx context.Context, recordID int64, attempts int) error {
	query := `UPDATE notification_records
               SET status = $1, attempts = $2, last_attempt_at = NOW()
               WHERE id = $3 AND status = $4`
	_, err := r.db.ExecContext(ctx, query, notification.StatusFailed, attempts, recordID, notification.StatusPending)
	if err != nil {
		return fmt.Errorf("error confirming record %d as failed: %w", recordID, err)
	}
	return nil
}

func (r *PostgresLedger) TouchAttempt(ctx context.Context, recordID int64) error {
	query := `UPDATE notification_records
               SET attempts = attempts + 1, last_attempt_at = NOW()
               WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, recordID, notification.StatusPending)
	if err != nil {
		return fmt.Errorf("error touching record %d: %w", recordID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking touched rows: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PostgresLedger) Invalidate(ctx context.Context, deadlineID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notification_records WHERE deadline_id = $1`, deadlineID)
	if err != nil {
		return fmt.Errorf("error invalidating records for deadline %d: %w", deadlineID, err)
	}
	return nil
}

func (r *PostgresLedger) ListStalePending(ctx context.Context, before time.Time, maxAttempts int) ([]*notification.Record, error) {
	query := `SELECT id, deadline_id, threshold, status, attempts, last_attempt_at, created_at
               FROM notification_records
               WHERE status = $1
                 AND attempts < $2
                 AND created_at < $3
                 AND (last_attempt_at IS NULL OR last_attempt_at < $3)
               ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, notification.StatusPending, maxAttempts, before)
	if err != nil {
		return nil, fmt.Errorf("error querying stale pending records: %w", err)
	}
	defer rows.Close()

	records := make([]*notification.Record, 0)
	for rows.Next() {
		rec := &notification.Record{}
		if err := rows.Scan(
			&rec.ID, &rec.DeadlineID, &rec.Threshold, &rec.Status,
			&rec.Attempts, &rec.LastAttemptAt, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning notification record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification record rows: %w", err)
	}
	return records, nil
}

func (r *PostgresLedger) MarkExhaustedFailed(ctx context.Context, maxAttempts int) (int64, error) {
	query := `UPDATE notification_records
               SET status = $1
               WHERE status = $2 AND attempts >= $3`
	res, err := r.db.ExecContext(ctx, query, notification.StatusFailed, notification.StatusPending, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("error sweeping exhausted records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error checking swept rows: %w", err)
	}
	return affected, nil
}

func (r *PostgresLedger) Counts(ctx context.Context) (int, int, error) {
	query := `SELECT
                 COUNT(*) FILTER (WHERE status = $1),
                 COUNT(*) FILTER (WHERE status = $2)
               FROM notification_records`
	var pending, failed int
	err := r.db.QueryRowContext(ctx, query, notification.StatusPending, notification.StatusFailed).Scan(&pending, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("error counting notification records: %w", err)
	}
	return pending, failed, nil
}
