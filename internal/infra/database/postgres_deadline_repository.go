package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"deadline_notification_bot/internal/domain/deadline"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Custom errors
var ErrDeadlineNotFound = fmt.Errorf("deadline not found")

type PostgresDeadlineRepository struct {
	db *sql.DB
}

func NewPostgresDeadlineRepository(db *sql.DB) *PostgresDeadlineRepository {
	return &PostgresDeadlineRepository{db: db}
}

func (r *PostgresDeadlineRepository) Create(ctx context.Context, d *deadline.Deadline) error {
	query := `INSERT INTO deadlines (user_id, title, description, due_at, is_active)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, d.UserID, d.Title, d.Description, d.DueAt, d.IsActive).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating deadline: %w", err)
	}
	return nil
}

func (r *PostgresDeadlineRepository) GetByID(ctx context.Context, id int64) (*deadline.Deadline, error) {
	query := `SELECT id, user_id, title, description, due_at, is_active, created_at, updated_at
               FROM deadlines WHERE id = $1`
	d := &deadline.Deadline{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.DueAt, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrDeadlineNotFound
		}
		return nil, fmt.Errorf("error getting deadline by ID: %w", err)
	}
	return d, nil
}

func (r *PostgresDeadlineRepository) Update(ctx context.Context, d *deadline.Deadline) error {
	query := `UPDATE deadlines
               SET title = $1, description = $2, due_at = $3, is_active = $4, updated_at = NOW()
               WHERE id = $5
               RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, d.Title, d.Description, d.DueAt, d.IsActive, d.ID).Scan(&d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrDeadlineNotFound
		}
		return fmt.Errorf("error updating deadline: %w", err)
	}
	return nil
}

func (r *PostgresDeadlineRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM deadlines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting deadline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrDeadlineNotFound
	}
	return nil
}

func scanDeadlines(rows *sql.Rows) ([]*deadline.Deadline, error) {
	deadlines := make([]*deadline.Deadline, 0)
	for rows.Next() {
		d := &deadline.Deadline{}
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Title, &d.Description, &d.DueAt, &d.IsActive, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning deadline row: %w", err)
		}
		deadlines = append(deadlines, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deadline rows: %w", err)
	}
	return deadlines, nil
}

func (r *PostgresDeadlineRepository) ListByUser(ctx context.Context, userID int64) ([]*deadline.Deadline, error) {
	query := `SELECT id, user_id, title, description, due_at, is_active, created_at, updated_at
               FROM deadlines
               WHERE user_id = $1 ORDER BY due_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying deadlines by user: %w", err)
	}
	defer rows.Close()
	return scanDeadlines(rows)
}

func (r *PostgresDeadlineRepository) ListActiveDueBefore(ctx context.Context, due time.Time) ([]*deadline.Deadline, error) {
	query := `SELECT id, user_id, title, description, due_at, is_active, created_at, updated_at
               FROM deadlines
               WHERE is_active = TRUE AND due_at < $1
               ORDER BY due_at ASC`
	rows, err := r.db.QueryContext(ctx, query, due)
	if err != nil {
		return nil, fmt.Errorf("error querying active deadlines due before %s: %w", due.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanDeadlines(rows)
}

func (r *PostgresDeadlineRepository) MarkSettled(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE deadlines SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error settling deadline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking settled rows: %w", err)
	}
	if affected == 0 {
		return ErrDeadlineNotFound
	}
	return nil
}
