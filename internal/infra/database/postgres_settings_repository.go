package database

import (
	"context"
	"database/sql"
	"fmt"

	"deadline_notification_bot/internal/domain/notification"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type PostgresSettingsRepository struct {
	db *sql.DB
}

func NewPostgresSettingsRepository(db *sql.DB) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db}
}

// GetOrCreate loads the user's settings, inserting the defaults on first
// contact. The upsert keeps concurrent first reads from racing: whoever
// loses the insert reads the winner's row.
func (r *PostgresSettingsRepository) GetOrCreate(ctx context.Context, userID int64) (*notification.Settings, error) {
	s, err := r.get(ctx, userID)
	if err == nil {
		return s, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("error getting notification settings: %w", err)
	}

	defaults := notification.DefaultSettings(userID)
	query := `INSERT INTO notification_settings
                 (user_id, notify_on_due, notify_1_hour, notify_3_hours, notify_1_day, notify_3_days, notify_1_week, timezone)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT (user_id) DO NOTHING`
	_, err = r.db.ExecContext(ctx, query,
		defaults.UserID, defaults.NotifyOnDue, defaults.Notify1Hour, defaults.Notify3Hrs,
		defaults.Notify1Day, defaults.Notify3Days, defaults.Notify1Week, defaults.Timezone,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating default notification settings: %w", err)
	}

	s, err = r.get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error re-reading notification settings: %w", err)
	}
	return s, nil
}

func (r *PostgresSettingsRepository) Update(ctx context.Context, s *notification.Settings) error {
	query := `UPDATE notification_settings
               SET notify_on_due = $1, notify_1_hour = $2, notify_3_hours = $3,
                   notify_1_day = $4, notify_3_days = $5, notify_1_week = $6, timezone = $7
               WHERE user_id = $8`
	res, err := r.db.ExecContext(ctx, query,
		s.NotifyOnDue, s.Notify1Hour, s.Notify3Hrs, s.Notify1Day, s.Notify3Days, s.Notify1Week, s.Timezone,
		s.UserID,
	)
	if err != nil {
		return fmt.Errorf("error updating notification settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking updated settings rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification settings for user %d not found", s.UserID)
	}
	return nil
}

func (r *PostgresSettingsRepository) get(ctx context.Context, userID int64) (*notification.Settings, error) {
	query := `SELECT id, user_id, notify_on_due, notify_1_hour, notify_3_hours, notify_1_day, notify_3_days, notify_1_week, timezone, created_at
               FROM notification_settings WHERE user_id = $1`
	s := &notification.Settings{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.NotifyOnDue, &s.Notify1Hour, &s.Notify3Hrs,
		&s.Notify1Day, &s.Notify3Days, &s.Notify1Week, &s.Timezone, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
