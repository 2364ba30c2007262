package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"deadline_notification_bot/internal/domain/deadline"
	"deadline_notification_bot/internal/domain/notification"
	idb "deadline_notification_bot/internal/infra/database"
)

// Custom application-level errors for the deadline CRUD service
var ErrTitleEmpty = fmt.Errorf("deadline title must not be empty")
var ErrTitleTooLong = fmt.Errorf("deadline title exceeds the allowed length")
var ErrDescriptionTooLong = fmt.Errorf("deadline description exceeds the allowed length")
var ErrDueInPast = fmt.Errorf("due instant must be in the future")
var ErrNotOwner = fmt.Errorf("deadline belongs to another user")
var ErrUnknownTimezone = fmt.Errorf("unknown timezone name")

// DeadlineService owns the CRUD side of deadlines and notification
// settings. It is the edit collaborator of the scheduling core: any change
// to a due instant or a deletion clears that deadline's ledger entries so
// thresholds are re-evaluated against the new state.
type DeadlineService struct {
	deadlineRepo deadline.Repository
	settingsRepo notification.SettingsRepository
	ledger       notification.Ledger
	clock        func() time.Time

	maxTitleLen       int
	maxDescriptionLen int
}

func NewDeadlineService(
	dr deadline.Repository,
	sr notification.SettingsRepository,
	ledger notification.Ledger,
	clock func() time.Time,
	maxTitleLen, maxDescriptionLen int,
) *DeadlineService {
	if clock == nil {
		clock = time.Now
	}
	return &DeadlineService{
		deadlineRepo:      dr,
		settingsRepo:      sr,
		ledger:            ledger,
		clock:             clock,
		maxTitleLen:       maxTitleLen,
		maxDescriptionLen: maxDescriptionLen,
	}
}

func (s *DeadlineService) CreateDeadline(ctx context.Context, userID int64, title, description string, dueAt time.Time) (*deadline.Deadline, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleEmpty
	}
	if len([]rune(title)) > s.maxTitleLen {
		return nil, ErrTitleTooLong
	}
	if len([]rune(description)) > s.maxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	if !dueAt.After(s.clock()) {
		return nil, ErrDueInPast
	}

	var desc sql.NullString
	if description != "" {
		desc = sql.NullString{String: description, Valid: true}
	}

	d := &deadline.Deadline{
		UserID:      userID,
		Title:       title,
		Description: desc,
		DueAt:       dueAt.UTC(),
		IsActive:    true,
	}
	if err := s.deadlineRepo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create deadline: %w", err)
	}
	return d, nil
}

func (s *DeadlineService) ListDeadlines(ctx context.Context, userID int64) ([]*deadline.Deadline, error) {
	list, err := s.deadlineRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deadlines for user %d: %w", userID, err)
	}
	return list, nil
}

// Reschedule moves a deadline to a new due instant and invalidates its
// ledger entries, so already-sent state for thresholds that are no longer in
// the past does not suppress re-evaluation against the new date.
func (s *DeadlineService) Reschedule(ctx context.Context, userID, deadlineID int64, newDueAt time.Time) (*deadline.Deadline, error) {
	if !newDueAt.After(s.clock()) {
		return nil, ErrDueInPast
	}

	d, err := s.ownedDeadline(ctx, userID, deadlineID)
	if err != nil {
		return nil, err
	}

	d.DueAt = newDueAt.UTC()
	d.IsActive = true // a settled deadline comes back into scan scope
	if err := s.deadlineRepo.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update deadline %d: %w", deadlineID, err)
	}
	if err := s.ledger.Invalidate(ctx, deadlineID); err != nil {
		return nil, fmt.Errorf("failed to invalidate ledger entries for deadline %d: %w", deadlineID, err)
	}
	return d, nil
}

func (s *DeadlineService) DeleteDeadline(ctx context.Context, userID, deadlineID int64) error {
	if _, err := s.ownedDeadline(ctx, userID, deadlineID); err != nil {
		return err
	}
	if err := s.deadlineRepo.Delete(ctx, deadlineID); err != nil {
		return fmt.Errorf("failed to delete deadline %d: %w", deadlineID, err)
	}
	if err := s.ledger.Invalidate(ctx, deadlineID); err != nil {
		return fmt.Errorf("failed to remove ledger entries for deadline %d: %w", deadlineID, err)
	}
	return nil
}

func (s *DeadlineService) GetSettings(ctx context.Context, userID int64) (*notification.Settings, error) {
	settings, err := s.settingsRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}
	return settings, nil
}

// ToggleThreshold flips one reminder threshold for the user and returns the
// updated settings.
func (s *DeadlineService) ToggleThreshold(ctx context.Context, userID int64, t notification.Threshold) (*notification.Settings, error) {
	settings, err := s.settingsRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}
	settings.Toggle(t)
	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings for user %d: %w", userID, err)
	}
	return settings, nil
}

// SetTimezone validates the zone name against the timezone database before
// persisting it. The zone affects rendering only, never threshold
// arithmetic.
func (s *DeadlineService) SetTimezone(ctx context.Context, userID int64, zone string) (*notification.Settings, error) {
	if _, err := time.LoadLocation(zone); err != nil || zone == "" {
		return nil, ErrUnknownTimezone
	}
	settings, err := s.settingsRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}
	settings.Timezone = zone
	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings for user %d: %w", userID, err)
	}
	return settings, nil
}

func (s *DeadlineService) ownedDeadline(ctx context.Context, userID, deadlineID int64) (*deadline.Deadline, error) {
	d, err := s.deadlineRepo.GetByID(ctx, deadlineID)
	if err != nil {
		if err == idb.ErrDeadlineNotFound {
			return nil, idb.ErrDeadlineNotFound
		}
		return nil, fmt.Errorf("failed to get deadline %d: %w", deadlineID, err)
	}
	if d.UserID != userID {
		return nil, ErrNotOwner
	}
	return d, nil
}
