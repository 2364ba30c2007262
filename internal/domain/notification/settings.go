// internal/domain/notification/settings.go
package notification

import "time"

// Settings holds a user's notification preferences: which reminder
// thresholds are enabled and the timezone used for rendering times.
// Corresponds to the 'notification_settings' table. Read-only from the
// scheduling core's perspective; written only by the settings handlers.
type Settings struct {
	ID          int64
	UserID      int64
	NotifyOnDue bool
	Notify1Hour bool
	Notify3Hrs  bool
	Notify1Day  bool
	Notify3Days bool
	Notify1Week bool
	Timezone    string // IANA zone name, e.g. "Europe/Moscow"
	CreatedAt   time.Time
}

// DefaultSettings returns the settings created lazily on a user's first
// interaction: only the 1-day reminder and the overdue notice are on.
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:      userID,
		NotifyOnDue: true,
		Notify1Day:  true,
		Timezone:    "UTC",
	}
}

// Enabled reports whether the given threshold is switched on.
func (s *Settings) Enabled(t Threshold) bool {
	switch t {
	case Threshold1Week:
		return s.Notify1Week
	case Threshold3Days:
		return s.Notify3Days
	case Threshold1Day:
		return s.Notify1Day
	case Threshold3Hours:
		return s.Notify3Hrs
	case Threshold1Hour:
		return s.Notify1Hour
	case ThresholdOnDue:
		return s.NotifyOnDue
	default:
		return false
	}
}

// Toggle flips the given threshold and returns the new state.
func (s *Settings) Toggle(t Threshold) bool {
	switch t {
	case Threshold1Week:
		s.Notify1Week = !s.Notify1Week
		return s.Notify1Week
	case Threshold3Days:
		s.Notify3Days = !s.Notify3Days
		return s.Notify3Days
	case Threshold1Day:
		s.Notify1Day = !s.Notify1Day
		return s.Notify1Day
	case Threshold3Hours:
		s.Notify3Hrs = !s.Notify3Hrs
		return s.Notify3Hrs
	case Threshold1Hour:
		s.Notify1Hour = !s.Notify1Hour
		return s.Notify1Hour
	case ThresholdOnDue:
		s.NotifyOnDue = !s.NotifyOnDue
		return s.NotifyOnDue
	default:
		return false
	}
}
