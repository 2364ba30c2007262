package deadline

import (
	"database/sql"
	"time"
)

// Deadline represents a user-owned deadline being tracked for reminders.
// DueAt is always stored in UTC; the owner's timezone applies to rendering
// only. Once reminders have been scheduled against it, DueAt changes only
// through the reschedule operation, which also clears the deadline's ledger
// entries.
type Deadline struct {
	ID          int64
	UserID      int64 // Telegram chat/user ID of the owner
	Title       string
	Description sql.NullString
	DueAt       time.Time
	// IsActive is false once the deadline is archived or settled (overdue
	// notice delivered); inactive deadlines are excluded from scans.
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
