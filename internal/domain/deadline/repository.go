package deadline

import (
	"context"
	"time"
)

// Repository defines the operations for persisting and retrieving Deadline
// entities. The scheduling core consumes it read-only (list methods plus
// MarkSettled); all other mutation goes through the CRUD service.
type Repository interface {
	Create(ctx context.Context, d *Deadline) error
	GetByID(ctx context.Context, id int64) (*Deadline, error)
	Update(ctx context.Context, d *Deadline) error
	Delete(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID int64) ([]*Deadline, error)
	// ListActiveDueBefore returns active deadlines with due_at before the
	// given instant, ascending by due_at. Callable repeatedly with different
	// windows: the upcoming scan uses a narrow horizon, reconciliation a
	// full one.
	ListActiveDueBefore(ctx context.Context, due time.Time) ([]*Deadline, error)
	// MarkSettled deactivates a deadline after its final overdue evaluation
	// so future scans skip it.
	MarkSettled(ctx context.Context, id int64) error
}
