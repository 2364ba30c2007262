package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"deadline_notification_bot/internal/domain/deadline"
	"deadline_notification_bot/internal/domain/notification"
	idb "deadline_notification_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{t: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memLedger implements notification.Ledger with the same atomicity contract
// as the Postgres version: Reserve is a single check-and-create under one
// lock, so concurrent callers race safely.
type memLedger struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*notification.Record
	byID   map[int64]*notification.Record
	clock  func() time.Time
}

func newMemLedger(clock func() time.Time) *memLedger {
	if clock == nil {
		clock = time.Now
	}
	return &memLedger{
		byKey: make(map[string]*notification.Record),
		byID:  make(map[int64]*notification.Record),
		clock: clock,
	}
}

func ledgerKey(deadlineID int64, t notification.Threshold) string {
	return fmt.Sprintf("%d/%s", deadlineID, t)
}

func (l *memLedger) Reserve(_ context.Context, deadlineID int64, threshold notification.Threshold) (notification.ReserveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(deadlineID, threshold)
	if _, ok := l.byKey[key]; ok {
		return notification.ReserveResult{Granted: false}, nil
	}
	l.nextID++
	rec := &notification.Record{
		ID:         l.nextID,
		DeadlineID: deadlineID,
		Threshold:  threshold,
		Status:     notification.StatusPending,
		CreatedAt:  l.clock(),
	}
	l.byKey[key] = rec
	l.byID[rec.ID] = rec
	return notification.ReserveResult{Granted: true, RecordID: rec.ID}, nil
}

func (l *memLedger) ConfirmSent(_ context.Context, recordID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[recordID]
	if !ok || rec.Status != notification.StatusPending {
		return nil
	}
	rec.Status = notification.StatusSent
	rec.LastAttemptAt = sql.NullTime{Time: l.clock(), Valid: true}
	return nil
}

func (l *memLedger) ConfirmFailed(_ context.Context, recordID int64, attempts int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[recordID]
	if !ok || rec.Status != notification.StatusPending {
		return nil
	}
	rec.Status = notification.StatusFailed
	rec.Attempts = attempts
	rec.LastAttemptAt = sql.NullTime{Time: l.clock(), Valid: true}
	return nil
}

func (l *memLedger) TouchAttempt(_ context.Context, recordID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[recordID]
	if !ok || rec.Status != notification.StatusPending {
		return idb.ErrRecordNotFound
	}
	rec.Attempts++
	rec.LastAttemptAt = sql.NullTime{Time: l.clock(), Valid: true}
	return nil
}

func (l *memLedger) Invalidate(_ context.Context, deadlineID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, rec := range l.byKey {
		if rec.DeadlineID == deadlineID {
			delete(l.byKey, key)
			delete(l.byID, rec.ID)
		}
	}
	return nil
}

func (l *memLedger) ListStalePending(_ context.Context, before time.Time, maxAttempts int) ([]*notification.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*notification.Record
	for _, rec := range l.byID {
		if rec.Status != notification.StatusPending || rec.Attempts >= maxAttempts {
			continue
		}
		if !rec.CreatedAt.Before(before) {
			continue
		}
		if rec.LastAttemptAt.Valid && !rec.LastAttemptAt.Time.Before(before) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *memLedger) MarkExhaustedFailed(_ context.Context, maxAttempts int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var swept int64
	for _, rec := range l.byID {
		if rec.Status == notification.StatusPending && rec.Attempts >= maxAttempts {
			rec.Status = notification.StatusFailed
			swept++
		}
	}
	return swept, nil
}

func (l *memLedger) Counts(_ context.Context) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var pending, failed int
	for _, rec := range l.byID {
		switch rec.Status {
		case notification.StatusPending:
			pending++
		case notification.StatusFailed:
			failed++
		}
	}
	return pending, failed, nil
}

func (l *memLedger) record(id int64) *notification.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

type memDeadlineRepo struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]*deadline.Deadline
}

func newMemDeadlineRepo() *memDeadlineRepo {
	return &memDeadlineRepo{items: make(map[int64]*deadline.Deadline)}
}

func (r *memDeadlineRepo) Create(_ context.Context, d *deadline.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	d.ID = r.seq
	cp := *d
	r.items[d.ID] = &cp
	return nil
}

func (r *memDeadlineRepo) GetByID(_ context.Context, id int64) (*deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, idb.ErrDeadlineNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDeadlineRepo) Update(_ context.Context, d *deadline.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return idb.ErrDeadlineNotFound
	}
	cp := *d
	r.items[d.ID] = &cp
	return nil
}

func (r *memDeadlineRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return idb.ErrDeadlineNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memDeadlineRepo) ListByUser(_ context.Context, userID int64) ([]*deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*deadline.Deadline
	for _, d := range r.items {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *memDeadlineRepo) ListActiveDueBefore(_ context.Context, due time.Time) ([]*deadline.Deadline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*deadline.Deadline
	for _, d := range r.items {
		if d.IsActive && d.DueAt.Before(due) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (r *memDeadlineRepo) MarkSettled(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return idb.ErrDeadlineNotFound
	}
	d.IsActive = false
	return nil
}

type memSettingsRepo struct {
	mu    sync.Mutex
	items map[int64]*notification.Settings
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{items: make(map[int64]*notification.Settings)}
}

func (r *memSettingsRepo) GetOrCreate(_ context.Context, userID int64) (*notification.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[userID]; ok {
		cp := *s
		return &cp, nil
	}
	s := notification.DefaultSettings(userID)
	s.ID = int64(len(r.items) + 1)
	r.items[userID] = s
	cp := *s
	return &cp, nil
}

func (r *memSettingsRepo) Update(_ context.Context, s *notification.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.items[s.UserID] = &cp
	return nil
}

func (r *memSettingsRepo) put(s *notification.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.items[s.UserID] = &cp
}

// captureSink records enqueued jobs instead of dispatching them. With
// reject set it refuses every job, simulating a saturated queue.
type captureSink struct {
	mu     sync.Mutex
	jobs   []DispatchJob
	reject bool
}

func (s *captureSink) Enqueue(job DispatchJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.jobs = append(s.jobs, job)
	return true
}

func (s *captureSink) setReject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

func (s *captureSink) all() []DispatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DispatchJob, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *captureSink) reset() {
	s.mu.Lock()
	s.jobs = nil
	s.mu.Unlock()
}
