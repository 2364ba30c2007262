// internal/app/scheduler_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"deadline_notification_bot/internal/domain/deadline"
	"deadline_notification_bot/internal/domain/notification"
	idb "deadline_notification_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// SchedulerService runs the two periodic scans that drive reminder
// delivery. Both scans may overlap; their only shared mutable state is the
// ledger, whose atomic Reserve serializes per (deadline, threshold) key.
type SchedulerService interface {
	RunUpcomingScan(ctx context.Context) error
	RunReconciliationScan(ctx context.Context) error
	Status(ctx context.Context) (SchedulerStatus, error)
}

// SchedulerStatus is the health surface exposed via the HTTP endpoint.
type SchedulerStatus struct {
	LastUpcomingScan   time.Time `json:"last_upcoming_scan"`
	LastReconciliation time.Time `json:"last_reconciliation"`
	PendingCount       int       `json:"pending_count"`
	FailedCount        int       `json:"failed_count"`
}

// JobSink is where granted reservations are handed off for delivery.
type JobSink interface {
	Enqueue(job DispatchJob) bool
}

// SchedulerConfig carries the scan policy knobs.
type SchedulerConfig struct {
	// ScanInterval is the upcoming-scan cadence; thresholds evaluated more
	// than one cadence after their fire instant are flagged late.
	ScanInterval time.Duration
	// LateGrace bounds staleness: a threshold missed by more than this is
	// skipped instead of burst-delivered after an outage.
	LateGrace time.Duration
	// RetryBudget is the per-record dispatch attempt budget.
	RetryBudget int
	// StalePendingAge is how long a PENDING reservation may sit untouched
	// before reconciliation re-dispatches it.
	StalePendingAge time.Duration
}

type SchedulerServiceImpl struct {
	deadlineRepo deadline.Repository
	settingsRepo notification.SettingsRepository
	ledger       notification.Ledger
	sink         JobSink
	clock        func() time.Time
	logger       *logrus.Entry
	cfg          SchedulerConfig

	mu                 sync.Mutex
	lastUpcomingScan   time.Time
	lastReconciliation time.Time
}

func NewSchedulerService(
	dr deadline.Repository,
	sr notification.SettingsRepository,
	ledger notification.Ledger,
	sink JobSink,
	clock func() time.Time,
	logger *logrus.Entry,
	cfg SchedulerConfig,
) *SchedulerServiceImpl {
	if clock == nil {
		clock = time.Now
	}
	return &SchedulerServiceImpl{
		deadlineRepo: dr,
		settingsRepo: sr,
		ledger:       ledger,
		sink:         sink,
		clock:        clock,
		logger:       logger,
		cfg:          cfg,
	}
}

// RunUpcomingScan is the fast cadence: it looks only at deadlines inside the
// widest threshold window and enqueues every newly due reminder.
func (s *SchedulerServiceImpl) RunUpcomingScan(ctx context.Context) error {
	now := s.clock().UTC()
	horizon := now.Add(notification.MaxLead() + s.cfg.LateGrace)

	deadlines, err := s.deadlineRepo.ListActiveDueBefore(ctx, horizon)
	if err != nil {
		return fmt.Errorf("upcoming scan: listing deadlines: %w", err)
	}

	failed := 0
	for _, d := range deadlines {
		if !d.DueAt.After(now) {
			continue // overdue deadlines are settled by reconciliation
		}
		if err := s.scanDeadline(ctx, d, now); err != nil {
			failed++
			s.logger.WithError(err).WithField("deadline_id", d.ID).Error("Deadline evaluation failed, continuing scan")
		}
	}

	s.mu.Lock()
	s.lastUpcomingScan = now
	s.mu.Unlock()

	if failed > 0 {
		s.logger.WithFields(logrus.Fields{"failed": failed, "total": len(deadlines)}).Warn("Upcoming scan finished with per-deadline failures")
	}
	return nil
}

// RunReconciliationScan is the slow cadence: a full sweep that re-evaluates
// everything the upcoming scan covers, settles overdue deadlines, re-feeds
// orphaned PENDING reservations and sweeps exhausted ones into FAILED.
func (s *SchedulerServiceImpl) RunReconciliationScan(ctx context.Context) error {
	now := s.clock().UTC()
	horizon := now.Add(notification.MaxLead() + s.cfg.LateGrace)

	deadlines, err := s.deadlineRepo.ListActiveDueBefore(ctx, horizon)
	if err != nil {
		return fmt.Errorf("reconciliation: listing deadlines: %w", err)
	}

	failed := 0
	for _, d := range deadlines {
		var scanErr error
		if d.DueAt.After(now) {
			scanErr = s.scanDeadline(ctx, d, now)
		} else {
			scanErr = s.settleOverdue(ctx, d)
		}
		if scanErr != nil {
			failed++
			s.logger.WithError(scanErr).WithField("deadline_id", d.ID).Error("Deadline reconciliation failed, continuing scan")
		}
	}

	s.requeueStalePending(ctx, now)

	if swept, err := s.ledger.MarkExhaustedFailed(ctx, s.cfg.RetryBudget); err != nil {
		s.logger.WithError(err).Error("Failed to sweep exhausted pending records")
	} else if swept > 0 {
		s.logger.WithField("count", swept).Warn("Pending records exceeded retry budget, marked FAILED")
	}

	s.mu.Lock()
	s.lastReconciliation = now
	s.mu.Unlock()

	if failed > 0 {
		s.logger.WithFields(logrus.Fields{"failed": failed, "total": len(deadlines)}).Warn("Reconciliation finished with per-deadline failures")
	}
	return nil
}

// scanDeadline evaluates one deadline's thresholds (largest lead first) and
// enqueues a dispatch job for every reservation granted. A reserve error
// fails closed: the whole deadline is skipped this cycle and retried on the
// next tick rather than risking a duplicate send.
func (s *SchedulerServiceImpl) scanDeadline(ctx context.Context, d *deadline.Deadline, now time.Time) error {
	settings, err := s.settingsRepo.GetOrCreate(ctx, d.UserID)
	if err != nil {
		return fmt.Errorf("loading settings for user %d: %w", d.UserID, err)
	}

	for _, due := range notification.Evaluate(d.DueAt, settings, now, s.cfg.LateGrace, s.cfg.ScanInterval) {
		res, err := s.ledger.Reserve(ctx, d.ID, due.Threshold)
		if err != nil {
			return fmt.Errorf("reserving %s for deadline %d: %w", due.Threshold, d.ID, err)
		}
		if !res.Granted {
			continue
		}
		if due.Late {
			s.logger.WithFields(logrus.Fields{
				"deadline_id": d.ID,
				"threshold":   string(due.Threshold),
				"fire_at":     due.FireAt,
			}).Warn("Threshold fired late")
		}
		s.sink.Enqueue(DispatchJob{
			RecordID:   res.RecordID,
			DeadlineID: d.ID,
			ChatID:     d.UserID,
			Threshold:  due.Threshold,
			Text:       reminderText(d, due.Threshold, settings.Timezone),
		})
	}
	return nil
}

// settleOverdue gives a past-due deadline its one final overdue evaluation,
// then deactivates it. Lead thresholds are never fired retroactively for a
// passed deadline.
func (s *SchedulerServiceImpl) settleOverdue(ctx context.Context, d *deadline.Deadline) error {
	settings, err := s.settingsRepo.GetOrCreate(ctx, d.UserID)
	if err != nil {
		return fmt.Errorf("loading settings for user %d: %w", d.UserID, err)
	}

	if settings.Enabled(notification.ThresholdOnDue) {
		res, err := s.ledger.Reserve(ctx, d.ID, notification.ThresholdOnDue)
		if err != nil {
			// Leave the deadline active so the next reconciliation retries.
			return fmt.Errorf("reserving overdue notice for deadline %d: %w", d.ID, err)
		}
		if res.Granted {
			s.sink.Enqueue(DispatchJob{
				RecordID:   res.RecordID,
				DeadlineID: d.ID,
				ChatID:     d.UserID,
				Threshold:  notification.ThresholdOnDue,
				Text:       reminderText(d, notification.ThresholdOnDue, settings.Timezone),
			})
		}
	}

	if err := s.deadlineRepo.MarkSettled(ctx, d.ID); err != nil {
		return fmt.Errorf("settling deadline %d: %w", d.ID, err)
	}
	s.logger.WithField("deadline_id", d.ID).Info("Overdue deadline settled")
	return nil
}

// requeueStalePending re-dispatches PENDING reservations orphaned by a crash
// or a full queue. A record whose deadline vanished is cleaned up as a no-op;
// a record whose due instant has meanwhile passed is closed FAILED instead of
// sending a backward reminder.
func (s *SchedulerServiceImpl) requeueStalePending(ctx context.Context, now time.Time) {
	records, err := s.ledger.ListStalePending(ctx, now.Add(-s.cfg.StalePendingAge), s.cfg.RetryBudget)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list stale pending records")
		return
	}

	for _, rec := range records {
		recLogger := s.logger.WithFields(logrus.Fields{"record_id": rec.ID, "deadline_id": rec.DeadlineID})

		d, err := s.deadlineRepo.GetByID(ctx, rec.DeadlineID)
		if err != nil {
			if errors.Is(err, idb.ErrDeadlineNotFound) {
				recLogger.Warn("Ledger record references missing deadline, cleaning up")
				if cleanErr := s.ledger.Invalidate(ctx, rec.DeadlineID); cleanErr != nil {
					recLogger.WithError(cleanErr).Error("Orphan record cleanup failed")
				}
				continue
			}
			recLogger.WithError(err).Error("Failed to load deadline for stale record")
			continue
		}

		if rec.Threshold != notification.ThresholdOnDue && !d.DueAt.After(now) {
			recLogger.Warn("Due instant passed before delivery, closing record as FAILED")
			if failErr := s.ledger.ConfirmFailed(ctx, rec.ID, rec.Attempts); failErr != nil {
				recLogger.WithError(failErr).Error("Failed to close stale record")
			}
			continue
		}

		settings, err := s.settingsRepo.GetOrCreate(ctx, d.UserID)
		if err != nil {
			recLogger.WithError(err).Error("Failed to load settings for stale record")
			continue
		}
		ok := s.sink.Enqueue(DispatchJob{
			RecordID:   rec.ID,
			DeadlineID: d.ID,
			ChatID:     d.UserID,
			Threshold:  rec.Threshold,
			Text:       reminderText(d, rec.Threshold, settings.Timezone),
		})
		if !ok {
			// Queue saturated: leave the record untouched so this cycle does
			// not burn an attempt without a send.
			recLogger.Warn("Dispatch queue full, stale record left for next reconciliation")
			continue
		}
		if err := s.ledger.TouchAttempt(ctx, rec.ID); err != nil {
			recLogger.WithError(err).Error("Failed to record re-dispatch attempt")
			continue
		}
		recLogger.WithField("attempts", rec.Attempts+1).Info("Stale pending reservation re-dispatched")
	}
}

// HandleOutcome is the dispatcher's terminal-outcome callback. Only the
// scheduler confirms the ledger, keeping confirm idempotent and replay-safe.
func (s *SchedulerServiceImpl) HandleOutcome(job DispatchJob, outcome DispatchOutcome, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	outcomeLogger := s.logger.WithFields(logrus.Fields{
		"record_id":   job.RecordID,
		"deadline_id": job.DeadlineID,
		"threshold":   string(job.Threshold),
		"attempts":    attempts,
	})

	switch outcome {
	case OutcomeSent:
		if err := s.ledger.ConfirmSent(ctx, job.RecordID); err != nil {
			outcomeLogger.WithError(err).Error("Failed to confirm SENT; reconciliation will re-resolve")
			return
		}
		outcomeLogger.Info("Reminder delivered")
	case OutcomeTransientFailure, OutcomePermanentFailure:
		if err := s.ledger.ConfirmFailed(ctx, job.RecordID, attempts); err != nil {
			outcomeLogger.WithError(err).Error("Failed to confirm FAILED")
			return
		}
		outcomeLogger.Warn("Reminder delivery failed terminally")
	}
}

// Status reports the scan cursors and ledger counts. The cursors are
// process-local and reset on restart; the ledger remains the correctness
// source of truth.
func (s *SchedulerServiceImpl) Status(ctx context.Context) (SchedulerStatus, error) {
	pending, failedCount, err := s.ledger.Counts(ctx)
	if err != nil {
		return SchedulerStatus{}, fmt.Errorf("counting ledger records: %w", err)
	}
	s.mu.Lock()
	st := SchedulerStatus{
		LastUpcomingScan:   s.lastUpcomingScan,
		LastReconciliation: s.lastReconciliation,
		PendingCount:       pending,
		FailedCount:        failedCount,
	}
	s.mu.Unlock()
	return st, nil
}

func reminderText(d *deadline.Deadline, t notification.Threshold, tz string) string {
	dueText := notification.FormatInZone(d.DueAt, tz)
	if t == notification.ThresholdOnDue {
		return fmt.Sprintf("❗ Срок по дедлайну «%s» истёк (%s).", d.Title, dueText)
	}
	text := fmt.Sprintf("⏰ Напоминание %s: «%s»\nСрок: %s", t.Label(), d.Title, dueText)
	if d.Description.Valid && d.Description.String != "" {
		text += "\n" + d.Description.String
	}
	return text
}
