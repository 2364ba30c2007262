// internal/app/dispatcher.go
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"deadline_notification_bot/internal/domain/notification"
	domainTelegram "deadline_notification_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// DispatchJob is one "send this reminder" unit of work. RecordID ties the
// job back to its PENDING ledger reservation.
type DispatchJob struct {
	RecordID   int64
	DeadlineID int64
	ChatID     int64
	Threshold  notification.Threshold
	Text       string
}

// DispatchOutcome is the terminal result of a dispatch job.
type DispatchOutcome int

const (
	OutcomeSent DispatchOutcome = iota
	// OutcomeTransientFailure means the retry budget was exhausted on
	// retryable errors (throttling, network).
	OutcomeTransientFailure
	// OutcomePermanentFailure means the recipient is unreachable (blocked
	// the bot, deactivated account); retrying is pointless.
	OutcomePermanentFailure
)

// OutcomeHandler receives terminal outcomes. The dispatcher never writes the
// ledger itself; confirmation stays with the scheduler so the ledger remains
// the single source of truth.
type OutcomeHandler func(job DispatchJob, outcome DispatchOutcome, attempts int)

// DispatcherConfig holds the throttling and retry knobs.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	RetryBudget int           // max send attempts per job
	BackoffBase time.Duration // first transient-retry delay, doubled per attempt
	RateLimit   int           // max outbound calls per RateWindow
	RateWindow  time.Duration
}

// sendThrottle caps outbound calls at maxCalls per fixed window. A token
// bucket refills continuously and lets a cold start spend a full burst plus
// the window's refill in the same window, so a hard per-window ceiling needs
// the counter form.
type sendThrottle struct {
	mu          sync.Mutex
	maxCalls    int
	window      time.Duration
	windowStart time.Time
	count       int
}

func newSendThrottle(maxCalls int, window time.Duration) *sendThrottle {
	return &sendThrottle{maxCalls: maxCalls, window: window}
}

// wait blocks until the current window has a free slot, claiming it.
func (t *sendThrottle) wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		now := time.Now()
		if t.windowStart.IsZero() || now.Sub(t.windowStart) >= t.window {
			t.windowStart = now
			t.count = 0
		}
		if t.count < t.maxCalls {
			t.count++
			t.mu.Unlock()
			return nil
		}
		sleep := t.window - now.Sub(t.windowStart)
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// Dispatcher drains a bounded queue of reminder jobs through a worker pool,
// throttled by a process-wide per-window counter so outbound traffic never
// exceeds the messaging provider's ceiling.
type Dispatcher struct {
	client   domainTelegram.Client
	throttle *sendThrottle
	queue    chan DispatchJob
	cfg      DispatcherConfig
	logger   *logrus.Entry

	onOutcome OutcomeHandler

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewDispatcher(cfg DispatcherConfig, client domainTelegram.Client, logger *logrus.Entry) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	return &Dispatcher{
		client:   client,
		throttle: newSendThrottle(cfg.RateLimit, cfg.RateWindow),
		queue:    make(chan DispatchJob, cfg.QueueSize),
		cfg:      cfg,
		logger:   logger,
	}
}

// OnOutcome registers the terminal-outcome callback. Must be called before
// Start.
func (d *Dispatcher) OnOutcome(h OutcomeHandler) {
	d.onOutcome = h
}

// Enqueue hands a job to the worker pool without blocking. It returns false
// when the queue is full; the caller's PENDING reservation is then picked up
// again by the next reconciliation scan, so dropping here is safe.
func (d *Dispatcher) Enqueue(job DispatchJob) bool {
	select {
	case d.queue <- job:
		return true
	default:
		d.logger.WithFields(logrus.Fields{
			"record_id":   job.RecordID,
			"deadline_id": job.DeadlineID,
		}).Warn("Dispatch queue full, job deferred to reconciliation")
		return false
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case job := <-d.queue:
					d.process(runCtx, job)
				}
			}
		}(i)
	}
	d.logger.WithFields(logrus.Fields{
		"workers":     d.cfg.Workers,
		"rate_limit":  d.cfg.RateLimit,
		"rate_window": d.cfg.RateWindow.String(),
	}).Info("Dispatcher started")
}

// Stop cancels the workers and waits for in-flight jobs to drain, bounded by
// the context deadline. Jobs still queued keep their PENDING reservations and
// are re-dispatched after the next start.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("Dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("Dispatcher stop timed out with jobs in flight")
	}
}

// process performs the rate-limited send with in-worker retries, then
// reports exactly one terminal outcome.
func (d *Dispatcher) process(ctx context.Context, job DispatchJob) {
	jobLogger := d.logger.WithFields(logrus.Fields{
		"record_id":   job.RecordID,
		"deadline_id": job.DeadlineID,
		"threshold":   string(job.Threshold),
		"chat_id":     job.ChatID,
	})

	for attempt := 1; ; attempt++ {
		if err := d.throttle.wait(ctx); err != nil {
			// Shutdown while waiting on a permit: leave the reservation
			// PENDING for the next process start.
			return
		}

		err := d.client.SendMessage(job.ChatID, job.Text, nil)
		if err == nil {
			d.report(job, OutcomeSent, attempt)
			return
		}

		if isPermanentSendError(err) {
			jobLogger.WithError(err).Warn("Recipient unreachable, giving up")
			d.report(job, OutcomePermanentFailure, attempt)
			return
		}

		if attempt >= d.cfg.RetryBudget {
			jobLogger.WithError(err).WithField("attempts", attempt).Error("Retry budget exhausted")
			d.report(job, OutcomeTransientFailure, attempt)
			return
		}

		delay := retryDelay(err, d.cfg.BackoffBase, attempt)
		jobLogger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("Transient send failure, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (d *Dispatcher) report(job DispatchJob, outcome DispatchOutcome, attempts int) {
	if d.onOutcome != nil {
		d.onOutcome(job, outcome, attempts)
	}
}

// isPermanentSendError classifies transport errors. Anything not provably
// permanent is treated as transient, which errs on the side of retrying.
func isPermanentSendError(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound)
}

// retryDelay doubles the base delay per attempt; a Telegram flood signal
// overrides it with the provider's own retry-after hint.
func retryDelay(err error, base time.Duration, attempt int) time.Duration {
	var flood telebot.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return base << (attempt - 1)
}
