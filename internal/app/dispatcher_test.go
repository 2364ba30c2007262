package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gopkg.in/telebot.v3"
)

// scriptedClient returns the scripted error for each call in order, then nil.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int
	times []time.Time
}

func (c *scriptedClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.times = append(c.times, time.Now())
	if c.calls <= len(c.errs) {
		return c.errs[c.calls-1]
	}
	return nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClient) callTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.times))
	copy(out, c.times)
	return out
}

type recordedOutcome struct {
	job      DispatchJob
	outcome  DispatchOutcome
	attempts int
}

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, client *scriptedClient) (*Dispatcher, chan recordedOutcome) {
	t.Helper()
	d := NewDispatcher(cfg, client, discardLogger())
	outcomes := make(chan recordedOutcome, 32)
	d.OnOutcome(func(job DispatchJob, outcome DispatchOutcome, attempts int) {
		outcomes <- recordedOutcome{job: job, outcome: outcome, attempts: attempts}
	})
	d.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d, outcomes
}

func waitOutcome(t *testing.T, outcomes chan recordedOutcome) recordedOutcome {
	t.Helper()
	select {
	case o := <-outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a dispatch outcome")
		return recordedOutcome{}
	}
}

func looseRateConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     1,
		QueueSize:   16,
		RetryBudget: 3,
		BackoffBase: time.Millisecond,
		RateLimit:   1000,
		RateWindow:  time.Second,
	}
}

func TestDispatcherSendsAndReports(t *testing.T) {
	client := &scriptedClient{}
	d, outcomes := newTestDispatcher(t, looseRateConfig(), client)

	if ok := d.Enqueue(DispatchJob{RecordID: 1, DeadlineID: 10, ChatID: 100, Text: "привет"}); !ok {
		t.Fatal("Enqueue returned false on an empty queue")
	}
	o := waitOutcome(t, outcomes)
	if o.outcome != OutcomeSent || o.attempts != 1 {
		t.Fatalf("outcome = %v attempts = %d, want Sent after one attempt", o.outcome, o.attempts)
	}
	if client.callCount() != 1 {
		t.Fatalf("client called %d times, want 1", client.callCount())
	}
}

func TestDispatcherRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{errs: []error{
		errors.New("telegram: bad gateway (502)"),
		errors.New("telegram: bad gateway (502)"),
	}}
	d, outcomes := newTestDispatcher(t, looseRateConfig(), client)

	d.Enqueue(DispatchJob{RecordID: 2, DeadlineID: 11, ChatID: 100, Text: "повтор"})
	o := waitOutcome(t, outcomes)
	if o.outcome != OutcomeSent {
		t.Fatalf("outcome = %v, want Sent", o.outcome)
	}
	if o.attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (two failures then success)", o.attempts)
	}
}

func TestDispatcherExhaustsRetryBudget(t *testing.T) {
	client := &scriptedClient{errs: []error{
		errors.New("telegram: bad gateway (502)"),
		errors.New("telegram: bad gateway (502)"),
		errors.New("telegram: bad gateway (502)"),
		errors.New("telegram: bad gateway (502)"),
	}}
	d, outcomes := newTestDispatcher(t, looseRateConfig(), client)

	d.Enqueue(DispatchJob{RecordID: 3, DeadlineID: 12, ChatID: 100, Text: "не судьба"})
	o := waitOutcome(t, outcomes)
	if o.outcome != OutcomeTransientFailure {
		t.Fatalf("outcome = %v, want TransientFailure", o.outcome)
	}
	if o.attempts != 3 {
		t.Fatalf("attempts = %d, want the full budget of 3", o.attempts)
	}
	if client.callCount() != 3 {
		t.Fatalf("client called %d times, want 3", client.callCount())
	}
}

func TestDispatcherPermanentFailureSkipsRetries(t *testing.T) {
	client := &scriptedClient{errs: []error{telebot.ErrBlockedByUser}}
	d, outcomes := newTestDispatcher(t, looseRateConfig(), client)

	d.Enqueue(DispatchJob{RecordID: 4, DeadlineID: 13, ChatID: 100, Text: "заблокирован"})
	o := waitOutcome(t, outcomes)
	if o.outcome != OutcomePermanentFailure {
		t.Fatalf("outcome = %v, want PermanentFailure", o.outcome)
	}
	if o.attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries for a blocked recipient)", o.attempts)
	}
	if client.callCount() != 1 {
		t.Fatalf("client called %d times, want 1", client.callCount())
	}
}

func TestDispatcherRespectsRateLimit(t *testing.T) {
	// 5 calls per 300ms over 12 jobs needs three windows (5+5+2). No window
	// may carry more than 5 calls even on the cold start, and the last send
	// cannot land before the third window opens.
	client := &scriptedClient{}
	cfg := DispatcherConfig{
		Workers:     4,
		QueueSize:   16,
		RetryBudget: 1,
		BackoffBase: time.Millisecond,
		RateLimit:   5,
		RateWindow:  300 * time.Millisecond,
	}
	d, outcomes := newTestDispatcher(t, cfg, client)

	const jobs = 12
	for i := 0; i < jobs; i++ {
		if ok := d.Enqueue(DispatchJob{RecordID: int64(i + 1), ChatID: 100, Text: "тик"}); !ok {
			t.Fatalf("Enqueue %d returned false", i)
		}
	}
	for i := 0; i < jobs; i++ {
		o := waitOutcome(t, outcomes)
		if o.outcome != OutcomeSent {
			t.Fatalf("job outcome = %v, want Sent", o.outcome)
		}
	}

	times := client.callTimes()
	if len(times) != jobs {
		t.Fatalf("client called %d times, want %d", len(times), jobs)
	}
	// Windows are anchored at the first call; a small margin absorbs the gap
	// between claiming a slot and the recorded call time.
	const margin = 20 * time.Millisecond
	first := times[0]
	inFirstWindow := 0
	for _, ts := range times {
		if ts.Sub(first) < cfg.RateWindow-margin {
			inFirstWindow++
		}
	}
	if inFirstWindow > cfg.RateLimit {
		t.Fatalf("%d calls in the first window, configured ceiling %d", inFirstWindow, cfg.RateLimit)
	}
	if spread := times[len(times)-1].Sub(first); spread < 2*cfg.RateWindow-margin {
		t.Fatalf("12 sends at 5 per window spanned only %v, want at least two full windows", spread)
	}
}

func TestDispatcherFloodRetryAfterOverridesBackoff(t *testing.T) {
	flood := telebot.FloodError{RetryAfter: 7}
	if got := retryDelay(flood, time.Millisecond, 1); got != 7*time.Second {
		t.Fatalf("retryDelay(flood) = %v, want 7s from the provider hint", got)
	}
	if got := retryDelay(errors.New("telegram: bad gateway (502)"), 2*time.Second, 1); got != 2*time.Second {
		t.Fatalf("retryDelay(attempt 1) = %v, want base 2s", got)
	}
	if got := retryDelay(errors.New("telegram: bad gateway (502)"), 2*time.Second, 3); got != 8*time.Second {
		t.Fatalf("retryDelay(attempt 3) = %v, want 8s (doubled per attempt)", got)
	}
}

func TestDispatcherEnqueueFailsWhenFull(t *testing.T) {
	// Never started, so nothing drains the queue.
	d := NewDispatcher(DispatcherConfig{
		Workers:     1,
		QueueSize:   2,
		RetryBudget: 1,
		BackoffBase: time.Millisecond,
		RateLimit:   10,
		RateWindow:  time.Second,
	}, &scriptedClient{}, discardLogger())

	if !d.Enqueue(DispatchJob{RecordID: 1}) || !d.Enqueue(DispatchJob{RecordID: 2}) {
		t.Fatal("queue rejected jobs below capacity")
	}
	if d.Enqueue(DispatchJob{RecordID: 3}) {
		t.Fatal("queue accepted a job beyond capacity")
	}
}
