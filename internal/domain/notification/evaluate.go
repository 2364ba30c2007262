// internal/domain/notification/evaluate.go
package notification

import "time"

// DueThreshold is one threshold the evaluator found due for dispatch.
type DueThreshold struct {
	Threshold Threshold
	// FireAt is the instant the threshold nominally fired (due - lead).
	FireAt time.Time
	// Late marks thresholds evaluated more than one scan cadence after
	// FireAt (e.g. after scheduler downtime). Observability only; a late
	// threshold still fires once.
	Late bool
}

// Evaluate computes which enabled lead thresholds of a deadline are due at
// 'now'. Pure function; all comparisons in the stored (UTC) instants — the
// user's timezone never enters threshold arithmetic, so DST transitions
// cannot shift a reminder.
//
// A threshold is due iff it is enabled, its fire instant (due - lead) is not
// after 'now', the due instant itself has not passed (reminders never fire
// backward), and the fire instant is at most 'lateGrace' behind 'now'
// (bounded staleness: an overly old miss is skipped, not burst-delivered
// after an outage). Results are ordered by descending lead.
func Evaluate(dueAt time.Time, s *Settings, now time.Time, lateGrace, scanInterval time.Duration) []DueThreshold {
	if !dueAt.After(now) {
		return nil
	}
	var due []DueThreshold
	for _, t := range AllLeadThresholds {
		if !s.Enabled(t) {
			continue
		}
		fireAt := dueAt.Add(-t.Lead())
		if fireAt.After(now) {
			continue
		}
		elapsed := now.Sub(fireAt)
		if elapsed > lateGrace {
			continue
		}
		due = append(due, DueThreshold{
			Threshold: t,
			FireAt:    fireAt,
			Late:      elapsed > scanInterval,
		})
	}
	return due
}
