package notification

import (
	"testing"
	"time"
)

func allEnabledSettings() *Settings {
	return &Settings{
		UserID:      1,
		NotifyOnDue: true,
		Notify1Hour: true,
		Notify3Hrs:  true,
		Notify1Day:  true,
		Notify3Days: true,
		Notify1Week: true,
		Timezone:    "UTC",
	}
}

func TestEvaluateDueThresholds(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	grace := 10 * time.Minute
	interval := time.Minute

	tests := []struct {
		name     string
		dueAt    time.Time
		settings *Settings
		now      time.Time
		want     []Threshold
	}{
		{
			name:     "nothing due far ahead of the widest window",
			dueAt:    base.Add(8 * 24 * time.Hour),
			settings: allEnabledSettings(),
			now:      base,
			want:     nil,
		},
		{
			name:     "one day threshold fires at its instant",
			dueAt:    base.Add(24 * time.Hour),
			settings: allEnabledSettings(),
			now:      base,
			want:     []Threshold{Threshold1Day},
		},
		{
			name:     "one day threshold not yet due one minute early",
			dueAt:    base.Add(24*time.Hour + time.Minute),
			settings: allEnabledSettings(),
			now:      base,
			want:     nil,
		},
		{
			name:     "disabled threshold never fires",
			dueAt:    base.Add(24 * time.Hour),
			settings: &Settings{UserID: 1, Notify1Week: true, Timezone: "UTC"},
			now:      base,
			want:     nil,
		},
		{
			name:     "miss older than grace is skipped",
			dueAt:    base.Add(24 * time.Hour),
			settings: allEnabledSettings(),
			now:      base.Add(grace + time.Second),
			want:     nil,
		},
		{
			name:     "miss at exactly grace still fires",
			dueAt:    base.Add(24 * time.Hour),
			settings: allEnabledSettings(),
			now:      base.Add(grace),
			want:     []Threshold{Threshold1Day},
		},
		{
			name:     "past due deadline fires nothing",
			dueAt:    base,
			settings: allEnabledSettings(),
			now:      base,
			want:     nil,
		},
		{
			name:     "only the threshold inside grace fires",
			dueAt:    base.Add(3 * time.Hour).Add(5 * time.Minute),
			settings: allEnabledSettings(),
			now:      base.Add(10 * time.Minute),
			want:     []Threshold{Threshold3Hours},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.dueAt, tt.settings, tt.now, grace, interval)
			if len(got) != len(tt.want) {
				t.Fatalf("Evaluate() returned %d thresholds, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, dt := range got {
				if dt.Threshold != tt.want[i] {
					t.Errorf("Evaluate()[%d] = %s, want %s", i, dt.Threshold, tt.want[i])
				}
			}
		})
	}
}

func TestEvaluateOrderedByDescendingLead(t *testing.T) {
	// A tiny generous grace makes several windows overlap at once; the output
	// must still come out largest lead first.
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dueAt := base.Add(time.Hour).Add(30 * time.Second)
	now := base.Add(time.Minute)
	grace := 30 * 24 * time.Hour

	got := Evaluate(dueAt, allEnabledSettings(), now, grace, time.Minute)
	want := []Threshold{Threshold1Week, Threshold3Days, Threshold1Day, Threshold3Hours, Threshold1Hour}
	if len(got) != len(want) {
		t.Fatalf("Evaluate() returned %d thresholds, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Threshold != want[i] {
			t.Errorf("Evaluate()[%d] = %s, want %s", i, got[i].Threshold, want[i])
		}
	}
}

func TestEvaluateLateFlag(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dueAt := base.Add(24 * time.Hour)
	interval := time.Minute

	onTime := Evaluate(dueAt, allEnabledSettings(), base.Add(30*time.Second), 10*time.Minute, interval)
	if len(onTime) != 1 || onTime[0].Late {
		t.Fatalf("threshold evaluated within one cadence must not be late: %+v", onTime)
	}

	late := Evaluate(dueAt, allEnabledSettings(), base.Add(5*time.Minute), 10*time.Minute, interval)
	if len(late) != 1 || !late[0].Late {
		t.Fatalf("threshold evaluated past one cadence must be late: %+v", late)
	}
	wantFire := base
	if !late[0].FireAt.Equal(wantFire) {
		t.Errorf("FireAt = %v, want %v", late[0].FireAt, wantFire)
	}
}

func TestEvaluateNeverFiresLeadAfterDue(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	// Due instant just passed; even with an enormous grace nothing may fire.
	got := Evaluate(base.Add(-time.Second), allEnabledSettings(), base, 365*24*time.Hour, time.Minute)
	if got != nil {
		t.Fatalf("lead thresholds fired for a past-due deadline: %+v", got)
	}
}

func TestMaxLeadIsWidestWindow(t *testing.T) {
	if MaxLead() != 7*24*time.Hour {
		t.Fatalf("MaxLead() = %v, want 168h", MaxLead())
	}
	for _, th := range AllLeadThresholds {
		if th.Lead() > MaxLead() {
			t.Errorf("threshold %s lead %v exceeds MaxLead", th, th.Lead())
		}
	}
}
