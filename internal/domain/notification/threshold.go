// internal/domain/notification/threshold.go
package notification

import "time"

// Threshold identifies a configured reminder lead time before a deadline's
// due instant. Values are stored as-is in the notification_records table.
type Threshold string

const (
	Threshold1Week  Threshold = "1_WEEK"
	Threshold3Days  Threshold = "3_DAYS"
	Threshold1Day   Threshold = "1_DAY"
	Threshold3Hours Threshold = "3_HOURS"
	Threshold1Hour  Threshold = "1_HOUR"
	// ThresholdOnDue is the final "overdue" notice fired once by the
	// reconciliation scan after the due instant has passed.
	ThresholdOnDue Threshold = "ON_DUE"
)

// AllLeadThresholds lists the lead-time thresholds in descending lead order
// (largest lead first). Evaluation iterates in this order so scan output is
// deterministic. ThresholdOnDue is deliberately excluded: it is not a lead
// threshold and is handled by reconciliation only.
var AllLeadThresholds = []Threshold{
	Threshold1Week,
	Threshold3Days,
	Threshold1Day,
	Threshold3Hours,
	Threshold1Hour,
}

// Lead returns the lead duration before the due instant at which the
// threshold fires. ThresholdOnDue has zero lead.
func (t Threshold) Lead() time.Duration {
	switch t {
	case Threshold1Week:
		return 7 * 24 * time.Hour
	case Threshold3Days:
		return 3 * 24 * time.Hour
	case Threshold1Day:
		return 24 * time.Hour
	case Threshold3Hours:
		return 3 * time.Hour
	case Threshold1Hour:
		return time.Hour
	default:
		return 0
	}
}

// Label returns the human-readable Russian label used in reminder messages.
func (t Threshold) Label() string {
	switch t {
	case Threshold1Week:
		return "за неделю"
	case Threshold3Days:
		return "за 3 дня"
	case Threshold1Day:
		return "за день"
	case Threshold3Hours:
		return "за 3 часа"
	case Threshold1Hour:
		return "за час"
	case ThresholdOnDue:
		return "срок истёк"
	default:
		return string(t)
	}
}

// MaxLead returns the widest configured lead window. The upcoming scan uses
// it to bound its deadline query.
func MaxLead() time.Duration {
	return AllLeadThresholds[0].Lead()
}
