package formula

import (
	"time"

	"github.com/tkonate/mesuivi/internal/storage"
)

// SLAState classifies a grievance ticket against its treatment deadline.
type SLAState string

const (
	SLAOnTime  SLAState = "ON_TIME"
	SLAWarning SLAState = "WARNING"
	SLALate    SLAState = "LATE"
)

// SLAPolicy is the grievance treatment window: a ticket is due Days after
// submission and enters the warning state WarnWindow days before that.
type SLAPolicy struct {
	Days       int
	WarnWindow int
}

// DefaultSLAPolicy matches the program's grievance handling rules.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{Days: 21, WarnWindow: 3}
}

// Classify derives the SLA state of a ticket submitted at the given time.
func (p SLAPolicy) Classify(submittedAt, now time.Time) SLAState {
	dueDate := submittedAt.AddDate(0, 0, p.Days)
	remaining := int(dueDate.Sub(now).Hours() / 24)

	switch {
	case remaining < 0:
		return SLALate
	case remaining <= p.WarnWindow:
		return SLAWarning
	default:
		return SLAOnTime
	}
}

// ticketSubmittedAt extracts the submission timestamp of a ticket: the
// survey payload's submitted_at when present and parseable, the record
// creation date otherwise.
func ticketSubmittedAt(t storage.Ticket) time.Time {
	raw := t.Ext().String("submitted_at", "")
	if raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
		if ts, err := time.Parse("2006-01-02", raw); err == nil {
			return ts
		}
	}
	return t.DateCreated
}
