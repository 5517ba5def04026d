package model

import "time"

// Severity represents the severity level of a diagnostic event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityDegraded Severity = "degraded"
	SeverityCritical Severity = "critical"
)

// severityRanks orders severities for comparison (critical > degraded > warning > info)
var severityRanks = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityDegraded: 2,
	SeverityCritical: 3,
}

// Rank returns the numeric order of the severity. Unknown severities rank
// below info so they never trip thresholds.
func (s Severity) Rank() int {
	rank, ok := severityRanks[s]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast reports whether s is at least as severe as other
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Valid reports whether s is one of the known severity levels
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// Event represents a single immutable diagnostic occurrence. Once recorded
// an event is never mutated; resolution is modeled by recording a new event
// that references the original via Context["resolves"].
type Event struct {
	ID         string            `json:"id"`
	Stream     string            `json:"stream"`
	Code       string            `json:"code"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Context    map[string]string `json:"context,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// EventView is an Event together with derived attributes computed at read
// time. Escalated is never stored on the record itself.
type EventView struct {
	Event
	Escalated bool `json:"escalated"`
}
