package model

import "time"

// HealthState represents the derived health of a diagnostic stream
type HealthState string

const (
	HealthOptimal   HealthState = "optimal"
	HealthNormal    HealthState = "normal"
	HealthDegraded  HealthState = "degraded"
	HealthCritical  HealthState = "critical"
	HealthEmergency HealthState = "emergency"
)

var healthRanks = map[HealthState]int{
	HealthOptimal:   0,
	HealthNormal:    1,
	HealthDegraded:  2,
	HealthCritical:  3,
	HealthEmergency: 4,
}

// Rank returns the numeric order of the health state (emergency is highest)
func (h HealthState) Rank() int {
	return healthRanks[h]
}

// Trend classifies the window-over-window movement of a stream's error ratio
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// SeverityCounts holds per-severity event counts for a window or stream
type SeverityCounts struct {
	Info     int `json:"info"`
	Warning  int `json:"warning"`
	Degraded int `json:"degraded"`
	Critical int `json:"critical"`
}

// Add increments the counter matching the given severity
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityInfo:
		c.Info++
	case SeverityWarning:
		c.Warning++
	case SeverityDegraded:
		c.Degraded++
	case SeverityCritical:
		c.Critical++
	}
}

// Total returns the sum of all severity counters
func (c SeverityCounts) Total() int {
	return c.Info + c.Warning + c.Degraded + c.Critical
}

// RecommendationSet buckets generated advice by urgency. The three buckets
// are a partition of one generated list, not separately computed output.
type RecommendationSet struct {
	Immediate []string `json:"immediate"`
	ShortTerm []string `json:"short_term"`
	LongTerm  []string `json:"long_term"`
}

// All returns the recommendations as a single ordered list,
// immediate first.
func (r RecommendationSet) All() []string {
	all := make([]string, 0, len(r.Immediate)+len(r.ShortTerm)+len(r.LongTerm))
	all = append(all, r.Immediate...)
	all = append(all, r.ShortTerm...)
	all = append(all, r.LongTerm...)
	return all
}

// StreamSummary is an immutable snapshot of a stream's derived state,
// assembled for rendering or API serialization
type StreamSummary struct {
	Stream          string            `json:"stream"`
	Health          HealthState       `json:"health"`
	Trend           Trend             `json:"trend"`
	Counts          SeverityCounts    `json:"counts"`
	TotalEvents     int               `json:"total_events"`
	EscalatedCodes  []string          `json:"escalated_codes"`
	Recommendations RecommendationSet `json:"recommendations"`
}

// StreamHealth pairs a stream key with its current health for ranking
type StreamHealth struct {
	Stream string      `json:"stream"`
	Health HealthState `json:"health"`
	Errors int         `json:"errors"`
}

// SystemReport rolls all streams up into one snapshot
type SystemReport struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	StreamCount    int             `json:"stream_count"`
	PercentHealthy float64         `json:"percent_healthy"`
	Counts         SeverityCounts  `json:"counts"`
	TopOffenders   []StreamHealth  `json:"top_offenders"`
	Summaries      []StreamSummary `json:"summaries"`
}
