package diagnostic

import "time"

// Config holds the tunables of the aggregator. The numeric defaults mirror
// the dashboard's original behavior but carry no deeper rationale, so every
// one of them can be overridden from configuration.
type Config struct {
	// MaxEventsPerStream caps the retained history per stream. Oldest
	// events are evicted first once the cap is reached.
	MaxEventsPerStream int

	// HealthWindow is the trailing window health is computed over.
	HealthWindow time.Duration

	// EscalationWindow is the trailing window repeated same-code
	// degraded/critical events are counted in.
	EscalationWindow time.Duration

	// EscalationThreshold is the same-code repetition count at which an
	// event is flagged as escalated.
	EscalationThreshold int

	// DegradedEventLimit is the in-window degraded-event count above
	// which health becomes critical.
	DegradedEventLimit int

	// WarningEventLimit is the in-window warning-event count above which
	// health becomes degraded.
	WarningEventLimit int

	// TrendDelta is the window-over-window error-ratio change (as a
	// fraction) beyond which the trend is classified as moving.
	TrendDelta float64

	// TopOffenders bounds the offending-stream list in system reports.
	TopOffenders int

	// TopEscalatedCodes bounds the escalated-code list in stream
	// summaries. EscalatedCodes itself stays unbounded.
	TopEscalatedCodes int
}

// DefaultConfig returns the standard aggregator tuning
func DefaultConfig() Config {
	return Config{
		MaxEventsPerStream:  1000,
		HealthWindow:        time.Hour,
		EscalationWindow:    5 * time.Minute,
		EscalationThreshold: 3,
		DegradedEventLimit:  2,
		WarningEventLimit:   5,
		TrendDelta:          0.10,
		TopOffenders:        5,
		TopEscalatedCodes:   5,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxEventsPerStream <= 0 {
		c.MaxEventsPerStream = def.MaxEventsPerStream
	}
	if c.HealthWindow <= 0 {
		c.HealthWindow = def.HealthWindow
	}
	if c.EscalationWindow <= 0 {
		c.EscalationWindow = def.EscalationWindow
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = def.EscalationThreshold
	}
	if c.DegradedEventLimit <= 0 {
		c.DegradedEventLimit = def.DegradedEventLimit
	}
	if c.WarningEventLimit <= 0 {
		c.WarningEventLimit = def.WarningEventLimit
	}
	if c.TrendDelta <= 0 {
		c.TrendDelta = def.TrendDelta
	}
	if c.TopOffenders <= 0 {
		c.TopOffenders = def.TopOffenders
	}
	if c.TopEscalatedCodes <= 0 {
		c.TopEscalatedCodes = def.TopEscalatedCodes
	}
	return c
}
