package diagnostic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/model"
)

// Archiver persists recorded events outside the in-memory store. Archiving
// is best-effort: a failing archiver never fails Record.
type Archiver interface {
	Archive(ctx context.Context, event model.Event) error
}

// AlertSink receives escalation and health-change notifications. Publishing
// is best-effort as well.
type AlertSink interface {
	Publish(alert model.Alert) error
}

// Filter narrows a Query. Zero values leave the corresponding dimension
// unfiltered.
type Filter struct {
	Since    time.Time
	Code     string
	Severity model.Severity
}

// Aggregator is the diagnostic health aggregator: an in-memory, append-only
// event log per stream with derived health, trend, escalation, and
// recommendation views. One instance is shared at the composition root;
// nothing in this package holds process-global state.
type Aggregator struct {
	logger   *zap.Logger
	cfg      Config
	store    *store
	archiver Archiver
	sink     AlertSink

	// writeMu serializes recorders. Timestamp assignment, the append, and
	// the surrounding health computations must happen as one unit or
	// concurrent Record calls interleave and break chronological order.
	writeMu sync.Mutex

	// now is swapped out in tests to pin window arithmetic
	now func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithArchiver attaches a durable event archive
func WithArchiver(a Archiver) Option {
	return func(agg *Aggregator) { agg.archiver = a }
}

// WithAlertSink attaches an escalation/health-change notification sink
func WithAlertSink(s AlertSink) Option {
	return func(agg *Aggregator) { agg.sink = s }
}

// NewAggregator creates a new aggregator
func NewAggregator(logger *zap.Logger, cfg Config, opts ...Option) *Aggregator {
	cfg = cfg.withDefaults()
	agg := &Aggregator{
		logger: logger.Named("diagnostic"),
		cfg:    cfg,
		store:  newStore(cfg.MaxEventsPerStream),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(agg)
	}
	return agg
}

// Record appends a new immutable event to the named stream, creating the
// stream if absent, and returns the record ID. Record never fails: an
// unknown severity is coerced to info and archiver/sink errors are logged
// and swallowed.
func (a *Aggregator) Record(stream, code string, severity model.Severity, message string, context map[string]string) string {
	if !severity.Valid() {
		severity = model.SeverityInfo
	}

	// Timestamp, before/after health, and the append are one critical
	// section; alerts are decided inside it and published after it so a
	// slow sink never stalls other recorders.
	a.writeMu.Lock()

	event := model.Event{
		ID:         uuid.New().String(),
		Stream:     stream,
		Code:       code,
		Severity:   severity,
		Message:    message,
		Context:    copyContext(context),
		RecordedAt: a.now(),
	}

	before := a.ComputeHealth(stream, a.cfg.HealthWindow)
	a.store.append(event)
	after := a.ComputeHealth(stream, a.cfg.HealthWindow)

	var alerts []model.Alert
	if a.sink != nil {
		if a.isEscalated(event, a.store.events(stream)) {
			alerts = append(alerts, model.Alert{
				ID:        uuid.New().String(),
				Type:      model.AlertTypeEscalation,
				Stream:    stream,
				Code:      code,
				Severity:  severity,
				Message:   fmt.Sprintf("code %s repeated %d+ times within %s", code, a.cfg.EscalationThreshold, a.cfg.EscalationWindow),
				Data:      map[string]string{"event_id": event.ID},
				CreatedAt: event.RecordedAt,
			})
		}
		if after != before {
			alerts = append(alerts, model.Alert{
				ID:        uuid.New().String(),
				Type:      model.AlertTypeHealthChange,
				Stream:    stream,
				Severity:  severity,
				Health:    after,
				Message:   fmt.Sprintf("stream health changed from %s to %s", before, after),
				CreatedAt: event.RecordedAt,
			})
		}
	}

	a.writeMu.Unlock()

	a.archive(event)
	for _, alert := range alerts {
		a.notify(alert)
	}

	return event.ID
}

// Query returns the stream's matching events in chronological order.
// Escalation is derived per event over the escalation window ending at the
// event's own timestamp; the records themselves are never mutated.
func (a *Aggregator) Query(stream string, filter Filter) []model.EventView {
	events := a.store.events(stream)

	views := make([]model.EventView, 0, len(events))
	for _, event := range events {
		if !filter.Since.IsZero() && event.RecordedAt.Before(filter.Since) {
			continue
		}
		if filter.Code != "" && event.Code != filter.Code {
			continue
		}
		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		views = append(views, model.EventView{
			Event:     event,
			Escalated: a.isEscalated(event, events),
		})
	}
	return views
}

// ComputeHealth derives the stream's health from the trailing window. It is
// a pure function of the window contents: any critical event yields
// emergency, too many degraded events yield critical, too many warnings
// yield degraded, an empty window is optimal, anything else is normal.
func (a *Aggregator) ComputeHealth(stream string, window time.Duration) model.HealthState {
	since := a.now().Add(-window)

	var counts model.SeverityCounts
	for _, event := range a.store.events(stream) {
		if event.RecordedAt.Before(since) {
			continue
		}
		counts.Add(event.Severity)
	}

	switch {
	case counts.Critical > 0:
		return model.HealthEmergency
	case counts.Degraded > a.cfg.DegradedEventLimit:
		return model.HealthCritical
	case counts.Warning > a.cfg.WarningEventLimit:
		return model.HealthDegraded
	case counts.Total() == 0:
		return model.HealthOptimal
	default:
		return model.HealthNormal
	}
}

// ClassifyTrend compares the error ratio of the current window against the
// immediately preceding window of equal length. An empty window on either
// side yields stable; there is never a division by zero.
func (a *Aggregator) ClassifyTrend(stream string, window time.Duration) model.Trend {
	now := a.now()
	events := a.store.events(stream)

	currentTotal, currentErrors := windowCounts(events, now.Add(-window), time.Time{})
	priorTotal, priorErrors := windowCounts(events, now.Add(-2*window), now.Add(-window))

	if currentTotal == 0 || priorTotal == 0 {
		return model.TrendStable
	}

	delta := float64(currentErrors)/float64(currentTotal) - float64(priorErrors)/float64(priorTotal)
	switch {
	case delta > a.cfg.TrendDelta:
		return model.TrendIncreasing
	case delta < -a.cfg.TrendDelta:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// EscalatedCodes returns the classification codes currently at or over the
// escalation threshold, sorted for deterministic output
func (a *Aggregator) EscalatedCodes(stream string) []string {
	counts := a.escalatedCodeCounts(stream)

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// escalatedCodeCounts returns the in-window occurrence count of every code
// currently at or over the escalation threshold
func (a *Aggregator) escalatedCodeCounts(stream string) map[string]int {
	since := a.now().Add(-a.cfg.EscalationWindow)

	counts := make(map[string]int)
	for _, event := range a.store.events(stream) {
		if event.RecordedAt.Before(since) {
			continue
		}
		if !event.Severity.AtLeast(model.SeverityDegraded) {
			continue
		}
		counts[event.Code]++
	}

	for code, n := range counts {
		if n < a.cfg.EscalationThreshold {
			delete(counts, code)
		}
	}
	return counts
}

// topEscalatedCodes ranks the escalated codes by in-window occurrence count
// (ties alphabetical) and bounds the list for summaries
func (a *Aggregator) topEscalatedCodes(stream string) []string {
	counts := a.escalatedCodeCounts(stream)

	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})

	if len(codes) > a.cfg.TopEscalatedCodes {
		codes = codes[:a.cfg.TopEscalatedCodes]
	}
	return codes
}

// Summarize assembles the stream's derived state into one immutable
// snapshot. An unknown stream yields a well-defined empty summary rather
// than an error.
func (a *Aggregator) Summarize(stream string) model.StreamSummary {
	since := a.now().Add(-a.cfg.HealthWindow)

	var counts model.SeverityCounts
	for _, event := range a.store.events(stream) {
		if event.RecordedAt.Before(since) {
			continue
		}
		counts.Add(event.Severity)
	}

	health := a.ComputeHealth(stream, a.cfg.HealthWindow)
	trend := a.ClassifyTrend(stream, a.cfg.HealthWindow)
	escalated := a.topEscalatedCodes(stream)

	return model.StreamSummary{
		Stream:          stream,
		Health:          health,
		Trend:           trend,
		Counts:          counts,
		TotalEvents:     a.store.len(stream),
		EscalatedCodes:  escalated,
		Recommendations: Recommend(health, trend, escalated),
	}
}

// Streams returns all known stream keys in sorted order
func (a *Aggregator) Streams() []string {
	return a.store.keys()
}

// Report rolls every stream up into one system-wide snapshot
func (a *Aggregator) Report() model.SystemReport {
	keys := a.store.keys()

	report := model.SystemReport{
		GeneratedAt: a.now(),
		StreamCount: len(keys),
	}

	healthy := 0
	for _, key := range keys {
		summary := a.Summarize(key)
		report.Summaries = append(report.Summaries, summary)

		report.Counts.Info += summary.Counts.Info
		report.Counts.Warning += summary.Counts.Warning
		report.Counts.Degraded += summary.Counts.Degraded
		report.Counts.Critical += summary.Counts.Critical

		if summary.Health.Rank() <= model.HealthNormal.Rank() {
			healthy++
		}

		report.TopOffenders = append(report.TopOffenders, model.StreamHealth{
			Stream: key,
			Health: summary.Health,
			Errors: summary.Counts.Warning + summary.Counts.Degraded + summary.Counts.Critical,
		})
	}

	if len(keys) > 0 {
		report.PercentHealthy = float64(healthy) / float64(len(keys)) * 100
	} else {
		report.PercentHealthy = 100
	}

	sort.SliceStable(report.TopOffenders, func(i, j int) bool {
		if report.TopOffenders[i].Health.Rank() != report.TopOffenders[j].Health.Rank() {
			return report.TopOffenders[i].Health.Rank() > report.TopOffenders[j].Health.Rank()
		}
		return report.TopOffenders[i].Errors > report.TopOffenders[j].Errors
	})
	if len(report.TopOffenders) > a.cfg.TopOffenders {
		report.TopOffenders = report.TopOffenders[:a.cfg.TopOffenders]
	}

	return report
}

// isEscalated reports whether the event's code recurred at degraded-or-worse
// severity often enough within the escalation window ending at the event
func (a *Aggregator) isEscalated(event model.Event, events []model.Event) bool {
	if !event.Severity.AtLeast(model.SeverityDegraded) {
		return false
	}

	since := event.RecordedAt.Add(-a.cfg.EscalationWindow)
	count := 0
	for _, other := range events {
		if other.Code != event.Code {
			continue
		}
		if !other.Severity.AtLeast(model.SeverityDegraded) {
			continue
		}
		if other.RecordedAt.Before(since) || other.RecordedAt.After(event.RecordedAt) {
			continue
		}
		count++
	}
	return count >= a.cfg.EscalationThreshold
}

func (a *Aggregator) archive(event model.Event) {
	if a.archiver == nil {
		return
	}
	if err := a.archiver.Archive(context.Background(), event); err != nil {
		a.logger.Warn("Failed to archive event",
			zap.String("event_id", event.ID),
			zap.String("stream", event.Stream),
			zap.Error(err))
	}
}

func (a *Aggregator) notify(alert model.Alert) {
	if err := a.sink.Publish(alert); err != nil {
		a.logger.Warn("Failed to publish alert",
			zap.String("alert_id", alert.ID),
			zap.String("stream", alert.Stream),
			zap.Error(err))
	}
}

// windowCounts counts events with since <= t < until and how many of them
// are warning or worse. A zero until leaves the window open-ended.
func windowCounts(events []model.Event, since, until time.Time) (total, errors int) {
	for _, event := range events {
		if event.RecordedAt.Before(since) {
			continue
		}
		if !until.IsZero() && !event.RecordedAt.Before(until) {
			continue
		}
		total++
		if event.Severity.AtLeast(model.SeverityWarning) {
			errors++
		}
	}
	return total, errors
}

func copyContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
