package diagnostic

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, *fakeClock) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	agg := NewAggregator(logger, cfg)
	agg.now = clock.Now
	return agg, clock
}

func TestAggregator_QueryChronologicalOrder(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	for i := 0; i < 20; i++ {
		agg.Record("repo.alpha", fmt.Sprintf("alpha.op.%d", i%3), model.SeverityInfo, "op completed", nil)
		clock.Advance(time.Second)
	}

	views := agg.Query("repo.alpha", Filter{})
	require.Len(t, views, 20)
	for i := 1; i < len(views); i++ {
		require.False(t, views[i].RecordedAt.Before(views[i-1].RecordedAt),
			"events out of order at index %d", i)
	}
}

func TestAggregator_QueryFilters(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.fetch", model.SeverityInfo, "ok", nil)
	clock.Advance(time.Minute)
	cutoff := clock.Now()
	agg.Record("repo.alpha", "alpha.fetch", model.SeverityWarning, "slow", nil)
	agg.Record("repo.alpha", "alpha.parse", model.SeverityWarning, "bad yaml", nil)

	require.Len(t, agg.Query("repo.alpha", Filter{Since: cutoff}), 2)
	require.Len(t, agg.Query("repo.alpha", Filter{Code: "alpha.fetch"}), 2)
	require.Len(t, agg.Query("repo.alpha", Filter{Severity: model.SeverityWarning}), 2)
	require.Len(t, agg.Query("repo.alpha", Filter{Code: "alpha.parse", Severity: model.SeverityWarning}), 1)
}

func TestAggregator_RecordCoercesUnknownSeverity(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	id := agg.Record("repo.alpha", "alpha.op", model.Severity("bogus"), "whatever", nil)
	require.NotEmpty(t, id)

	views := agg.Query("repo.alpha", Filter{})
	require.Len(t, views, 1)
	require.Equal(t, model.SeverityInfo, views[0].Severity)
}

func TestAggregator_FIFOEviction(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{MaxEventsPerStream: 5})

	for i := 0; i < 6; i++ {
		agg.Record("repo.alpha", fmt.Sprintf("alpha.op.%d", i), model.SeverityInfo, "op", nil)
		clock.Advance(time.Second)
	}

	views := agg.Query("repo.alpha", Filter{})
	require.Len(t, views, 5)
	require.Equal(t, "alpha.op.1", views[0].Code, "oldest event should have been evicted")
	require.Equal(t, "alpha.op.5", views[4].Code)
}

func TestAggregator_ComputeHealthEmergencyOnCritical(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.crash", model.SeverityCritical, "boom", nil)
	require.Equal(t, model.HealthEmergency, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_ComputeHealthDegradedOnWarnings(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	for i := 0; i < 6; i++ {
		agg.Record("repo.alpha", "alpha.slow", model.SeverityWarning, "slow", nil)
	}
	require.Equal(t, model.HealthDegraded, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_ComputeHealthCriticalOnDegraded(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	for i := 0; i < 3; i++ {
		agg.Record("repo.alpha", "alpha.db", model.SeverityDegraded, "db slow", nil)
	}
	require.Equal(t, model.HealthCritical, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_ComputeHealthStates(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	require.Equal(t, model.HealthOptimal, agg.ComputeHealth("repo.empty", time.Hour))

	agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
	require.Equal(t, model.HealthNormal, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_ComputeHealthIsPure(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.slow", model.SeverityWarning, "slow", nil)
	before := agg.ComputeHealth("repo.alpha", time.Hour)

	// Activity on unrelated streams must not change the result
	agg.Record("repo.beta", "beta.crash", model.SeverityCritical, "boom", nil)
	agg.Record("repo.gamma", "gamma.db", model.SeverityDegraded, "db slow", nil)

	require.Equal(t, before, agg.ComputeHealth("repo.alpha", time.Hour))
	require.Equal(t, before, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_HealthWindowExpiry(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.crash", model.SeverityCritical, "boom", nil)
	require.Equal(t, model.HealthEmergency, agg.ComputeHealth("repo.alpha", time.Hour))

	clock.Advance(2 * time.Hour)
	require.Equal(t, model.HealthOptimal, agg.ComputeHealth("repo.alpha", time.Hour))
}

func TestAggregator_EscalationWithinWindow(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.db.conn", model.SeverityCritical, "conn refused", nil)
	clock.Advance(time.Minute)
	agg.Record("repo.alpha", "alpha.db.conn", model.SeverityCritical, "conn refused", nil)
	clock.Advance(time.Minute)
	agg.Record("repo.alpha", "alpha.db.conn", model.SeverityCritical, "conn refused", nil)

	views := agg.Query("repo.alpha", Filter{})
	require.Len(t, views, 3)
	require.False(t, views[0].Escalated)
	require.False(t, views[1].Escalated)
	require.True(t, views[2].Escalated, "third occurrence within five minutes must escalate")

	// Subsequent occurrences stay escalated
	clock.Advance(time.Minute)
	agg.Record("repo.alpha", "alpha.db.conn", model.SeverityCritical, "conn refused", nil)
	views = agg.Query("repo.alpha", Filter{})
	require.True(t, views[3].Escalated)

	require.Equal(t, []string{"alpha.db.conn"}, agg.EscalatedCodes("repo.alpha"))
}

func TestAggregator_NoEscalationOutsideWindow(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	for i := 0; i < 3; i++ {
		agg.Record("repo.alpha", "alpha.db.conn", model.SeverityCritical, "conn refused", nil)
		clock.Advance(5*time.Minute + time.Second)
	}

	for _, view := range agg.Query("repo.alpha", Filter{}) {
		require.False(t, view.Escalated, "events spaced past the window must not escalate")
	}
	require.Empty(t, agg.EscalatedCodes("repo.alpha"))
}

func TestAggregator_EscalationIgnoresLowSeverity(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	for i := 0; i < 5; i++ {
		agg.Record("repo.alpha", "alpha.slow", model.SeverityWarning, "slow", nil)
	}

	for _, view := range agg.Query("repo.alpha", Filter{}) {
		require.False(t, view.Escalated)
	}
	require.Empty(t, agg.EscalatedCodes("repo.alpha"))
}

func TestAggregator_TrendStableOnEmptyWindows(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	// Empty stream: no data at all
	require.Equal(t, model.TrendStable, agg.ClassifyTrend("repo.empty", time.Hour))

	// Events only in the current window, nothing in the prior one
	agg.Record("repo.alpha", "alpha.crash", model.SeverityCritical, "boom", nil)
	require.Equal(t, model.TrendStable, agg.ClassifyTrend("repo.alpha", time.Hour))

	// Events only in the prior window, nothing current
	clock.Advance(90 * time.Minute)
	require.Equal(t, model.TrendStable, agg.ClassifyTrend("repo.alpha", time.Hour))
}

func TestAggregator_TrendIncreasing(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	// Prior window: all healthy
	for i := 0; i < 10; i++ {
		agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
	}

	// Current window: half the events are warnings
	clock.Advance(time.Hour + time.Minute)
	for i := 0; i < 5; i++ {
		agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
		agg.Record("repo.alpha", "alpha.op", model.SeverityWarning, "slow", nil)
	}

	require.Equal(t, model.TrendIncreasing, agg.ClassifyTrend("repo.alpha", time.Hour))
}

func TestAggregator_TrendDecreasing(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	for i := 0; i < 5; i++ {
		agg.Record("repo.alpha", "alpha.op", model.SeverityWarning, "slow", nil)
	}

	clock.Advance(time.Hour + time.Minute)
	for i := 0; i < 10; i++ {
		agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
	}

	require.Equal(t, model.TrendDecreasing, agg.ClassifyTrend("repo.alpha", time.Hour))
}

func TestAggregator_TrendStableWithinDelta(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	for i := 0; i < 10; i++ {
		severity := model.SeverityInfo
		if i < 5 {
			severity = model.SeverityWarning
		}
		agg.Record("repo.alpha", "alpha.op", severity, "op", nil)
	}

	clock.Advance(time.Hour + time.Minute)
	for i := 0; i < 10; i++ {
		severity := model.SeverityInfo
		if i < 5 {
			severity = model.SeverityWarning
		}
		agg.Record("repo.alpha", "alpha.op", severity, "op", nil)
	}

	require.Equal(t, model.TrendStable, agg.ClassifyTrend("repo.alpha", time.Hour))
}

func TestAggregator_SummarizeIdempotent(t *testing.T) {
	agg, clock := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.slow", model.SeverityWarning, "slow", nil)
	clock.Advance(time.Second)
	agg.Record("repo.alpha", "alpha.db", model.SeverityDegraded, "db slow", nil)

	first := agg.Summarize("repo.alpha")
	second := agg.Summarize("repo.alpha")
	require.Equal(t, first, second)
}

func TestAggregator_SummarizeUnknownStream(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	summary := agg.Summarize("repo.nowhere")
	require.Equal(t, "repo.nowhere", summary.Stream)
	require.Equal(t, model.HealthOptimal, summary.Health)
	require.Equal(t, model.TrendStable, summary.Trend)
	require.Equal(t, 0, summary.Counts.Total())
	require.Zero(t, summary.TotalEvents)
	require.Empty(t, summary.EscalatedCodes)
}

func TestAggregator_SummarizeCounts(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
	agg.Record("repo.alpha", "alpha.slow", model.SeverityWarning, "slow", nil)
	agg.Record("repo.alpha", "alpha.db", model.SeverityDegraded, "db slow", nil)
	agg.Record("repo.alpha", "alpha.crash", model.SeverityCritical, "boom", nil)

	summary := agg.Summarize("repo.alpha")
	require.Equal(t, model.SeverityCounts{Info: 1, Warning: 1, Degraded: 1, Critical: 1}, summary.Counts)
	require.Equal(t, 4, summary.TotalEvents)
	require.Equal(t, model.HealthEmergency, summary.Health)
}

func TestAggregator_Report(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{TopOffenders: 2})

	agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", nil)
	agg.Record("repo.beta", "beta.crash", model.SeverityCritical, "boom", nil)
	agg.Record("repo.gamma", "gamma.slow", model.SeverityWarning, "slow", nil)

	report := agg.Report()
	require.Equal(t, 3, report.StreamCount)
	require.InDelta(t, 100.0*2/3, report.PercentHealthy, 0.01)
	require.Len(t, report.TopOffenders, 2)
	require.Equal(t, "repo.beta", report.TopOffenders[0].Stream)
	require.Equal(t, model.SeverityCounts{Info: 1, Warning: 1, Degraded: 0, Critical: 1}, report.Counts)
}

func TestAggregator_ReportEmpty(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	report := agg.Report()
	require.Zero(t, report.StreamCount)
	require.Equal(t, 100.0, report.PercentHealthy)
	require.Empty(t, report.TopOffenders)
}

func TestAggregator_StreamsSorted(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	agg.Record("repo.gamma", "op", model.SeverityInfo, "ok", nil)
	agg.Record("repo.alpha", "op", model.SeverityInfo, "ok", nil)
	agg.Record("repo.beta", "op", model.SeverityInfo, "ok", nil)

	require.Equal(t, []string{"repo.alpha", "repo.beta", "repo.gamma"}, agg.Streams())
}

func TestAggregator_ContextIsCopied(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{})

	context := map[string]string{"repo": "acme/widgets"}
	agg.Record("repo.alpha", "alpha.op", model.SeverityInfo, "ok", context)
	context["repo"] = "mutated"

	views := agg.Query("repo.alpha", Filter{})
	require.Equal(t, "acme/widgets", views[0].Context["repo"])
}

func TestAggregator_ConcurrentRecordKeepsChronologicalOrder(t *testing.T) {
	const workers = 8
	const perWorker = 500

	logger, _ := zap.NewDevelopment()
	agg := NewAggregator(logger, Config{MaxEventsPerStream: workers * perWorker})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				agg.Record("repo.shared", fmt.Sprintf("shared.op.%d", w), model.SeverityInfo, "op completed", nil)
			}
		}(w)
	}
	wg.Wait()

	views := agg.Query("repo.shared", Filter{})
	require.Len(t, views, workers*perWorker)
	for i := 1; i < len(views); i++ {
		require.False(t, views[i].RecordedAt.Before(views[i-1].RecordedAt),
			"events out of order at index %d", i)
	}
}

func TestAggregator_SummarizeBoundsEscalatedCodes(t *testing.T) {
	agg, _ := newTestAggregator(t, Config{TopEscalatedCodes: 2})

	for i := 0; i < 4; i++ {
		agg.Record("repo.alpha", "alpha.push", model.SeverityDegraded, "push failed", nil)
	}
	for i := 0; i < 3; i++ {
		agg.Record("repo.alpha", "alpha.fetch", model.SeverityDegraded, "fetch failed", nil)
		agg.Record("repo.alpha", "alpha.parse", model.SeverityDegraded, "parse failed", nil)
	}

	// EscalatedCodes itself stays unbounded and alphabetical
	require.Equal(t, []string{"alpha.fetch", "alpha.parse", "alpha.push"},
		agg.EscalatedCodes("repo.alpha"))

	// the summary carries only the top codes, most frequent first
	summary := agg.Summarize("repo.alpha")
	require.Equal(t, []string{"alpha.push", "alpha.fetch"}, summary.EscalatedCodes)
}
