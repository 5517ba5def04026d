package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/model"
)

// SystemStream is the diagnostic stream runtime samples are recorded into
const SystemStream = "system.runtime"

// SystemProbe samples host CPU and memory usage on an interval and records
// the samples as diagnostic events. Usage past the configured thresholds is
// recorded at warning or degraded severity so the aggregator's health and
// escalation logic applies to the host itself.
type SystemProbe struct {
	logger     *zap.Logger
	aggregator *diagnostic.Aggregator
	interval   time.Duration
	warnPct    float64
	degradePct float64
	stop       chan struct{}
}

// NewSystemProbe creates a new system probe
func NewSystemProbe(logger *zap.Logger, aggregator *diagnostic.Aggregator, interval time.Duration, warnPct, degradePct float64) *SystemProbe {
	return &SystemProbe{
		logger:     logger.Named("system-probe"),
		aggregator: aggregator,
		interval:   interval,
		warnPct:    warnPct,
		degradePct: degradePct,
		stop:       make(chan struct{}),
	}
}

// Start begins the sampling loop
func (p *SystemProbe) Start(ctx context.Context) {
	p.logger.Info("Starting system probe",
		zap.Duration("interval", p.interval))
	go p.sampleLoop(ctx)
}

// Stop stops the sampling loop
func (p *SystemProbe) Stop() {
	p.logger.Info("Stopping system probe")
	close(p.stop)
}

func (p *SystemProbe) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *SystemProbe) sample() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		p.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		p.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	p.recordUsage("system.runtime.cpu.sample", cpuPercent[0])
	p.recordUsage("system.runtime.memory.sample", memInfo.UsedPercent)

	p.logger.Debug("System sample recorded",
		zap.Float64("cpu_usage", cpuPercent[0]),
		zap.Float64("memory_usage", memInfo.UsedPercent))
}

func (p *SystemProbe) recordUsage(code string, pct float64) {
	severity := model.SeverityInfo
	switch {
	case pct >= p.degradePct:
		severity = model.SeverityDegraded
	case pct >= p.warnPct:
		severity = model.SeverityWarning
	}

	p.aggregator.Record(SystemStream, code, severity,
		fmt.Sprintf("usage at %.1f%%", pct),
		map[string]string{"percent": fmt.Sprintf("%.1f", pct)})
}
