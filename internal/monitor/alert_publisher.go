package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/model"
)

const (
	diagnosticsStreamName = "DIAGNOSTICS"
	alertSubjectPrefix    = "diagnostic.alert."
	summarySubject        = "diagnostic.summary"
)

// AlertPublisher publishes aggregator alerts and periodic system reports to
// JetStream. It implements diagnostic.AlertSink.
type AlertPublisher struct {
	logger     *zap.Logger
	js         nats.JetStreamContext
	aggregator *diagnostic.Aggregator
	interval   time.Duration
	stop       chan struct{}
}

// NewAlertPublisher creates a new alert publisher. The aggregator is
// attached separately because the aggregator itself is constructed with the
// publisher as its alert sink.
func NewAlertPublisher(logger *zap.Logger, js nats.JetStreamContext, interval time.Duration) *AlertPublisher {
	return &AlertPublisher{
		logger:   logger.Named("alert-publisher"),
		js:       js,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// SetAggregator attaches the aggregator summaries are read from. Must be
// called before Start.
func (p *AlertPublisher) SetAggregator(aggregator *diagnostic.Aggregator) {
	p.aggregator = aggregator
}

// Start ensures the diagnostics stream exists and begins the summary loop
func (p *AlertPublisher) Start(ctx context.Context) error {
	stream, err := p.js.StreamInfo(diagnosticsStreamName)
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	if stream == nil {
		_, err = p.js.AddStream(&nats.StreamConfig{
			Name:     diagnosticsStreamName,
			Subjects: []string{"diagnostic.>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	go p.summaryLoop(ctx)

	p.logger.Info("Alert publisher started")
	return nil
}

// Stop stops the summary loop
func (p *AlertPublisher) Stop() {
	close(p.stop)
}

// Publish implements diagnostic.AlertSink
func (p *AlertPublisher) Publish(alert model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := p.js.Publish(alertSubjectPrefix+string(alert.Severity), data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Info("Alert published",
		zap.String("id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("stream", alert.Stream),
		zap.String("severity", string(alert.Severity)))

	return nil
}

// summaryLoop periodically publishes the system-wide report
func (p *AlertPublisher) summaryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.publishSummary()
		}
	}
}

func (p *AlertPublisher) publishSummary() {
	if p.aggregator == nil {
		return
	}
	report := p.aggregator.Report()

	data, err := json.Marshal(report)
	if err != nil {
		p.logger.Error("Failed to marshal system report", zap.Error(err))
		return
	}

	if _, err := p.js.Publish(summarySubject, data); err != nil {
		p.logger.Error("Failed to publish system report", zap.Error(err))
		return
	}

	p.logger.Debug("System report published",
		zap.Int("streams", report.StreamCount),
		zap.Float64("percent_healthy", report.PercentHealthy))
}
