package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/model"
)

// syntheticEvent is one entry of the built-in exercise batches
type syntheticEvent struct {
	stream   string
	code     string
	severity model.Severity
	message  string
}

// batches exercises the aggregator end to end: a healthy stream, a stream
// with rising warnings, and a stream that escalates a repeated failure.
var batches = [][]syntheticEvent{
	{
		{"github.sync", "github.sync.repos.success", model.SeverityInfo, "synced 42 repositories"},
		{"github.sync", "github.sync.repos.success", model.SeverityInfo, "synced 42 repositories"},
	},
	{
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/flow.yaml"},
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/flow.yaml"},
		{"dashboard.api", "dashboard.repo.fetch.success", model.SeverityInfo, "fetched acme/widgets"},
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/arch.md"},
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/arch.md"},
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/arch.md"},
		{"dashboard.api", "dashboard.visuals.parse.failure", model.SeverityWarning, "failed to parse VISUALS/arch.md"},
	},
	{
		{"system.runtime", "system.runtime.memory.sample", model.SeverityDegraded, "usage at 93.0%"},
		{"system.runtime", "system.runtime.memory.sample", model.SeverityDegraded, "usage at 94.5%"},
		{"system.runtime", "system.runtime.memory.sample", model.SeverityDegraded, "usage at 96.1%"},
		{"system.runtime", "system.runtime.cpu.sample", model.SeverityCritical, "usage at 99.8%"},
	},
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("Runner failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	aggregator := diagnostic.NewAggregator(logger, diagnostic.DefaultConfig())

	for i, batch := range batches {
		logger.Info("Feeding batch",
			zap.Int("batch", i+1),
			zap.Int("events", len(batch)))
		for _, event := range batch {
			aggregator.Record(event.stream, event.code, event.severity, event.message, nil)
		}
	}

	for _, stream := range aggregator.Streams() {
		summary := aggregator.Summarize(stream)
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary for %s: %w", stream, err)
		}
		fmt.Println(string(data))
	}

	report := aggregator.Report()
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal system report: %w", err)
	}
	fmt.Println(string(data))

	return nil
}
