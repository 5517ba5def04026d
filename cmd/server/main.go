package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/api"
	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/github"
	"github.com/repolens/repolens/internal/model"
	"github.com/repolens/repolens/internal/monitor"
	"github.com/repolens/repolens/internal/prefs"
	"github.com/repolens/repolens/internal/storage"
	"github.com/repolens/repolens/internal/syncer"
	"github.com/repolens/repolens/internal/visuals"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("github.timeout", 15*time.Second)
	viper.SetDefault("github.sync_schedule", "*/15 * * * *")
	viper.SetDefault("diagnostics.summary_interval", 30*time.Second)
	viper.SetDefault("archive.path", "diagnostic_events.db")
	viper.SetDefault("archive.retention_days", 30)
	viper.SetDefault("probe.interval", 30*time.Second)
	viper.SetDefault("probe.warn_percent", 75.0)
	viper.SetDefault("probe.degrade_percent", 90.0)
	viper.SetDefault("prefs.path", "preferences.json")
	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("No config file found, using defaults", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Event archive
	archive, err := storage.NewSQLiteEventArchive(logger, viper.GetString("archive.path"))
	if err != nil {
		logger.Fatal("Failed to create event archive", zap.Error(err))
	}
	defer archive.Close()

	// Aggregator
	cfg := diagnostic.Config{
		MaxEventsPerStream:  viper.GetInt("diagnostics.max_events_per_stream"),
		HealthWindow:        viper.GetDuration("diagnostics.health_window"),
		EscalationWindow:    viper.GetDuration("diagnostics.escalation_window"),
		EscalationThreshold: viper.GetInt("diagnostics.escalation_threshold"),
		DegradedEventLimit:  viper.GetInt("diagnostics.degraded_event_limit"),
		WarningEventLimit:   viper.GetInt("diagnostics.warning_event_limit"),
		TrendDelta:          viper.GetFloat64("diagnostics.trend_delta"),
		TopOffenders:        viper.GetInt("diagnostics.top_offenders"),
		TopEscalatedCodes:   viper.GetInt("diagnostics.top_escalated_codes"),
	}

	aggregatorOpts := []diagnostic.Option{diagnostic.WithArchiver(archive)}

	// Optional NATS transport for alerts and summaries
	var publisher *monitor.AlertPublisher
	var js nats.JetStreamContext
	if urls := viper.GetStringSlice("nats.urls"); len(urls) > 0 {
		js = connectJetStream(logger, urls[0])
	}

	var aggregator *diagnostic.Aggregator
	if js != nil {
		publisher = monitor.NewAlertPublisher(logger, js, viper.GetDuration("diagnostics.summary_interval"))
		aggregator = diagnostic.NewAggregator(logger, cfg,
			append(aggregatorOpts, diagnostic.WithAlertSink(publisher))...)
		publisher.SetAggregator(aggregator)

		if err := publisher.Start(ctx); err != nil {
			logger.Fatal("Failed to start alert publisher", zap.Error(err))
		}
		defer publisher.Stop()
	} else {
		logger.Warn("NATS not configured; alerts stay local")
		aggregator = diagnostic.NewAggregator(logger, cfg, aggregatorOpts...)
	}

	// System probe
	probe := monitor.NewSystemProbe(logger, aggregator,
		viper.GetDuration("probe.interval"),
		viper.GetFloat64("probe.warn_percent"),
		viper.GetFloat64("probe.degrade_percent"))
	probe.Start(ctx)
	defer probe.Stop()

	// GitHub client and repository syncer. A missing token is not fatal:
	// the API renders a configuration message instead.
	token := os.Getenv("REPOLENS_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	// repoService stays a true nil interface when the client is absent so
	// the API layer's nil check holds
	var repoService api.RepositoryService
	var repoSyncer *syncer.Syncer
	gh, err := github.NewClient(logger, token, viper.GetDuration("github.timeout"))
	if err != nil {
		logger.Warn("GitHub client not available", zap.Error(err))
		aggregator.Record(api.DashboardStream, "dashboard.config.token.missing", model.SeverityWarning,
			"no GitHub token configured; repository views disabled", nil)
	} else {
		repoService = gh
		repoSyncer = syncer.NewSyncer(logger, gh, aggregator)
		if err := repoSyncer.Start(ctx, viper.GetString("github.sync_schedule")); err != nil {
			logger.Fatal("Failed to start repository syncer", zap.Error(err))
		}
		defer repoSyncer.Stop()
	}

	// Preferences store
	prefStore := prefs.NewStore(logger, viper.GetString("prefs.path"))

	// Archive retention loop
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -viper.GetInt("archive.retention_days"))
				if err := archive.DeleteBefore(ctx, cutoff); err != nil {
					logger.Error("Failed to clean up event archive", zap.Error(err))
				}
			}
		}
	}()

	// HTTP API
	server := api.NewServer(logger, aggregator, repoService, repoSyncer, visuals.NewParser(logger), prefStore)
	if err := server.ListenAndServe(ctx, viper.GetString("server.addr")); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server shut down gracefully")
}

// connectJetStream connects to NATS with retry and returns a JetStream
// context, or nil when the connection could not be established
func connectJetStream(logger *zap.Logger, url string) nats.JetStreamContext {
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	var err error
	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(url, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Warn("NATS unavailable after retries; continuing without transport", zap.Error(err))
		return nil
	}

	js, err := nc.JetStream()
	if err != nil {
		logger.Warn("Failed to create JetStream context", zap.Error(err))
		nc.Close()
		return nil
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return js
}
