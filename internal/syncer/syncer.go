package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/model"
)

// SyncStream is the diagnostic stream repository sync runs report into
const SyncStream = "github.sync"

// RepositoryLister supplies the repository list, normally the GitHub client
type RepositoryLister interface {
	ListRepositories(ctx context.Context) ([]model.Repository, error)
}

// Syncer fetches the repository list on a cron schedule and keeps the last
// good snapshot for the API layer, so dashboards keep rendering when GitHub
// is unreachable. Each run records a success or failure event.
type Syncer struct {
	logger     *zap.Logger
	client     RepositoryLister
	aggregator *diagnostic.Aggregator
	cron       *cron.Cron

	mu       sync.RWMutex
	repos    []model.Repository
	syncedAt time.Time
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewSyncer creates a new repository syncer
func NewSyncer(logger *zap.Logger, client RepositoryLister, aggregator *diagnostic.Aggregator) *Syncer {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	return &Syncer{
		logger:     logger.Named("syncer"),
		client:     client,
		aggregator: aggregator,
		cron:       cron.New(cron.WithChain(cron.Recover(cronLogger))),
	}
}

// Start runs one immediate sync, registers the schedule, and starts the cron
// runner
func (s *Syncer) Start(ctx context.Context, schedule string) error {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Warn("Initial repository sync failed", zap.Error(err))
	}

	_, err := s.cron.AddFunc(schedule, func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.RunOnce(syncCtx); err != nil {
			s.logger.Warn("Scheduled repository sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Repository syncer started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Syncer) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce fetches the repository list once. The snapshot is only replaced on
// success; failures are recorded and the previous snapshot stays in place.
func (s *Syncer) RunOnce(ctx context.Context) error {
	started := time.Now()

	repos, err := s.client.ListRepositories(ctx)
	if err != nil {
		s.aggregator.Record(SyncStream, "github.sync.repos.failure", model.SeverityDegraded,
			fmt.Sprintf("repository sync failed: %v", err),
			map[string]string{"elapsed": time.Since(started).String()})
		return fmt.Errorf("repository sync failed: %w", err)
	}

	s.mu.Lock()
	s.repos = repos
	s.syncedAt = time.Now()
	s.mu.Unlock()

	s.aggregator.Record(SyncStream, "github.sync.repos.success", model.SeverityInfo,
		fmt.Sprintf("synced %d repositories", len(repos)),
		map[string]string{
			"count":   fmt.Sprintf("%d", len(repos)),
			"elapsed": time.Since(started).String(),
		})

	s.logger.Info("Repository sync completed",
		zap.Int("count", len(repos)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// Repositories returns a copy of the last good snapshot and when it was taken
func (s *Syncer) Repositories() ([]model.Repository, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repos := make([]model.Repository, len(s.repos))
	copy(repos, s.repos)
	return repos, s.syncedAt
}
