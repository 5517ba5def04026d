package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/diagnostic"
	"github.com/repolens/repolens/internal/model"
)

type fakeLister struct {
	repos []model.Repository
	err   error
}

func (f *fakeLister) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.repos, nil
}

func newTestSyncer(t *testing.T, lister *fakeLister) (*Syncer, *diagnostic.Aggregator) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	aggregator := diagnostic.NewAggregator(logger, diagnostic.Config{})
	return NewSyncer(logger, lister, aggregator), aggregator
}

func TestSyncer_RunOnceSuccess(t *testing.T) {
	lister := &fakeLister{repos: []model.Repository{
		{ID: 1, FullName: "acme/widgets"},
		{ID: 2, FullName: "acme/gadgets"},
	}}
	s, aggregator := newTestSyncer(t, lister)

	require.NoError(t, s.RunOnce(context.Background()))

	repos, syncedAt := s.Repositories()
	require.Len(t, repos, 2)
	require.False(t, syncedAt.IsZero())

	views := aggregator.Query(SyncStream, diagnostic.Filter{Code: "github.sync.repos.success"})
	require.Len(t, views, 1)
	require.Equal(t, model.SeverityInfo, views[0].Severity)
	require.Equal(t, "2", views[0].Context["count"])
}

func TestSyncer_RunOnceFailureKeepsSnapshot(t *testing.T) {
	lister := &fakeLister{repos: []model.Repository{{ID: 1, FullName: "acme/widgets"}}}
	s, aggregator := newTestSyncer(t, lister)

	require.NoError(t, s.RunOnce(context.Background()))

	lister.err = errors.New("rate limited")
	require.Error(t, s.RunOnce(context.Background()))

	// Last good snapshot is still served
	repos, _ := s.Repositories()
	require.Len(t, repos, 1)

	views := aggregator.Query(SyncStream, diagnostic.Filter{Code: "github.sync.repos.failure"})
	require.Len(t, views, 1)
	require.Equal(t, model.SeverityDegraded, views[0].Severity)
}

func TestSyncer_RepositoriesReturnsCopy(t *testing.T) {
	lister := &fakeLister{repos: []model.Repository{{ID: 1, FullName: "acme/widgets"}}}
	s, _ := newTestSyncer(t, lister)

	require.NoError(t, s.RunOnce(context.Background()))

	repos, _ := s.Repositories()
	repos[0].FullName = "mutated"

	again, _ := s.Repositories()
	require.Equal(t, "acme/widgets", again[0].FullName)
}

func TestSyncer_StartRejectsBadSchedule(t *testing.T) {
	lister := &fakeLister{}
	s, _ := newTestSyncer(t, lister)

	err := s.Start(context.Background(), "not a schedule")
	require.Error(t, err)
}
