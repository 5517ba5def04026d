package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/repolens/repolens/internal/model"
)

// VisualsDir is the repository folder scanned for documentation and
// diagram files
const VisualsDir = "VISUALS"

const defaultTimeout = 15 * time.Second

// Client wraps the GitHub REST API for the dashboard. Calls are bounded by
// a per-call timeout; there is no retry and no caching beyond what a single
// request returns.
type Client struct {
	logger  *zap.Logger
	api     *gh.Client
	timeout time.Duration
}

// NewClient creates a GitHub client. An empty token yields ErrMissingToken
// so the caller can render a configuration message instead of failing later.
func NewClient(logger *zap.Logger, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		logger:  logger.Named("github"),
		api:     gh.NewClient(nil).WithAuthToken(token),
		timeout: timeout,
	}, nil
}

// ListRepositories returns the authenticated user's repositories sorted by
// most recently updated
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	repos, _, err := c.api.Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, c.wrapError("list repositories", err)
	}

	out := make([]model.Repository, 0, len(repos))
	for _, repo := range repos {
		out = append(out, convertRepository(repo))
	}

	c.logger.Debug("Repositories listed", zap.Int("count", len(out)))
	return out, nil
}

// GetRepository returns metadata for one repository
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	repo, _, err := c.api.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, c.wrapError(fmt.Sprintf("get repository %s/%s", owner, name), err)
	}

	converted := convertRepository(repo)
	return &converted, nil
}

// ListVisualFiles returns the file paths under the repository's VISUALS/
// folder. A repository without the folder returns ErrNotFound.
func (c *Client) ListVisualFiles(ctx context.Context, owner, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, entries, _, err := c.api.Repositories.GetContents(ctx, owner, name, VisualsDir, nil)
	if err != nil {
		return nil, c.wrapError(fmt.Sprintf("list %s in %s/%s", VisualsDir, owner, name), err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.GetType() == "file" {
			paths = append(paths, entry.GetPath())
		}
	}
	return paths, nil
}

// GetFileContent returns the decoded content of one repository file
func (c *Client) GetFileContent(ctx context.Context, owner, name, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	file, _, _, err := c.api.Repositories.GetContents(ctx, owner, name, path, nil)
	if err != nil {
		return "", c.wrapError(fmt.Sprintf("get %s in %s/%s", path, owner, name), err)
	}
	if file == nil {
		return "", fmt.Errorf("get %s in %s/%s: %w", path, owner, name, ErrNotFound)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return content, nil
}

// wrapError translates go-github errors into the package's error taxonomy
func (c *Client) wrapError(op string, err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%s: %w", op, ErrRateLimited)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

func convertRepository(repo *gh.Repository) model.Repository {
	out := model.Repository{
		ID:            repo.GetID(),
		Name:          repo.GetName(),
		Owner:         repo.GetOwner().GetLogin(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		Language:      repo.GetLanguage(),
		DefaultBranch: repo.GetDefaultBranch(),
		Stars:         repo.GetStargazersCount(),
		Forks:         repo.GetForksCount(),
		Private:       repo.GetPrivate(),
		CreatedAt:     repo.GetCreatedAt().Time,
		UpdatedAt:     repo.GetUpdatedAt().Time,
	}
	if pushed := repo.GetPushedAt(); !pushed.IsZero() {
		t := pushed.Time
		out.PushedAt = &t
	}
	return out
}
