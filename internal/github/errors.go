package github

import "errors"

var (
	// ErrMissingToken is returned when no GitHub token is configured
	ErrMissingToken = errors.New("github token not configured")

	// ErrNotFound is returned when a repository or path does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the token is rejected
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited is returned when the API rate limit is exhausted
	ErrRateLimited = errors.New("rate limited")
)
