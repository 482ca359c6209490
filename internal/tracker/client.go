// Package tracker drives the GitLab instance the swarm uses as its
// shared work queue. The transport is the official GitLab API client;
// this package layers the swarm's workflow on top: typed errors, label
// conventions, claim/complete/revision helpers, and KB bootstrap.
package tracker

import (
	"errors"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound means the project or issue does not exist (or the
	// token cannot see it; GitLab reports both as 404).
	ErrNotFound = errors.New("tracker: not found")

	// ErrRateLimited means the server asked us to back off.
	ErrRateLimited = errors.New("tracker: rate limited")
)

// APIError carries the HTTP status and server message for responses
// that are not covered by a sentinel.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker: API error %d: %s", e.Status, e.Message)
}

// Client talks to one GitLab instance with one token. A client-side
// rate limiter keeps a polling swarm from hammering the API; the
// server's own 429 responses are surfaced as ErrRateLimited.
type Client struct {
	gl *gitlab.Client
}

// New creates a client for the GitLab instance at baseURL. rps bounds
// outgoing requests per second; zero or negative means 5. The SDK's
// own retry loop is disabled: every tracker call in the swarm is
// best-effort and the next sync reconciles, so failing fast beats
// blocking a poll cycle on backoff sleeps.
func New(baseURL, token string, rps float64) (*Client, error) {
	if rps <= 0 {
		rps = 5
	}
	gl, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(baseURL),
		gitlab.WithCustomLimiter(rate.NewLimiter(rate.Limit(rps), 1)),
		gitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracker: create client: %w", err)
	}
	return &Client{gl: gl}, nil
}

// wrapError maps an SDK error onto the package's typed errors. The
// response may be nil on transport failures.
func wrapError(resp *gitlab.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
	}
	return err
}
