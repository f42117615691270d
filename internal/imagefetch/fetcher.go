// Package imagefetch retrieves remote image bytes for the analysis stage.
package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyBody = errors.New("response body is empty")
	ErrTooLarge  = errors.New("image exceeds download limit")
)

// Payload is the raw downloaded image plus what the server said it was.
type Payload struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads the image behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) (*Payload, error)
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: status code %d", e.Code)
	}
	return fmt.Sprintf("client error: status code %d", e.Code)
}

// Temporary marks 5xx and 429 responses as retryable.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}

// Router dispatches on the URL host. Hosts without a dedicated fetcher go to
// the fallback.
type Router struct {
	fallback Fetcher
	byHost   map[string]Fetcher
}

// NewRouter returns a router that sends every URL to fallback until Handle is called.
func NewRouter(fallback Fetcher) *Router {
	return &Router{fallback: fallback, byHost: make(map[string]Fetcher)}
}

// Handle routes URLs whose host equals host (case insensitive) to f.
// Handle is meant to be called during setup, before Fetch is used concurrently.
func (r *Router) Handle(host string, f Fetcher) {
	r.byHost[strings.ToLower(host)] = f
}

// Fetch hands imageURL to the fetcher registered for its host, or to the
// fallback.
func (r *Router) Fetch(ctx context.Context, imageURL string) (*Payload, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if f, ok := r.byHost[strings.ToLower(parsed.Hostname())]; ok {
		return f.Fetch(ctx, imageURL)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no fetcher for host %q", parsed.Hostname())
	}
	return r.fallback.Fetch(ctx, imageURL)
}
