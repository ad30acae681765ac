package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skydriftlabs/skydrift-setup/internal/logger"
)

const (
	// maxAttempts bounds how often the metadata endpoint is queried.
	maxAttempts = 3

	// retryBackoff is the fixed pause between attempts.
	retryBackoff = 2 * time.Second
)

var (
	// ErrVersionUnavailable indicates the latest version tag could not be
	// resolved after all retry attempts.
	ErrVersionUnavailable = errors.New("latest version unavailable")

	// errBadHTTPStatus indicates an unexpected response status.
	errBadHTTPStatus = errors.New("unexpected http status")

	// errEmptyTag indicates the metadata carried no version tag.
	errEmptyTag = errors.New("empty version tag")
)

// metadata is the slice of the release document this system consumes.
// Anything beyond the tag is deliberately ignored.
type metadata struct {
	TagName string `json:"tag_name"`
}

// Resolver queries the remote release metadata endpoint for the latest
// published version tag.
type Resolver struct {
	// URL is the metadata endpoint.
	URL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Sleep is the pause between attempts; overridable in tests.
	Sleep func(time.Duration)
}

// NewResolver returns a Resolver against the provided metadata endpoint.
func NewResolver(url string) *Resolver {
	return &Resolver{
		URL:    url,
		Client: http.DefaultClient,
		Sleep:  time.Sleep,
	}
}

// Latest resolves the most recently published version tag.
//
// Transport failures, non-200 responses, undecodable bodies and empty tags
// are all retried the same way; after maxAttempts the run fails with
// ErrVersionUnavailable. A nil error never accompanies an empty tag.
func (r *Resolver) Latest(ctx context.Context) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			r.Sleep(retryBackoff)
		}

		tag, err := r.fetchTag(ctx)
		if err == nil {
			logger.InfoKV(ctx, "Resolved latest version", "tag", tag, "attempt", attempt)
			return tag, nil
		}

		lastErr = err

		logger.WarnKV(ctx, "Version resolution attempt failed",
			"attempt", attempt, "error", err)
	}

	return "", fmt.Errorf("%w: %w", ErrVersionUnavailable, lastErr)
}

// fetchTag performs one metadata request and extracts the tag field.
func (r *Resolver) fetchTag(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, http.NoBody)
	if err != nil {
		return "", err
	}

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	response, err := client.Do(req)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s, %s: %w", r.URL, response.Status, errBadHTTPStatus)
	}

	var meta metadata
	if err := json.NewDecoder(response.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode release metadata: %w", err)
	}

	if meta.TagName == "" {
		return "", errEmptyTag
	}

	return meta.TagName, nil
}
