package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/star/satvis/internal/metrics"
)

const (
	defaultGroup   = "starlink"
	celestrakGPURL = "https://celestrak.org/NORAD/elements/gp.php"

	// maxBodyBytes caps a single catalog download.
	maxBodyBytes = 50 << 20
)

// Fetch failure causes. FetchError wraps one of these or a transport error.
var (
	ErrHTTPStatus   = errors.New("unexpected HTTP status")
	ErrEmptyBody    = errors.New("empty response body")
	ErrBodyTooLarge = errors.New("response body too large")
	ErrNoRecords    = errors.New("response contains no TLE records")
)

// FetchError is a catalog-level failure: nothing usable came back from the
// source. It never describes a single bad record; see ParseError for that.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// GroupURL returns the CelesTrak GP endpoint serving a named satellite group
// in 3-line TLE format.
func GroupURL(group string) string {
	if group == "" {
		group = defaultGroup
	}
	q := url.Values{}
	q.Set("GROUP", group)
	q.Set("FORMAT", "tle")
	return celestrakGPURL + "?" + q.Encode()
}

// Fetcher retrieves raw TLE data from a remote source.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	logger     *slog.Logger
	attempts   int
	backoff    time.Duration
	now        func() time.Time
}

// NewFetcher creates a Fetcher for the given source URL. Extra URLs are
// fetched after the primary one and appended on a best-effort basis.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = GroupURL(defaultGroup)
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   logger,
		attempts: 1,
		backoff:  time.Second,
		now:      time.Now,
	}
}

// WithRetry makes transport failures and 5xx/429 responses retry up to
// attempts times in total. Waits start at initial and double with jitter.
func (f *Fetcher) WithRetry(attempts int, initial time.Duration) *Fetcher {
	if attempts < 1 {
		attempts = 1
	}
	f.attempts = attempts
	f.backoff = initial
	return f
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch performs an HTTP GET to retrieve raw TLE data from the primary
// source, followed by any extra sources.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.fetchWithRetry(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	for _, u := range f.extraURLs {
		extra, err := f.fetchWithRetry(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{URL: u, Err: ctx.Err()}
			}
			f.logger.Warn("extra TLE source failed, continuing", "url", u, "error", err)
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}

	return body, nil
}

// FetchCatalog fetches and parses the configured sources into a catalog.
// The result is complete or absent: a cancelled or failed fetch returns a
// *FetchError and no catalog.
func (f *Fetcher) FetchCatalog(ctx context.Context) (*Catalog, error) {
	start := time.Now()

	data, err := f.Fetch(ctx)
	if err != nil {
		metrics.RecordFetch(false, time.Since(start))
		return nil, err
	}

	cat, err := Parse(bytes.NewReader(data), f.logger)
	if err != nil {
		metrics.RecordFetch(false, time.Since(start))
		return nil, &FetchError{URL: f.sourceURL, Err: err}
	}
	if len(cat.Records) == 0 {
		metrics.RecordFetch(false, time.Since(start))
		return nil, &FetchError{URL: f.sourceURL, Err: ErrNoRecords}
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordFetch(false, time.Since(start))
		return nil, &FetchError{URL: f.sourceURL, Err: err}
	}

	cat.Source = f.sourceURL
	cat.FetchedAt = f.now().UTC()
	metrics.RecordFetch(true, time.Since(start))
	metrics.AddParseErrors(len(cat.Skipped))

	f.logger.Info("TLE catalog fetched",
		"source", f.sourceURL,
		"records", len(cat.Records),
		"skipped", len(cat.Skipped),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cat, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, u string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.backoff
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, retry, err := f.fetchOnce(ctx, u)
		if err != nil && !retry {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}
	notify := func(err error, wait time.Duration) {
		f.logger.Warn("TLE fetch failed, retrying",
			"url", u,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.attempts-1)), ctx)
	body, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		// Cancellation during a wait surfaces as the bare context error.
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: u, Err: err}
		}
		return nil, err
	}
	return body, nil
}

// fetchOnce performs a single GET. The bool result reports whether the
// failure is worth retrying.
func (f *Fetcher) fetchOnce(ctx context.Context, u string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, &FetchError{URL: u, Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, &FetchError{URL: u, StatusCode: resp.StatusCode, Err: ErrHTTPStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, ctx.Err() == nil, &FetchError{URL: u, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(body) > maxBodyBytes {
		return nil, false, &FetchError{URL: u, Err: fmt.Errorf("%w: exceeds %d byte limit", ErrBodyTooLarge, maxBodyBytes)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false, &FetchError{URL: u, StatusCode: resp.StatusCode, Err: ErrEmptyBody}
	}

	return body, false, nil
}
