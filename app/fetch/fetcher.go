package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ducksgather/harvester/app/metrics"
)

const (
	defaultAccept = "text/html,application/xhtml+xml,application/ld+json,text/calendar,application/rss+xml;q=0.9,*/*;q=0.8"
	maxBodyBytes  = 16 << 20
)

// RawListingPage is one fetched listing page.
type RawListingPage struct {
	SourceName  string
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Attempts    int
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	policy    RetryPolicy
}

func NewFetcher(client *http.Client, userAgent string, timeout time.Duration, policy RetryPolicy) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		policy:    policy,
	}
}

// WithTimeout returns a copy of f using a different per-attempt timeout.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	clone := *f
	clone.timeout = timeout
	return &clone
}

// Fetch retrieves rawURL, retrying transient failures. A failure is
// always a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, sourceName, rawURL string) (*RawListingPage, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	var page *RawListingPage
	attempts, err := f.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := f.fetchOnce(ctx, rawURL)
		if err != nil {
			metrics.TrackFetchAttempt(sourceName, "error")
			slog.Debug("Fetch attempt failed", "source", sourceName, "url", rawURL, "attempt", attempt, "error", err)
			return err
		}
		metrics.TrackFetchAttempt(sourceName, "ok")
		page = p
		return nil
	})

	if err != nil {
		fe := &FetchError{URL: rawURL, Attempts: attempts, Err: err}
		var ae *attemptError
		if errors.As(err, &ae) {
			fe.StatusCode = ae.statusCode
			fe.Transient = ae.transient
		}
		return nil, fe
	}

	page.SourceName = sourceName
	page.Attempts = attempts
	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*RawListingPage, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaultAccept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &attemptError{transient: true, err: fmt.Errorf("failed to fetch page: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &attemptError{statusCode: resp.StatusCode, transient: transientStatus(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &attemptError{transient: true, err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &RawListingPage{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
