package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Fetcher = (*HTTPFetcher)(nil)

// Retry defaults for catalog downloads
const (
	DefaultAttempts       = 3
	DefaultBaseBackoff    = 2 * time.Second
	DefaultMaxBackoff     = 8 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// FetcherConfig configures an HTTPFetcher. Zero values use the defaults.
type FetcherConfig struct {
	Client         *http.Client
	Attempts       int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
	UserAgent      string
	Logger         *slog.Logger

	// Sleep waits between attempts; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
}

// HTTPFetcher downloads artifacts with bounded retries. Any 4xx response is
// a definitive miss; 5xx responses and transport errors are retried.
type HTTPFetcher struct {
	client         *http.Client
	attempts       int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
	userAgent      string
	logger         *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewHTTPFetcher creates a fetcher from cfg.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	f := &HTTPFetcher{
		client:         cfg.Client,
		attempts:       cfg.Attempts,
		baseBackoff:    cfg.BaseBackoff,
		maxBackoff:     cfg.MaxBackoff,
		attemptTimeout: cfg.AttemptTimeout,
		userAgent:      cfg.UserAgent,
		logger:         cfg.Logger,
		sleep:          cfg.Sleep,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.attempts <= 0 {
		f.attempts = DefaultAttempts
	}
	if f.baseBackoff <= 0 {
		f.baseBackoff = DefaultBaseBackoff
	}
	if f.maxBackoff <= 0 {
		f.maxBackoff = DefaultMaxBackoff
	}
	if f.attemptTimeout <= 0 {
		f.attemptTimeout = DefaultAttemptTimeout
	}
	if f.userAgent == "" {
		f.userAgent = "diya-core/1.0"
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.sleep == nil {
		f.sleep = sleepCtx
	}
	return f
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (f *HTTPFetcher) Backoff(attempt int) time.Duration {
	d := f.baseBackoff << (attempt - 1)
	if d > f.maxBackoff || d <= 0 {
		d = f.maxBackoff
	}
	return d
}

// Fetch downloads url, retrying transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, status, err := f.once(ctx, url)
		if err == nil {
			return body, nil
		}
		if status >= 400 && status < 500 {
			return nil, &domain.DownloadError{URL: url, StatusCode: status, NotFound: true, Attempts: attempt}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &domain.DownloadError{URL: url, Attempts: attempt, Err: ctxErr}
		}

		lastErr, lastStatus = err, status
		if attempt == f.attempts {
			break
		}

		wait := f.Backoff(attempt)
		f.logger.Warn("download attempt failed, retrying",
			"url", url, "attempt", attempt, "retry_in", wait, "error", err)
		if err := f.sleep(ctx, wait); err != nil {
			return nil, &domain.DownloadError{URL: url, Attempts: attempt, Err: err}
		}
	}

	dErr := &domain.DownloadError{URL: url, StatusCode: lastStatus, Attempts: f.attempts}
	if lastStatus == 0 {
		dErr.Err = lastErr
	}
	return nil, dErr
}

var errServerStatus = errors.New("server error")

func (f *HTTPFetcher) once(ctx context.Context, url string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		// a malformed URL will not get better with retries
		return nil, http.StatusBadRequest, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", errServerStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
