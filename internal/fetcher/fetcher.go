package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/ratelimit"
)

// ErrTransport marks every failed fetch: network errors, timeouts and
// non-2xx responses.
var ErrTransport = errors.New("transport failure")

// StatusError is returned for a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// RequestProfile is attached to every request: fixed headers plus the
// store identity sent as cookies.
type RequestProfile struct {
	Headers map[string]string
	Cookies map[string]string
}

// NewRequestProfile copies headers and the store identity into a profile.
func NewRequestProfile(headers map[string]string, store models.StoreContext) RequestProfile {
	profile := RequestProfile{
		Headers: make(map[string]string, len(headers)),
		Cookies: make(map[string]string, len(store.Identity)),
	}
	for k, v := range headers {
		profile.Headers[k] = v
	}
	for k, v := range store.Identity {
		profile.Cookies[k] = v
	}
	return profile
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string, profile RequestProfile) (string, error)
}

type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// Limiter is shared by all requests of this fetcher; nil disables it.
	Limiter ratelimit.RateLimiter
}

func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

type HTTPFetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

func NewHTTPFetcher(opts Options, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &HTTPFetcher{
		client: &http.Client{},
		opts:   opts,
		logger: logger.With("component", "fetcher"),
	}
}

// Fetch performs a GET and returns the body of a 2xx response. Network
// errors, timeouts, 429 and 5xx responses are retried up to MaxRetries times.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, profile RequestProfile) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * f.opts.RetryDelay
			f.logger.Debug("retrying fetch", "url", url, "attempt", attempt, "delay", delay, "error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
			case <-timer.C:
			}
		}

		if f.opts.Limiter != nil {
			if err := f.opts.Limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%w: %v", ErrTransport, err)
			}
		}

		body, retry, err := f.fetchOnce(ctx, url, profile)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retry || ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string, profile RequestProfile) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}

	for k, v := range profile.Headers {
		req.Header.Set(k, v)
	}
	for name, value := range profile.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("%w: failed to read body: %v", ErrTransport, err)
	}

	return string(body), false, nil
}

// PacedFetcher spaces the requests of one store context and adapts the
// spacing to the error rate it observes.
type PacedFetcher struct {
	next    PageFetcher
	limiter *ratelimit.AdaptiveRateLimiter
}

func NewPacedFetcher(next PageFetcher, limiter *ratelimit.AdaptiveRateLimiter) *PacedFetcher {
	return &PacedFetcher{
		next:    next,
		limiter: limiter,
	}
}

func (p *PacedFetcher) Fetch(ctx context.Context, url string, profile RequestProfile) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	body, err := p.next.Fetch(ctx, url, profile)
	if err != nil {
		p.limiter.RecordError()
		return "", err
	}

	p.limiter.RecordSuccess()
	return body, nil
}
