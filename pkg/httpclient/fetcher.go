package httpclient

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/CompassSecurity/leakhound/pkg/config"
	"github.com/CompassSecurity/leakhound/pkg/format"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// HeaderRateLimitRemaining is the GitHub header carrying the remaining request budget.
const HeaderRateLimitRemaining = "X-RateLimit-Remaining"

// Sleeper suspends the caller for d. It must return early with the context error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// FetchStats is a snapshot of the Fetcher counters.
type FetchStats struct {
	Requests    int64
	RateLimited int64
	Retried     int64
}

// Fetcher performs GET requests under one process-wide concurrency ceiling.
//
// Rate limited responses (403 with an exhausted X-RateLimit-Remaining) and transport errors are retried
// after a fixed cooldown until they succeed or the context is cancelled. The concurrency slot is released
// while cooling down. Every other outcome is final: 200 is decoded, 409 and any other status yield an
// empty result. The only error returned by the Fetch methods is the context error.
type Fetcher struct {
	client      *retryablehttp.Client
	limiter     *semaphore.Weighted
	cooldown    time.Duration
	maxTextSize int64
	sleeper     Sleeper

	requests    atomic.Int64
	rateLimited atomic.Int64
	retried     atomic.Int64
}

type FetcherOption func(*Fetcher)

// WithSleeper replaces the cooldown sleeper, mostly for tests.
func WithSleeper(s Sleeper) FetcherOption {
	return func(f *Fetcher) {
		f.sleeper = s
	}
}

// WithHTTPClient replaces the underlying HTTP client. The retry policy is kept.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client.HTTPClient = c
	}
}

func NewFetcher(opts config.CommonScanOptions, options ...FetcherOption) *Fetcher {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	// the Fetcher owns the retry loop so the slot can be released during the cooldown
	client.RetryMax = 0
	client.CheckRetry = RateLimitRetryPolicy
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient = &http.Client{
		Timeout:   requestTimeout,
		Transport: &HeaderRoundTripper{Headers: withUserAgent(nil), Next: newTransport()},
	}

	f := &Fetcher{
		client:      client,
		limiter:     semaphore.NewWeighted(int64(concurrency)),
		cooldown:    opts.RateLimitCooldown,
		maxTextSize: opts.MaxFileSize,
		sleeper:     TimerSleeper,
	}

	for _, o := range options {
		o(f)
	}
	return f
}

// RateLimitRetryPolicy is the retryablehttp.CheckRetry used by the Fetcher. It retries transport errors
// and exhausted rate limits, and stops with the context error once ctx is done.
func RateLimitRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return true, nil
	}

	if resp == nil {
		return false, nil
	}

	return IsRateLimited(resp), nil
}

// IsRateLimited reports a 403 whose X-RateLimit-Remaining header is missing or zero.
func IsRateLimited(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		return false
	}

	remaining := strings.TrimSpace(resp.Header.Get(HeaderRateLimitRemaining))
	if remaining == "" {
		return true
	}

	n, err := strconv.Atoi(remaining)
	return err != nil || n == 0
}

// Transport wraps next so that requests made through it count against the Fetcher's ceiling.
func (f *Fetcher) Transport(next http.RoundTripper) http.RoundTripper {
	return &LimitedTransport{Limiter: f.limiter, Next: next}
}

func (f *Fetcher) Stats() FetchStats {
	return FetchStats{
		Requests:    f.requests.Load(),
		RateLimited: f.rateLimited.Load(),
		Retried:     f.retried.Load(),
	}
}

// FetchJSON fetches url and parses the body as JSON. Failures yield an empty (non-existing) result.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, headers map[string]string) (gjson.Result, error) {
	resp, body, err := f.fetch(ctx, url, headers, 0)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp == nil {
		return gjson.Result{}, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !gjson.ValidBytes(body) {
			log.Error().Str("url", url).Msg("Invalid JSON response")
			return gjson.Result{}, nil
		}
		return gjson.ParseBytes(body), nil
	case http.StatusConflict:
		log.Info().Str("url", url).Msg("Empty or conflict (409) encountered")
		return gjson.Result{}, nil
	default:
		log.Error().Str("url", url).Int("status", resp.StatusCode).Msg("Failed fetching JSON")
		return gjson.Result{}, nil
	}
}

// FetchText fetches url and decodes the body as text. The bool is false when the content is absent:
// non-200 status, binary or undecodable content, or a body larger than the configured maximum file size.
func (f *Fetcher) FetchText(ctx context.Context, url string, headers map[string]string) (string, bool, error) {
	resp, body, err := f.fetch(ctx, url, headers, f.maxTextSize)
	if err != nil {
		return "", false, err
	}
	if resp == nil {
		return "", false, nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		log.Info().Str("url", url).Msg("Empty or conflict (409) encountered")
		return "", false, nil
	default:
		log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("Failed fetching text")
		return "", false, nil
	}

	if f.maxTextSize > 0 && int64(len(body)) > f.maxTextSize {
		log.Debug().Str("url", url).Str("maxSize", format.HumanSize(f.maxTextSize)).Msg("Skipped file exceeding max file size")
		return "", false, nil
	}

	text, ok := format.DecodeText(body, resp.Header.Get("Content-Type"))
	if !ok {
		log.Debug().Str("url", url).Msg("Skipping binary or non-UTF8 file")
		return "", false, nil
	}
	return text, true, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string, headers map[string]string, limit int64) (*http.Response, []byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("Failed building request")
		return nil, nil, nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	for {
		resp, body, err := f.attempt(ctx, req, limit)
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		retry, checkErr := f.client.CheckRetry(ctx, resp, err)
		if checkErr != nil {
			return nil, nil, checkErr
		}
		if !retry {
			if err != nil {
				log.Error().Err(err).Str("url", url).Msg("Request failed")
				return nil, nil, nil
			}
			return resp, body, nil
		}

		f.retried.Add(1)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Dur("cooldown", f.cooldown).Msg("Request failed, retrying after cooldown")
		} else {
			f.rateLimited.Add(1)
			log.Warn().Str("url", url).Dur("cooldown", f.cooldown).Msg("Rate limit reached, waiting before retrying")
		}

		if err := f.sleeper.Sleep(ctx, f.cooldown); err != nil {
			return nil, nil, err
		}
	}
}

// attempt performs a single request while holding one slot of the concurrency ceiling.
// The returned response body is already consumed and closed.
func (f *Fetcher) attempt(ctx context.Context, req *retryablehttp.Request, limit int64) (*http.Response, []byte, error) {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer f.limiter.Release(1)

	f.requests.Add(1)
	resp, err := f.client.Do(req)
	if err != nil {
		return resp, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp, nil, nil
	}

	var reader io.Reader = resp.Body
	if limit > 0 {
		// one extra byte tells an oversize body apart from one that is exactly at the limit
		reader = io.LimitReader(resp.Body, limit+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return resp, nil, err
	}
	return resp, body, nil
}
