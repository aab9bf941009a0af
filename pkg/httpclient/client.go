// Package httpclient provides the HTTP plumbing for leakhound.
// It offers a retryable HTTP client with default headers and proxy configuration, and the
// rate limited Fetcher every GitHub request is routed through.
package httpclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// UserAgent is sent with every request unless the caller sets its own.
const UserAgent = "leakhound"

const requestTimeout = 5 * time.Minute

// ignoreProxy controls whether the HTTP_PROXY environment variable should be ignored.
// Uses atomic operations for thread-safe access.
var ignoreProxy atomic.Bool

// SetIgnoreProxy sets whether to ignore the HTTP_PROXY environment variable.
func SetIgnoreProxy(ignore bool) {
	ignoreProxy.Store(ignore)
}

// HeaderRoundTripper is an http.RoundTripper that adds default headers to requests.
// Headers are only added if they're not already present in the request.
type HeaderRoundTripper struct {
	Headers map[string]string
	Next    http.RoundTripper
}

func (hrt *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if hrt.Next == nil {
		return nil, http.ErrNotSupported
	}

	for k, v := range hrt.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	return hrt.Next.RoundTrip(req)
}

// GetLeakhoundHTTPClient creates a retryable HTTP client for one-off downloads such as rule files.
// Requests are retried on 429 and 5xx (except 501). HTTP_PROXY is honored unless SetIgnoreProxy(true) was called.
func GetLeakhoundHTTPClient(defaultHeaders map[string]string) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			log.Error().Err(err).Msg("Retrying HTTP request, error occurred")
			return true, nil
		}

		if resp == nil {
			log.Error().Msg("Retrying HTTP request, no response")
			return false, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
			log.Trace().Str("url", requestURL(resp)).Int("statusCode", resp.StatusCode).Msg("Retrying HTTP request")
			return true, nil
		}

		return false, nil
	}

	client.HTTPClient.Transport = &HeaderRoundTripper{Headers: withUserAgent(defaultHeaders), Next: newTransport()}
	return client
}

// NewTransport returns the base transport shared by all leakhound clients.
func NewTransport() *http.Transport {
	return newTransport()
}

func newTransport() *http.Transport {
	// #nosec G402 - InsecureSkipVerify required to scan through intercepting proxies
	tr := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConnsPerHost: 100,
	}

	if !ignoreProxy.Load() {
		proxyServer, useHttpProxy := os.LookupEnv("HTTP_PROXY")
		if useHttpProxy {
			proxyUrl, err := url.Parse(proxyServer)
			if err != nil {
				log.Fatal().Err(err).Str("HTTP_PROXY", proxyServer).Msg("Invalid Proxy URL in HTTP_PROXY environment variable")
			}
			log.Debug().Str("proxy", proxyUrl.String()).Msg("Using HTTP_PROXY")
			tr.Proxy = http.ProxyURL(proxyUrl)
		}
	}

	return tr
}

func withUserAgent(headers map[string]string) map[string]string {
	merged := map[string]string{"User-Agent": UserAgent}
	for k, v := range headers {
		merged[k] = v
	}
	return merged
}

func requestURL(resp *http.Response) string {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.String()
}
