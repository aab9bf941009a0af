package httpclient

import (
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LimitedTransport holds one slot of Limiter from the start of a request until its body is closed.
// It lets clients that are not driven by the Fetcher (the go-github client) share the same ceiling.
type LimitedTransport struct {
	Limiter *semaphore.Weighted
	Next    http.RoundTripper
}

func (lt *LimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if lt.Next == nil {
		return nil, http.ErrNotSupported
	}
	if lt.Limiter == nil {
		return lt.Next.RoundTrip(req)
	}

	if err := lt.Limiter.Acquire(req.Context(), 1); err != nil {
		return nil, err
	}

	resp, err := lt.Next.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		lt.Limiter.Release(1)
		return resp, err
	}

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: func() { lt.Limiter.Release(1) }}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
