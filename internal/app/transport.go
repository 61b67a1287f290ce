package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// pacedTransport is shared by every request of a run, robots.txt included.
// Each exchange waits for the pacer, so consecutive requests leave at least
// one delay apart no matter how many workers are waiting. The timeout starts
// after pacing and covers the body read.
type pacedTransport struct {
	ctx     context.Context
	pacer   *rate.Limiter
	timeout time.Duration
	next    http.RoundTripper
}

func newPacedTransport(ctx context.Context, delay, timeout time.Duration) *pacedTransport {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &pacedTransport{
		ctx:     ctx,
		pacer:   rate.NewLimiter(limit, 1),
		timeout: timeout,
		next:    http.DefaultTransport.(*http.Transport).Clone(),
	}
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before request: %w", err)
	}
	if err := t.pacer.Wait(t.ctx); err != nil {
		return nil, fmt.Errorf("run cancelled before request: %w", err)
	}
	if t.timeout <= 0 {
		return t.next.RoundTrip(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
