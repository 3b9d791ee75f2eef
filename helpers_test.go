package captcha

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	body   string
	status int
	err    error
}

func okResp(body string) fakeResponse { return fakeResponse{body: body, status: 200} }

var errNetwork = errors.New("connection reset by peer")

// fakeTransport answers submit calls from submit and status calls from
// check, repeating the last status response once the script runs out.
type fakeTransport struct {
	mu       sync.Mutex
	submit   []fakeResponse
	check    []fakeResponse
	requests []*Request
	checks   int
	// onCheck runs before the n-th (1-based) status response is returned.
	onCheck func(n int)
}

func isSubmit(req *Request) bool {
	return strings.HasSuffix(req.URL, "/in.php") || strings.HasSuffix(req.URL, "/createTask")
}

func (f *fakeTransport) Do(ctx context.Context, req *Request) ([]byte, int, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var resp fakeResponse
	var hook func(int)
	var n int
	if isSubmit(req) {
		if len(f.submit) == 0 {
			f.mu.Unlock()
			return nil, 0, errors.New("unexpected submit")
		}
		resp = f.submit[0]
		f.submit = f.submit[1:]
	} else {
		f.checks++
		n = f.checks
		if len(f.check) == 0 {
			f.mu.Unlock()
			return nil, 0, errors.New("unexpected status request")
		}
		resp = f.check[min(n-1, len(f.check)-1)]
		hook = f.onCheck
	}
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if resp.err != nil {
		return nil, 0, resp.err
	}
	return []byte(resp.body), resp.status, nil
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func (f *fakeTransport) lastSubmit(t *testing.T) *Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if isSubmit(f.requests[i]) {
			return f.requests[i]
		}
	}
	t.Fatal("no submit request recorded")
	return nil
}

// fakeClock advances instantly on every After call.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, provider string, ft *fakeTransport, mod func(*Config)) (*Client, *fakeClock) {
	t.Helper()
	cfg := Config{
		APIKey:    "test-key",
		Transport: ft,
		Logger:    discardLogger(),
	}
	if mod != nil {
		mod(&cfg)
	}
	c, err := NewProvider(provider, cfg)
	require.NoError(t, err)
	clk := newFakeClock()
	c.clock = clk
	return c, clk
}

func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "want *Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind, "error: %v", err)
	return e
}
