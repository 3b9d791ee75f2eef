package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Request is one outbound API call.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Transport issues a request and returns the raw body and HTTP status.
// Implementations must be safe for concurrent use.
type Transport interface {
	Do(ctx context.Context, req *Request) (body []byte, status int, err error)
}

// apiHeaderOrder keeps the API calls' header order stable.
var apiHeaderOrder = []string{
	"content-type",
	"user-agent",
	"accept",
	"accept-encoding",
}

const apiUserAgent = "go-captcha/1.0"

// StealthTransport sends API calls through a go-stealth BrowserClient,
// which owns the pooled connections shared by all solves of a client.
type StealthTransport struct {
	client  *stealth.BrowserClient
	timeout time.Duration
}

// NewStealthTransport creates the default transport. proxy may be empty.
func NewStealthTransport(proxy string, timeout time.Duration) (*StealthTransport, error) {
	opts := []stealth.ClientOption{
		stealth.WithHeaderOrder(apiHeaderOrder),
	}
	if proxy != "" {
		opts = append(opts, stealth.WithProxy(proxy))
	}
	bc, err := stealth.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("stealth client: %w", err)
	}
	return &StealthTransport{client: bc, timeout: timeout}, nil
}

type doResult struct {
	body   []byte
	status int
	err    error
}

// Do runs the request and gives up after the per-request timeout or when
// ctx is done, whichever comes first.
func (t *StealthTransport) Do(ctx context.Context, req *Request) ([]byte, int, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	headers := map[string]string{
		"user-agent":      apiUserAgent,
		"accept":          "*/*",
		"accept-encoding": "gzip, deflate, br",
	}
	for k, v := range req.Header {
		headers[k] = v
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	done := make(chan doResult, 1)
	go func() {
		b, _, status, err := t.client.DoWithHeaderOrder(req.Method, req.URL, headers, body, apiHeaderOrder)
		done <- doResult{body: b, status: status, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, 0, requestError(req, r.err)
		}
		return r.body, r.status, nil
	case <-ctx.Done():
		return nil, 0, requestError(req, ctx.Err())
	}
}

// requestError names the request without its query string or userinfo and
// unwraps *url.Error, whose message repeats the full URL.
func requestError(req *Request, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return fmt.Errorf("%s %s: %w", req.Method, redactURL(req.URL), err)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparsable url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

// roundTrip runs req and treats anything but HTTP 200 as a transport failure.
func roundTrip(ctx context.Context, t Transport, req *Request) ([]byte, error) {
	body, status, err := t.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("HTTP %d: %s", status, truncateBytes(body, 200))
	}
	return body, nil
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
