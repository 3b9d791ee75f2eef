package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollWaitsSolveDelayBeforeFirstCheck(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|1")},
		check:  []fakeResponse{okResp("OK|tok")},
	}
	c, clk := newTestClient(t, "2captcha", ft, func(cfg *Config) { cfg.SolveDelay = 20 * time.Second })
	start := clk.Now()

	var firstCheck time.Time
	ft.onCheck = func(n int) {
		if n == 1 {
			firstCheck = clk.Now()
		}
	}

	_, err := c.Solve(context.Background(), testRecaptcha)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, firstCheck.Sub(start))
}

func TestPollTimeout(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|777")},
		check:  []fakeResponse{okResp("CAPCHA_NOT_READY")},
	}
	c, _ := newTestClient(t, "2captcha", ft, func(cfg *Config) { cfg.MaxWait = 30 * time.Second })

	_, err := c.Solve(context.Background(), testRecaptcha)
	e := requireKind(t, err, KindTimeout)
	assert.Equal(t, "777", e.TaskID)
	assert.True(t, errors.Is(err, ErrTimeout))
	// checks at 5s, 10s, ... 30s; the wake-up at 35s gives up without a request
	assert.Equal(t, 6, ft.checkCount())
}

func TestPollTransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		check   []fakeResponse
		kind    ErrorKind
		checks  int
		wantErr bool
	}{
		{
			name:   "recovers within budget",
			check:  []fakeResponse{{err: errNetwork}, {err: errNetwork}, {err: errNetwork}, okResp("OK|tok")},
			checks: 4,
		},
		{
			name:    "budget exhausted",
			check:   []fakeResponse{{err: errNetwork}},
			kind:    KindTransport,
			checks:  4,
			wantErr: true,
		},
		{
			name:    "non-200 counts as failure",
			check:   []fakeResponse{{status: 502, body: "Bad Gateway"}},
			kind:    KindTransport,
			checks:  4,
			wantErr: true,
		},
		{
			name: "counter resets after a good response",
			check: []fakeResponse{
				{err: errNetwork}, {err: errNetwork}, {err: errNetwork},
				okResp("CAPCHA_NOT_READY"),
				{err: errNetwork}, {err: errNetwork}, {err: errNetwork},
				okResp("OK|tok"),
			},
			checks: 8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{submit: []fakeResponse{okResp("OK|9")}, check: tt.check}
			c, _ := newTestClient(t, "2captcha", ft, nil)

			res, err := c.Solve(context.Background(), testRecaptcha)
			assert.Equal(t, tt.checks, ft.checkCount())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "tok", res.Token())
				return
			}
			e := requireKind(t, err, tt.kind)
			assert.Equal(t, "9", e.TaskID)
		})
	}
}

func TestPollNoTransportFailuresTolerated(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|9")},
		check:  []fakeResponse{{err: errNetwork}, okResp("OK|tok")},
	}
	c, _ := newTestClient(t, "2captcha", ft, func(cfg *Config) { cfg.MaxTransportFailures = -1 })

	_, err := c.Solve(context.Background(), testRecaptcha)
	e := requireKind(t, err, KindTransport)
	assert.Equal(t, "9", e.TaskID)
	assert.True(t, errors.Is(err, errNetwork))
	assert.Equal(t, 1, ft.checkCount())
}

func TestPollBackoffAfterTransportFailure(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|9")},
		check:  []fakeResponse{{err: errNetwork}, {err: errNetwork}, okResp("OK|tok")},
	}
	c, clk := newTestClient(t, "2captcha", ft, nil)

	_, err := c.Solve(context.Background(), testRecaptcha)
	require.NoError(t, err)

	slept := clk.slept()
	require.Len(t, slept, 3)
	assert.Equal(t, 5*time.Second, slept[0])
	assert.True(t, slept[1] > 0)
	assert.True(t, slept[2] > 0)
}

func TestPollCancelled(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|31")},
		check:  []fakeResponse{okResp("CAPCHA_NOT_READY")},
	}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ft.onCheck = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	_, err := c.Solve(ctx, testRecaptcha)
	e := requireKind(t, err, KindCancelled)
	assert.Equal(t, "31", e.TaskID)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 2, ft.checkCount(), "no status request after cancellation")
}

func TestSolveCancelledBeforeSubmit(t *testing.T) {
	ft := &fakeTransport{submit: []fakeResponse{okResp("OK|1")}}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Solve(ctx, testRecaptcha)
	requireKind(t, err, KindCancelled)
	assert.Zero(t, ft.requestCount())
}

func TestPollTerminalFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		submit   string
		status   string
		kind     ErrorKind
		reason   Reason
		code     string
	}{
		{"worker cancelled", "2captcha", "OK|5", "STATUS_CANCEL", KindPollingFailed, ReasonWorkerCancelled, "STATUS_CANCEL"},
		{"unsolvable", "rucaptcha", "OK|5", "ERROR_CAPTCHA_UNSOLVABLE", KindPollingFailed, ReasonUnsolvable, "ERROR_CAPTCHA_UNSOLVABLE"},
		{"unknown kv code", "2captcha", "OK|5", "ERROR_SOMETHING_NEW|details", KindUnknownBackend, ReasonUnrecognized, "ERROR_SOMETHING_NEW"},
		{"task errorId", "anticaptcha", `{"errorId":0,"taskId":5}`, `{"errorId":16,"errorCode":"ERROR_NO_SUCH_CAPCHA_ID","errorDescription":"Task not found"}`, KindPollingFailed, ReasonTaskNotFound, "ERROR_NO_SUCH_CAPCHA_ID"},
		{"unknown task status", "capsolver", `{"errorId":0,"taskId":"5"}`, `{"errorId":0,"status":"queued-forever"}`, KindUnknownBackend, 0, "queued-forever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{
				submit: []fakeResponse{okResp(tt.submit)},
				check:  []fakeResponse{okResp(tt.status)},
			}
			c, _ := newTestClient(t, tt.provider, ft, nil)

			_, err := c.Solve(context.Background(), testRecaptcha)
			e := requireKind(t, err, tt.kind)
			assert.Equal(t, tt.reason, e.Reason)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, "5", e.TaskID)
			assert.Equal(t, 1, ft.checkCount())
		})
	}
}

func TestTaskIDJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`123`, "123", false},
		{`"abc-123"`, "abc-123", false},
		{`null`, "", false},
		{`-4`, "", true},
		{`1.5`, "", true},
		{`{}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id TaskID
			err := json.Unmarshal([]byte(tt.in), &id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
			if tt.want != "" {
				out, err := json.Marshal(id)
				require.NoError(t, err)
				assert.Equal(t, tt.in, string(out))
			}
		})
	}
}
