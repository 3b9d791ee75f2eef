package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecaptcha = RecaptchaV2{SiteKey: "6Le-wvkSAAAAAPBMRTvw0Q4Muexq9bi0DJwx_mJ-", PageURL: "https://example.com/login"}

func TestSolveTaskDialect(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp(`{"errorId":0,"taskId":123}`)},
		check: []fakeResponse{
			okResp(`{"errorId":0,"status":"processing"}`),
			okResp(`{"errorId":0,"status":"processing"}`),
			okResp(`{"errorId":0,"status":"ready","solution":{"gRecaptchaResponse":"03AGdBq24PBCbwiDRaS_MJ7Z"},"cost":"0.00200"}`),
		},
	}
	c, clk := newTestClient(t, "anticaptcha", ft, nil)

	res, err := c.Solve(context.Background(), testRecaptcha)
	require.NoError(t, err)
	assert.Equal(t, "123", res.TaskID)
	assert.Equal(t, "03AGdBq24PBCbwiDRaS_MJ7Z", res.Token())
	assert.Equal(t, TokenSolution{ChallengeType: TypeRecaptchaV2, Token: "03AGdBq24PBCbwiDRaS_MJ7Z"}, res.Solution)
	assert.Equal(t, "0.00200", res.Cost)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 15*time.Second, res.Elapsed)

	assert.Equal(t, 3, ft.checkCount())
	assert.Equal(t, 4, ft.requestCount())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clk.slept())

	// the numeric task id goes back as a number
	status := ft.requests[1]
	assert.Equal(t, "https://api.anti-captcha.com/getTaskResult", status.URL)
	assert.JSONEq(t, `{"clientKey":"test-key","taskId":123}`, string(status.Body))
}

func TestSolveKeyValueDialect(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|2122988149")},
		check:  []fakeResponse{okResp("CAPCHA_NOT_READY"), okResp("OK|03AHJ_Vuve5Asa4koK3KSMyUkCq0vUFCR5Im4CwB7PzO3dCxIo")},
	}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	res, err := c.Solve(context.Background(), testRecaptcha)
	require.NoError(t, err)
	assert.Equal(t, "2122988149", res.TaskID)
	assert.Equal(t, "03AHJ_Vuve5Asa4koK3KSMyUkCq0vUFCR5Im4CwB7PzO3dCxIo", res.Token())
	assert.Equal(t, 2, res.Polls)
	assert.Empty(t, res.Cost)

	status := ft.requests[1]
	assert.Equal(t, "POST", status.Method)
	assert.Equal(t, "https://2captcha.com/res.php", status.URL)
	assert.Equal(t, "action=get&id=2122988149&json=0&key=test-key", string(status.Body))
}

func TestSolveRejectedBadKey(t *testing.T) {
	ft := &fakeTransport{submit: []fakeResponse{okResp("ERROR_WRONG_USER_KEY")}}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	_, err := c.Solve(context.Background(), testRecaptcha)
	e := requireKind(t, err, KindRejected)
	assert.Equal(t, ReasonBadKey, e.Reason)
	assert.Equal(t, "ERROR_WRONG_USER_KEY", e.Code)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.True(t, errors.Is(err, &Error{Kind: KindRejected, Reason: ReasonBadKey}))
	assert.False(t, errors.Is(err, &Error{Kind: KindRejected, Reason: ReasonNoBalance}))
	assert.Equal(t, 1, ft.requestCount())
	assert.Zero(t, ft.checkCount())
}

func TestSolveRejectedTaskDialect(t *testing.T) {
	ft := &fakeTransport{submit: []fakeResponse{okResp(`{"errorId":1,"errorCode":"ERROR_ZERO_BALANCE","errorDescription":"Account has zero balance"}`)}}
	c, _ := newTestClient(t, "capmonster", ft, nil)

	_, err := c.Solve(context.Background(), testRecaptcha)
	e := requireKind(t, err, KindRejected)
	assert.Equal(t, ReasonNoBalance, e.Reason)
	assert.Equal(t, "Account has zero balance", e.Message)
	assert.Zero(t, ft.checkCount())
}

func TestSolveConfigurationErrorsSendNothing(t *testing.T) {
	t.Run("empty api key", func(t *testing.T) {
		ft := &fakeTransport{}
		_, err := NewProvider("2captcha", Config{APIKey: "  ", Transport: ft, Logger: discardLogger()})
		requireKind(t, err, KindConfiguration)
		assert.True(t, errors.Is(err, ErrConfiguration))
		assert.Zero(t, ft.requestCount())
	})

	tests := []struct {
		name     string
		provider string
		ch       Challenge
		reason   Reason
	}{
		{"missing site key", "anticaptcha", RecaptchaV2{PageURL: "https://example.com"}, 0},
		{"nil challenge", "anticaptcha", nil, 0},
		{"antigate on key-value", "2captcha", AntiGate{TemplateName: "CloudFlare cookies", PageURL: "https://example.com", Variables: map[string]string{}}, ReasonUnsupportedTask},
		{"bounding box on key-value", "rucaptcha", BoundingBox{Body: []byte{0x89, 'P', 'N', 'G'}, Comment: "cars"}, ReasonUnsupportedTask},
		{"image url on key-value", "2captcha", ImageToText{ImageURL: "https://example.com/captcha.png"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			c, _ := newTestClient(t, tt.provider, ft, nil)
			_, err := c.Solve(context.Background(), tt.ch)
			e := requireKind(t, err, KindConfiguration)
			assert.Equal(t, tt.reason, e.Reason)
			assert.Zero(t, ft.requestCount())
		})
	}
}

func TestSolveDecodingError(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp(`{"errorId":0,"taskId":"7f3c"}`)},
		check:  []fakeResponse{okResp(`{"errorId":0,"status":"ready","solution":{"cellNumbers":[]}}`)},
	}
	c, _ := newTestClient(t, "anticaptcha", ft, nil)

	_, err := c.Solve(context.Background(), Grid{Body: []byte("img"), Comment: "select all buses"})
	e := requireKind(t, err, KindDecoding)
	assert.Equal(t, "7f3c", e.TaskID)
}

func TestSolveAsync(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|99")},
		check:  []fakeResponse{okResp("OK|w93bx")},
	}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	ch := c.SolveAsync(context.Background(), ImageToText{Body: []byte("gif")})
	out, open := <-ch
	require.True(t, open)
	require.NoError(t, out.Err)
	assert.Equal(t, TextSolution{Text: "w93bx"}, out.Result.Solution)

	_, open = <-ch
	assert.False(t, open, "channel must be closed after the outcome")
}

func TestSolveConcurrent(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|1"), okResp("OK|2"), okResp("OK|3")},
		check:  []fakeResponse{okResp("OK|token")},
	}
	c, _ := newTestClient(t, "2captcha", ft, nil)

	outs := make([]<-chan Outcome, 3)
	for i := range outs {
		outs[i] = c.SolveAsync(context.Background(), testRecaptcha)
	}
	ids := map[string]bool{}
	for _, ch := range outs {
		out := <-ch
		require.NoError(t, out.Err)
		ids[out.Result.TaskID] = true
	}
	assert.Len(t, ids, 3)
}

func TestSolveProgressHook(t *testing.T) {
	ft := &fakeTransport{
		submit: []fakeResponse{okResp("OK|55")},
		check:  []fakeResponse{okResp("CAPCHA_NOT_READY"), okResp("OK|abc")},
	}
	var msgs []string
	c, _ := newTestClient(t, "2captcha", ft, func(cfg *Config) {
		cfg.OnProgress = func(msg string) { msgs = append(msgs, msg) }
	})

	_, err := c.Solve(context.Background(), testRecaptcha)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "task 55 created")
	assert.Contains(t, msgs[1], "not ready")
	assert.Contains(t, msgs[2], "solved after 2 polls")
}
