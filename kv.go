package captcha

import (
	"context"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"
)

// kvDialect speaks the key-value protocol: form POSTs to /in.php and
// /res.php, single-line text responses.
type kvDialect struct {
	baseURL     string
	apiKey      string
	softID      string
	callbackURL string
	proxy       *taskProxy
	transport   Transport
}

func newKVDialect(cfg *Config, t Transport) dialect {
	d := &kvDialect{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		softID:      cfg.SoftID,
		callbackURL: cfg.CallbackURL,
		transport:   t,
	}
	if cfg.TaskProxy != "" {
		d.proxy, _ = parseProxy(cfg.TaskProxy)
	}
	return d
}

type kvEncoder func(ch Challenge, v url.Values) error

var kvEncoders = map[ChallengeType]kvEncoder{
	TypeRecaptchaV2: func(ch Challenge, v url.Values) error {
		c, _ := as[RecaptchaV2](ch)
		v.Set("method", "userrecaptcha")
		v.Set("googlekey", c.SiteKey)
		v.Set("pageurl", c.PageURL)
		setFlag(v, "invisible", c.Invisible)
		setNonEmpty(v, "data-s", c.DataS)
		setNonEmpty(v, "userAgent", c.UserAgent)
		setNonEmpty(v, "cookies", c.Cookies)
		return nil
	},
	TypeRecaptchaV2Enterprise: func(ch Challenge, v url.Values) error {
		c, _ := as[RecaptchaV2Enterprise](ch)
		v.Set("method", "userrecaptcha")
		v.Set("enterprise", "1")
		v.Set("googlekey", c.SiteKey)
		v.Set("pageurl", c.PageURL)
		setNonEmpty(v, "domain", c.APIDomain)
		setNonEmpty(v, "userAgent", c.UserAgent)
		if s, ok := c.Payload["s"].(string); ok {
			v.Set("data-s", s)
		}
		return nil
	},
	TypeRecaptchaV3: func(ch Challenge, v url.Values) error {
		c, _ := as[RecaptchaV3](ch)
		encodeKVRecaptchaV3(v, c.SiteKey, c.PageURL, c.Action, c.Domain, c.MinScore)
		return nil
	},
	TypeRecaptchaV3Enterprise: func(ch Challenge, v url.Values) error {
		c, _ := as[RecaptchaV3Enterprise](ch)
		encodeKVRecaptchaV3(v, c.SiteKey, c.PageURL, c.Action, c.Domain, c.MinScore)
		v.Set("enterprise", "1")
		return nil
	},
	TypeFunCaptcha: func(ch Challenge, v url.Values) error {
		c, _ := as[FunCaptcha](ch)
		v.Set("method", "funcaptcha")
		v.Set("publickey", c.PublicKey)
		v.Set("pageurl", c.PageURL)
		setNonEmpty(v, "surl", c.ServiceURL)
		setNonEmpty(v, "data[blob]", c.Data)
		setNonEmpty(v, "userAgent", c.UserAgent)
		return nil
	},
	TypeHCaptcha: func(ch Challenge, v url.Values) error {
		c, _ := as[HCaptcha](ch)
		v.Set("method", "hcaptcha")
		v.Set("sitekey", c.SiteKey)
		v.Set("pageurl", c.PageURL)
		setFlag(v, "invisible", c.Invisible)
		setNonEmpty(v, "data", c.AdditionalData)
		setNonEmpty(v, "userAgent", c.UserAgent)
		return nil
	},
	TypeGeeTestV3: func(ch Challenge, v url.Values) error {
		c, _ := as[GeeTestV3](ch)
		v.Set("method", "geetest")
		v.Set("gt", c.GT)
		v.Set("challenge", c.Challenge)
		v.Set("pageurl", c.PageURL)
		setNonEmpty(v, "api_server", c.APIServer)
		return nil
	},
	TypeGeeTestV4: func(ch Challenge, v url.Values) error {
		c, _ := as[GeeTestV4](ch)
		v.Set("method", "geetest_v4")
		v.Set("captcha_id", c.CaptchaID)
		v.Set("pageurl", c.PageURL)
		setNonEmpty(v, "api_server", c.APIServer)
		return nil
	},
	TypeImageToText: func(ch Challenge, v url.Values) error {
		c, _ := as[ImageToText](ch)
		if len(c.Body) == 0 {
			return configError("%s: key-value backends need the image body, not a URL", ch.Type())
		}
		v.Set("method", "base64")
		v.Set("body", base64.StdEncoding.EncodeToString(c.Body))
		k := c.Constraints
		setFlag(v, "phrase", k.Phrase)
		setFlag(v, "regsense", k.CaseSensitive)
		setFlag(v, "calc", k.Math)
		if k.Numeric > 0 {
			v.Set("numeric", strconv.Itoa(k.Numeric))
		}
		if k.MinLength > 0 {
			v.Set("min_len", strconv.Itoa(k.MinLength))
		}
		if k.MaxLength > 0 {
			v.Set("max_len", strconv.Itoa(k.MaxLength))
		}
		setNonEmpty(v, "textinstructions", k.Comment)
		return nil
	},
	TypeYandexSmartCaptcha: func(ch Challenge, v url.Values) error {
		c, _ := as[YandexSmartCaptcha](ch)
		v.Set("method", "yandex")
		v.Set("sitekey", c.SiteKey)
		v.Set("pageurl", c.PageURL)
		return nil
	},
	TypeGrid: func(ch Challenge, v url.Values) error {
		c, _ := as[Grid](ch)
		v.Set("method", "base64")
		v.Set("recaptcha", "1")
		v.Set("body", base64.StdEncoding.EncodeToString(c.Body))
		v.Set("textinstructions", c.Comment)
		if c.Rows > 0 {
			v.Set("recaptcharows", strconv.Itoa(c.Rows))
		}
		if c.Columns > 0 {
			v.Set("recaptchacols", strconv.Itoa(c.Columns))
		}
		return nil
	},
	TypeCoordinates: func(ch Challenge, v url.Values) error {
		c, _ := as[Coordinates](ch)
		if c.Mode == "rectangles" {
			return configError("%s: rectangles mode is not offered by key-value backends", ch.Type())
		}
		v.Set("method", "base64")
		v.Set("coordinatescaptcha", "1")
		v.Set("body", base64.StdEncoding.EncodeToString(c.Body))
		setNonEmpty(v, "textinstructions", c.Comment)
		return nil
	},
}

func encodeKVRecaptchaV3(v url.Values, siteKey, pageURL, action, domain string, minScore float64) {
	v.Set("method", "userrecaptcha")
	v.Set("version", "v3")
	v.Set("googlekey", siteKey)
	v.Set("pageurl", pageURL)
	setNonEmpty(v, "action", action)
	setNonEmpty(v, "domain", domain)
	if minScore > 0 {
		v.Set("min_score", strconv.FormatFloat(minScore, 'f', -1, 64))
	}
}

// kvProxyAware lists the methods the workers can run through a task proxy.
var kvProxyAware = map[ChallengeType]bool{
	TypeRecaptchaV2:           true,
	TypeRecaptchaV2Enterprise: true,
	TypeRecaptchaV3:           true,
	TypeRecaptchaV3Enterprise: true,
	TypeFunCaptcha:            true,
	TypeHCaptcha:              true,
	TypeGeeTestV3:             true,
	TypeGeeTestV4:             true,
	TypeYandexSmartCaptcha:    true,
}

func setFlag(v url.Values, key string, on bool) {
	if on {
		v.Set(key, "1")
	}
}

func setNonEmpty(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func (d *kvDialect) supports(t ChallengeType) bool {
	_, ok := kvEncoders[t]
	return ok
}

func (d *kvDialect) encode(ch Challenge) (*Request, error) {
	enc, ok := kvEncoders[ch.Type()]
	if !ok {
		return nil, &Error{Kind: KindConfiguration, Reason: ReasonUnsupportedTask, Message: ch.Type().String() + " has no key-value encoding"}
	}
	v := url.Values{}
	v.Set("key", d.apiKey)
	v.Set("json", "0")
	if err := enc(ch, v); err != nil {
		return nil, err
	}
	setNonEmpty(v, "soft_id", d.softID)
	setNonEmpty(v, "pingback", d.callbackURL)
	if d.proxy != nil && kvProxyAware[ch.Type()] {
		v.Set("proxy", d.proxy.kvString())
		v.Set("proxytype", strings.ToUpper(d.proxy.Type))
	}
	return &Request{
		Method: "POST",
		URL:    d.baseURL + "/in.php",
		Header: map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:   []byte(v.Encode()),
	}, nil
}

func (d *kvDialect) submit(ctx context.Context, req *Request) (TaskID, error) {
	body, err := roundTrip(ctx, d.transport, req)
	if err != nil {
		return TaskID{}, transportError("", err)
	}
	line := strings.TrimSpace(string(body))
	if id, ok := strings.CutPrefix(line, "OK|"); ok && id != "" {
		return TaskID{value: id}, nil
	}
	code, msg := splitKVError(line)
	return TaskID{}, backendError(KindRejected, "", code, msg)
}

// check posts the status query as a form; the key never goes in a URL.
func (d *kvDialect) check(ctx context.Context, task *SubmittedTask) (*PollOutcome, error) {
	v := url.Values{}
	v.Set("key", d.apiKey)
	v.Set("action", "get")
	v.Set("id", task.ID.String())
	v.Set("json", "0")
	body, err := roundTrip(ctx, d.transport, &Request{
		Method: "POST",
		URL:    d.baseURL + "/res.php",
		Header: map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:   []byte(v.Encode()),
	})
	if err != nil {
		return nil, err
	}
	return classifyKV(string(body)), nil
}

// classifyKV maps one status line to a PollOutcome. It also understands
// the STATUS_* lines of SMS activation backends, which share the protocol.
func classifyKV(raw string) *PollOutcome {
	line := strings.TrimSpace(raw)
	switch {
	case line == "CAPCHA_NOT_READY", line == "STATUS_WAIT_CODE", strings.HasPrefix(line, "STATUS_WAIT_RETRY"):
		return &PollOutcome{State: StatePending}
	case strings.HasPrefix(line, "OK|"):
		return &PollOutcome{State: StateReady, Payload: []byte(strings.TrimPrefix(line, "OK|"))}
	case strings.HasPrefix(line, "STATUS_OK:"):
		return &PollOutcome{State: StateReady, Payload: []byte(strings.TrimPrefix(line, "STATUS_OK:"))}
	}
	code, msg := splitKVError(line)
	return &PollOutcome{State: StateFailed, Err: backendError(KindPollingFailed, "", code, msg)}
}

// splitKVError separates "ERROR_CODE|detail" or "ERROR_CODE: detail".
func splitKVError(line string) (code, msg string) {
	if i := strings.IndexAny(line, "|:"); i > 0 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])
	}
	return line, ""
}
