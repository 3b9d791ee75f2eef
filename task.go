package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// taskDialect speaks the JSON task protocol: POST /createTask, then POST
// /getTaskResult until status is ready.
type taskDialect struct {
	baseURL     string
	apiKey      string
	callbackURL string
	proxy       *taskProxy
	// typeNames renames task types for backends that spell them
	// differently (capsolver: FunCaptchaTaskProxyLess).
	typeNames map[string]string
	transport Transport
}

func newTaskDialect(typeNames map[string]string) func(cfg *Config, t Transport) dialect {
	return func(cfg *Config, t Transport) dialect {
		d := &taskDialect{
			baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:      cfg.APIKey,
			callbackURL: cfg.CallbackURL,
			typeNames:   typeNames,
			transport:   t,
		}
		if cfg.TaskProxy != "" {
			d.proxy, _ = parseProxy(cfg.TaskProxy)
		}
		return d
	}
}

type taskObject = map[string]any

type taskEncoder func(ch Challenge, proxy *taskProxy) (taskObject, error)

// proxied picks between the Proxyless and proxy task names and adds the
// proxy fields when a task proxy is configured.
func proxied(base string, task taskObject, proxy *taskProxy) taskObject {
	if proxy == nil {
		task["type"] = base + "Proxyless"
		return task
	}
	task["type"] = base
	addProxyFields(task, proxy)
	return task
}

func addProxyFields(task taskObject, p *taskProxy) {
	task["proxyType"] = p.Type
	task["proxyAddress"] = p.Address
	task["proxyPort"] = p.Port
	if p.Login != "" {
		task["proxyLogin"] = p.Login
		task["proxyPassword"] = p.Password
	}
}

func putNonEmpty(task taskObject, key, val string) {
	if val != "" {
		task[key] = val
	}
}

var taskEncoders = map[ChallengeType]taskEncoder{
	TypeRecaptchaV2: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[RecaptchaV2](ch)
		t := taskObject{
			"websiteURL":  c.PageURL,
			"websiteKey":  c.SiteKey,
			"isInvisible": c.Invisible,
		}
		putNonEmpty(t, "recaptchaDataSValue", c.DataS)
		putNonEmpty(t, "userAgent", c.UserAgent)
		putNonEmpty(t, "cookies", c.Cookies)
		return proxied("RecaptchaV2Task", t, proxy), nil
	},
	TypeRecaptchaV2Enterprise: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[RecaptchaV2Enterprise](ch)
		t := taskObject{
			"websiteURL": c.PageURL,
			"websiteKey": c.SiteKey,
		}
		if len(c.Payload) > 0 {
			t["enterprisePayload"] = c.Payload
		}
		putNonEmpty(t, "apiDomain", c.APIDomain)
		putNonEmpty(t, "userAgent", c.UserAgent)
		return proxied("RecaptchaV2EnterpriseTask", t, proxy), nil
	},
	TypeRecaptchaV3: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[RecaptchaV3](ch)
		return recaptchaV3Task(c.SiteKey, c.PageURL, c.Action, c.Domain, c.MinScore, false), nil
	},
	TypeRecaptchaV3Enterprise: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[RecaptchaV3Enterprise](ch)
		return recaptchaV3Task(c.SiteKey, c.PageURL, c.Action, c.Domain, c.MinScore, true), nil
	},
	TypeFunCaptcha: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[FunCaptcha](ch)
		t := taskObject{
			"websiteURL":       c.PageURL,
			"websitePublicKey": c.PublicKey,
		}
		putNonEmpty(t, "funcaptchaApiJSSubdomain", strings.TrimPrefix(strings.TrimPrefix(c.ServiceURL, "https://"), "http://"))
		if c.Data != "" {
			blob, err := json.MarshalToString(map[string]string{"blob": c.Data})
			if err != nil {
				return nil, err
			}
			t["data"] = blob
		}
		putNonEmpty(t, "userAgent", c.UserAgent)
		return proxied("FunCaptchaTask", t, proxy), nil
	},
	TypeHCaptcha: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[HCaptcha](ch)
		t := taskObject{
			"websiteURL":  c.PageURL,
			"websiteKey":  c.SiteKey,
			"isInvisible": c.Invisible,
		}
		if c.AdditionalData != "" {
			t["enterprisePayload"] = map[string]string{"rqdata": c.AdditionalData}
		}
		putNonEmpty(t, "userAgent", c.UserAgent)
		return proxied("HCaptchaTask", t, proxy), nil
	},
	TypeGeeTestV3: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[GeeTestV3](ch)
		t := taskObject{
			"websiteURL": c.PageURL,
			"gt":         c.GT,
			"challenge":  c.Challenge,
		}
		putNonEmpty(t, "geetestApiServerSubdomain", c.APIServer)
		putNonEmpty(t, "geetestGetLib", c.GetLib)
		return proxied("GeeTestTask", t, proxy), nil
	},
	TypeGeeTestV4: func(ch Challenge, proxy *taskProxy) (taskObject, error) {
		c, _ := as[GeeTestV4](ch)
		t := taskObject{
			"websiteURL": c.PageURL,
			"gt":         c.CaptchaID,
			"version":    4,
		}
		putNonEmpty(t, "geetestApiServerSubdomain", c.APIServer)
		putNonEmpty(t, "geetestGetLib", c.GetLib)
		if len(c.InitParams) > 0 {
			t["initParameters"] = c.InitParams
		}
		return proxied("GeeTestTask", t, proxy), nil
	},
	TypeImageToText: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[ImageToText](ch)
		k := c.Constraints
		t := taskObject{
			"type":    "ImageToTextTask",
			"phrase":  k.Phrase,
			"case":    k.CaseSensitive,
			"numeric": k.Numeric,
			"math":    k.Math,
		}
		if len(c.Body) > 0 {
			t["body"] = base64.StdEncoding.EncodeToString(c.Body)
		} else {
			t["imageUrl"] = c.ImageURL
		}
		if k.MinLength > 0 {
			t["minLength"] = k.MinLength
		}
		if k.MaxLength > 0 {
			t["maxLength"] = k.MaxLength
		}
		putNonEmpty(t, "comment", k.Comment)
		return t, nil
	},
	TypeAntiGate: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[AntiGate](ch)
		t := taskObject{
			"type":         "AntiGateTask",
			"websiteURL":   c.PageURL,
			"templateName": c.TemplateName,
			"variables":    c.Variables,
		}
		if len(c.DomainsOfInterest) > 0 {
			t["domainsOfInterest"] = c.DomainsOfInterest
		}
		if c.Proxy != "" {
			p, err := parseProxy(c.Proxy)
			if err != nil {
				return nil, err
			}
			addProxyFields(t, p)
		}
		return t, nil
	},
	TypeYandexSmartCaptcha: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[YandexSmartCaptcha](ch)
		return taskObject{
			"type":       "YandexSmartCaptchaTaskProxyless",
			"websiteURL": c.PageURL,
			"websiteKey": c.SiteKey,
		}, nil
	},
	TypeGrid: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[Grid](ch)
		t := taskObject{
			"type":    "GridTask",
			"body":    base64.StdEncoding.EncodeToString(c.Body),
			"comment": c.Comment,
		}
		if c.Rows > 0 {
			t["rows"] = c.Rows
		}
		if c.Columns > 0 {
			t["columns"] = c.Columns
		}
		return t, nil
	},
	TypeBoundingBox: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[BoundingBox](ch)
		return taskObject{
			"type":    "BoundingBoxTask",
			"body":    base64.StdEncoding.EncodeToString(c.Body),
			"comment": c.Comment,
		}, nil
	},
	TypeCoordinates: func(ch Challenge, _ *taskProxy) (taskObject, error) {
		c, _ := as[Coordinates](ch)
		t := taskObject{
			"type": "ImageToCoordinatesTask",
			"body": base64.StdEncoding.EncodeToString(c.Body),
			"mode": firstNonEmpty(c.Mode, "points"),
		}
		putNonEmpty(t, "comment", c.Comment)
		return t, nil
	},
}

// recaptchaV3Task is always proxyless.
func recaptchaV3Task(siteKey, pageURL, action, domain string, minScore float64, enterprise bool) taskObject {
	t := taskObject{
		"type":       "RecaptchaV3TaskProxyless",
		"websiteURL": pageURL,
		"websiteKey": siteKey,
	}
	if minScore > 0 {
		t["minScore"] = minScore
	}
	putNonEmpty(t, "pageAction", action)
	putNonEmpty(t, "apiDomain", domain)
	if enterprise {
		t["isEnterprise"] = true
	}
	return t
}

func (d *taskDialect) supports(t ChallengeType) bool {
	_, ok := taskEncoders[t]
	return ok
}

func (d *taskDialect) encode(ch Challenge) (*Request, error) {
	enc, ok := taskEncoders[ch.Type()]
	if !ok {
		return nil, &Error{Kind: KindConfiguration, Reason: ReasonUnsupportedTask, Message: ch.Type().String() + " has no task encoding"}
	}
	task, err := enc(ch, d.proxy)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, e
		}
		return nil, &Error{Kind: KindConfiguration, Message: ch.Type().String(), Err: err}
	}
	if name, ok := d.typeNames[task["type"].(string)]; ok {
		task["type"] = name
	}

	payload := map[string]any{
		"clientKey": d.apiKey,
		"task":      task,
	}
	if d.callbackURL != "" {
		payload["callbackUrl"] = d.callbackURL
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "encode createTask", Err: err}
	}
	return d.jsonRequest("/createTask", body), nil
}

func (d *taskDialect) jsonRequest(path string, body []byte) *Request {
	return &Request{
		Method: "POST",
		URL:    d.baseURL + path,
		Header: map[string]string{"content-type": "application/json"},
		Body:   body,
	}
}

type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           TaskID `json:"taskId"`
}

func (d *taskDialect) submit(ctx context.Context, req *Request) (TaskID, error) {
	data, err := roundTrip(ctx, d.transport, req)
	if err != nil {
		return TaskID{}, transportError("", err)
	}
	var resp createTaskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return TaskID{}, &Error{Kind: KindUnknownBackend, Message: "malformed createTask response: " + truncateBytes(data, 200), Err: err}
	}
	if resp.ErrorID != 0 {
		return TaskID{}, taskBackendError(KindRejected, resp.ErrorID, resp.ErrorCode, resp.ErrorDescription)
	}
	if resp.TaskID.IsZero() {
		return TaskID{}, &Error{Kind: KindUnknownBackend, Message: "empty taskId in createTask response"}
	}
	return resp.TaskID, nil
}

// taskBackendError falls back to the numeric errorId when errorCode is
// missing so Code is never empty.
func taskBackendError(stage ErrorKind, errorID int, code, description string) *Error {
	e := backendError(stage, "", code, description)
	if e.Code == "" {
		e.Code = strconv.Itoa(errorID)
	}
	return e
}

type taskResultResponse struct {
	ErrorID          int                 `json:"errorId"`
	ErrorCode        string              `json:"errorCode"`
	ErrorDescription string              `json:"errorDescription"`
	Status           string              `json:"status"`
	Solution         jsoniter.RawMessage `json:"solution"`
	Cost             looseString         `json:"cost"`
}

func (d *taskDialect) check(ctx context.Context, task *SubmittedTask) (*PollOutcome, error) {
	body, err := json.Marshal(map[string]any{
		"clientKey": d.apiKey,
		"taskId":    task.ID,
	})
	if err != nil {
		return nil, err
	}
	data, err := roundTrip(ctx, d.transport, d.jsonRequest("/getTaskResult", body))
	if err != nil {
		return nil, err
	}
	return classifyTask(data), nil
}

// classifyTask maps one getTaskResult body to a PollOutcome.
func classifyTask(data []byte) *PollOutcome {
	var resp taskResultResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return &PollOutcome{State: StateFailed, Err: &Error{Kind: KindUnknownBackend,
			Message: "malformed getTaskResult response: " + truncateBytes(data, 200), Err: err}}
	}
	if resp.ErrorID != 0 {
		return &PollOutcome{State: StateFailed, Err: taskBackendError(KindPollingFailed, resp.ErrorID, resp.ErrorCode, resp.ErrorDescription)}
	}
	switch resp.Status {
	case "processing", "idle":
		return &PollOutcome{State: StatePending}
	case "ready":
		return &PollOutcome{State: StateReady, Payload: resp.Solution, Cost: string(resp.Cost)}
	}
	return &PollOutcome{State: StateFailed, Err: &Error{Kind: KindUnknownBackend, Code: resp.Status,
		Message: "unexpected task status"}}
}
