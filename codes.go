package captcha

import (
	"fmt"
	"strings"
)

// Reason normalizes a backend error code across providers.
type Reason int

const (
	ReasonBadKey           Reason = iota + 1 // API key wrong or unknown
	ReasonNoBalance                          // account has no funds
	ReasonMalformedRequest                   // a task parameter was refused
	ReasonUnsupportedTask                    // task type or method not offered
	ReasonWorkerCancelled                    // a worker gave up on the task
	ReasonUnsolvable                         // workers could not solve it
	ReasonNoSlots                            // backend overloaded or rate limited
	ReasonTaskNotFound                       // task id unknown or expired
	ReasonBadProxy                           // task proxy unusable
	ReasonAccessDenied                       // account or client IP blocked
	ReasonUnrecognized                       // anything else, raw code kept on the error
)

var reasonNames = map[Reason]string{
	ReasonBadKey:           "bad api key",
	ReasonNoBalance:        "insufficient balance",
	ReasonMalformedRequest: "malformed request",
	ReasonUnsupportedTask:  "unsupported task",
	ReasonWorkerCancelled:  "cancelled by worker",
	ReasonUnsolvable:       "unsolvable",
	ReasonNoSlots:          "no slots available",
	ReasonTaskNotFound:     "task not found",
	ReasonBadProxy:         "bad proxy",
	ReasonAccessDenied:     "access denied",
	ReasonUnrecognized:     "unrecognized",
}

// String returns a short human description of the reason.
func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// backendCodes covers both dialects; they share the ERROR_ vocabulary.
var backendCodes = map[string]Reason{
	"ERROR_WRONG_USER_KEY":     ReasonBadKey,
	"ERROR_KEY_DOES_NOT_EXIST": ReasonBadKey,
	"ERROR_KEY_DENIED_ACCESS":  ReasonBadKey,
	"ERROR_INVALID_KEY":        ReasonBadKey,
	"BAD_KEY":                  ReasonBadKey,

	"ERROR_ZERO_BALANCE": ReasonNoBalance,
	"NO_BALANCE":         ReasonNoBalance,

	"ERROR_WRONG_GOOGLEKEY":           ReasonMalformedRequest,
	"ERROR_GOOGLEKEY":                 ReasonMalformedRequest,
	"ERROR_PAGEURL":                   ReasonMalformedRequest,
	"ERROR_BAD_PARAMETERS":            ReasonMalformedRequest,
	"ERROR_BAD_TOKEN_OR_PAGEURL":      ReasonMalformedRequest,
	"ERROR_EMPTY_ACTION":              ReasonMalformedRequest,
	"ERROR_WRONG_ID_FORMAT":           ReasonMalformedRequest,
	"ERROR_ZERO_CAPTCHA_FILESIZE":     ReasonMalformedRequest,
	"ERROR_TOO_BIG_CAPTCHA_FILESIZE":  ReasonMalformedRequest,
	"ERROR_WRONG_FILE_EXTENSION":      ReasonMalformedRequest,
	"ERROR_IMAGE_TYPE_NOT_SUPPORTED":  ReasonMalformedRequest,
	"ERROR_UPLOAD":                    ReasonMalformedRequest,
	"ERROR_INVALID_TASK_DATA":         ReasonMalformedRequest,
	"ERROR_RECAPTCHA_INVALID_SITEKEY": ReasonMalformedRequest,
	"ERROR_RECAPTCHA_INVALID_DOMAIN":  ReasonMalformedRequest,
	"ERROR_INCORRECT_SESSION_DATA":    ReasonMalformedRequest,
	"ERROR_TEMPLATE_NOT_FOUND":        ReasonMalformedRequest,
	"ERROR_CAPTCHAIMAGE_BLOCKED":      ReasonMalformedRequest,

	"ERROR_NO_SUCH_METHOD":     ReasonUnsupportedTask,
	"ERROR_TASK_NOT_SUPPORTED": ReasonUnsupportedTask,
	"ERROR_TASK_ABSENT":        ReasonUnsupportedTask,
	"ERROR_METHOD_CALL":        ReasonUnsupportedTask,

	"STATUS_CANCEL": ReasonWorkerCancelled,

	"ERROR_CAPTCHA_UNSOLVABLE":    ReasonUnsolvable,
	"ERROR_BAD_DUPLICATES":        ReasonUnsolvable,
	"ERROR_RECAPTCHA_TIMEOUT":     ReasonUnsolvable,
	"ERROR_FAILED_LOADING_WIDGET": ReasonUnsolvable,

	"ERROR_NO_SLOT_AVAILABLE":   ReasonNoSlots,
	"ERROR_TOO_MUCH_REQUESTS":   ReasonNoSlots,
	"ERROR_SERVICE_UNAVALIABLE": ReasonNoSlots,
	"MAX_USER_TURN":             ReasonNoSlots,

	"ERROR_NO_SUCH_CAPCHA_ID": ReasonTaskNotFound,
	"ERROR_WRONG_CAPTCHA_ID":  ReasonTaskNotFound,
	"WRONG_CAPTCHA_ID":        ReasonTaskNotFound,
	"ERROR_TASKID_INVALID":    ReasonTaskNotFound,

	"ERROR_PROXY_CONNECTION_FAILED":         ReasonBadProxy,
	"ERROR_PROXY_CONNECT_REFUSED":           ReasonBadProxy,
	"ERROR_PROXY_CONNECT_TIMEOUT":           ReasonBadProxy,
	"ERROR_PROXY_READ_TIMEOUT":              ReasonBadProxy,
	"ERROR_PROXY_BANNED":                    ReasonBadProxy,
	"ERROR_PROXY_TRANSPARENT":               ReasonBadProxy,
	"ERROR_PROXY_NOT_AUTHORISED":            ReasonBadProxy,
	"ERROR_PROXY_INCOMPATIBLE_HTTP_VERSION": ReasonBadProxy,
	"ERROR_BAD_PROXY":                       ReasonBadProxy,

	"ERROR_IP_NOT_ALLOWED":    ReasonAccessDenied,
	"ERROR_IP_BANNED":         ReasonAccessDenied,
	"IP_BANNED":               ReasonAccessDenied,
	"ERROR_IP_BLOCKED":        ReasonAccessDenied,
	"ERROR_ACCOUNT_SUSPENDED": ReasonAccessDenied,
}

// MapCode returns the Reason for a backend code. The message is only
// consulted when the code is empty, since some backends put the code there.
func MapCode(code, message string) Reason {
	c := normalizeCode(code)
	if c == "" {
		c = normalizeCode(message)
	}
	if r, ok := backendCodes[c]; ok {
		return r
	}
	return ReasonUnrecognized
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
