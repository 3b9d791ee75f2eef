package captcha

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

func errEmptyField(name string) error {
	return fmt.Errorf("required field %s is empty or missing", name)
}

func errShape(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// looseString accepts a JSON string or number; backends disagree on
// fields like gen_time and cost.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	default:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return errors.New("expected string or number, got " + truncateBytes(b, 40))
		}
		*s = looseString(raw)
	}
	return nil
}

// firstNonEmpty returns the first non-empty value; used where backends
// name the same field differently.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func decodeGeeTestV3(payload []byte) (Solution, error) {
	var s struct {
		Challenge  string `json:"challenge"`
		Validate   string `json:"validate"`
		Seccode    string `json:"seccode"`
		GChallenge string `json:"geetest_challenge"`
		GValidate  string `json:"geetest_validate"`
		GSeccode   string `json:"geetest_seccode"`
	}
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	sol := GeeTestV3Solution{
		Challenge: firstNonEmpty(s.Challenge, s.GChallenge),
		Validate:  firstNonEmpty(s.Validate, s.GValidate),
		Seccode:   firstNonEmpty(s.Seccode, s.GSeccode),
	}
	switch {
	case sol.Challenge == "":
		return nil, errEmptyField("challenge")
	case sol.Validate == "":
		return nil, errEmptyField("validate")
	case sol.Seccode == "":
		return nil, errEmptyField("seccode")
	}
	return sol, nil
}

func decodeGeeTestV4(payload []byte) (Solution, error) {
	var s struct {
		CaptchaID     string      `json:"captcha_id"`
		LotNumber     string      `json:"lot_number"`
		PassToken     string      `json:"pass_token"`
		GenTime       looseString `json:"gen_time"`
		CaptchaOutput string      `json:"captcha_output"`
	}
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	sol := GeeTestV4Solution{
		CaptchaID:     s.CaptchaID,
		LotNumber:     s.LotNumber,
		PassToken:     s.PassToken,
		GenTime:       string(s.GenTime),
		CaptchaOutput: s.CaptchaOutput,
	}
	switch {
	case sol.CaptchaID == "":
		return nil, errEmptyField("captcha_id")
	case sol.LotNumber == "":
		return nil, errEmptyField("lot_number")
	case sol.PassToken == "":
		return nil, errEmptyField("pass_token")
	case sol.GenTime == "":
		return nil, errEmptyField("gen_time")
	case sol.CaptchaOutput == "":
		return nil, errEmptyField("captcha_output")
	}
	return sol, nil
}
