package captcha

import (
	"strconv"
	"strings"
)

type kvDecoder func(payload string) (Solution, error)

func kvToken(t ChallengeType) kvDecoder {
	return func(payload string) (Solution, error) {
		if payload == "" {
			return nil, errEmptyField("token")
		}
		return TokenSolution{ChallengeType: t, Token: payload}, nil
	}
}

// kvDecoders must cover every key of kvEncoders.
var kvDecoders = map[ChallengeType]kvDecoder{
	TypeRecaptchaV2:           kvToken(TypeRecaptchaV2),
	TypeRecaptchaV2Enterprise: kvToken(TypeRecaptchaV2Enterprise),
	TypeRecaptchaV3:           kvToken(TypeRecaptchaV3),
	TypeRecaptchaV3Enterprise: kvToken(TypeRecaptchaV3Enterprise),
	TypeFunCaptcha:            kvToken(TypeFunCaptcha),
	TypeYandexSmartCaptcha:    kvToken(TypeYandexSmartCaptcha),

	TypeHCaptcha: func(payload string) (Solution, error) {
		if !strings.HasPrefix(payload, "{") {
			if payload == "" {
				return nil, errEmptyField("token")
			}
			return HCaptchaSolution{Token: payload}, nil
		}
		var s struct {
			Token     string `json:"token"`
			RespKey   string `json:"respKey"`
			UserAgent string `json:"useragent"`
		}
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, err
		}
		if s.Token == "" {
			return nil, errEmptyField("token")
		}
		return HCaptchaSolution{Token: s.Token, RespKey: s.RespKey, UserAgent: s.UserAgent}, nil
	},

	TypeGeeTestV3: func(payload string) (Solution, error) {
		return decodeGeeTestV3([]byte(payload))
	},
	TypeGeeTestV4: func(payload string) (Solution, error) {
		return decodeGeeTestV4([]byte(payload))
	},

	TypeImageToText: func(payload string) (Solution, error) {
		if payload == "" {
			return nil, errEmptyField("text")
		}
		return TextSolution{Text: payload}, nil
	},

	// click:3/6/8
	TypeGrid: func(payload string) (Solution, error) {
		list, ok := strings.CutPrefix(payload, "click:")
		if !ok {
			return nil, errShape("grid answer %q lacks click: prefix", payload)
		}
		var cells []int
		for _, f := range strings.Split(list, "/") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || n <= 0 {
				return nil, errShape("grid cell %q is not a positive integer", f)
			}
			cells = append(cells, n)
		}
		return GridSolution{Cells: cells}, nil
	},

	// coordinates:x=39,y=59;x=252,y=72
	TypeCoordinates: func(payload string) (Solution, error) {
		list, ok := strings.CutPrefix(payload, "coordinates:")
		if !ok {
			return nil, errShape("coordinates answer %q lacks coordinates: prefix", payload)
		}
		var points []Point
		for _, pair := range strings.Split(list, ";") {
			var p Point
			var seen int
			for _, kv := range strings.Split(pair, ",") {
				k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, errShape("coordinate %q is not an integer", kv)
				}
				switch k {
				case "x":
					p.X = n
					seen |= 1
				case "y":
					p.Y = n
					seen |= 2
				}
			}
			if seen != 3 {
				return nil, errShape("point %q needs both x and y", pair)
			}
			points = append(points, p)
		}
		return CoordinatesSolution{Points: points}, nil
	},
}

func (d *kvDialect) decode(task *SubmittedTask, payload []byte) (Solution, error) {
	dec, ok := kvDecoders[task.Type]
	if !ok {
		return nil, decodeError(task.ID.String(), "no key-value decoder for %s", task.Type)
	}
	sol, err := dec(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, &Error{Kind: KindDecoding, TaskID: task.ID.String(), Message: task.Type.String(), Err: err}
	}
	return sol, nil
}
