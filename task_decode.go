package captcha

type taskDecoder func(solution []byte) (Solution, error)

type recaptchaSolution struct {
	GRecaptchaResponse string `json:"gRecaptchaResponse"`
	Token              string `json:"token"`
	UserAgent          string `json:"userAgent"`
	RespKey            string `json:"respKey"`
}

func taskToken(t ChallengeType) taskDecoder {
	return func(solution []byte) (Solution, error) {
		var s recaptchaSolution
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		token := firstNonEmpty(s.GRecaptchaResponse, s.Token)
		if token == "" {
			return nil, errEmptyField("gRecaptchaResponse")
		}
		return TokenSolution{ChallengeType: t, Token: token, UserAgent: s.UserAgent}, nil
	}
}

// taskDecoders must cover every key of taskEncoders.
var taskDecoders = map[ChallengeType]taskDecoder{
	TypeRecaptchaV2:           taskToken(TypeRecaptchaV2),
	TypeRecaptchaV2Enterprise: taskToken(TypeRecaptchaV2Enterprise),
	TypeRecaptchaV3:           taskToken(TypeRecaptchaV3),
	TypeRecaptchaV3Enterprise: taskToken(TypeRecaptchaV3Enterprise),
	TypeFunCaptcha:            taskToken(TypeFunCaptcha),
	TypeYandexSmartCaptcha:    taskToken(TypeYandexSmartCaptcha),

	TypeHCaptcha: func(solution []byte) (Solution, error) {
		var s recaptchaSolution
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		token := firstNonEmpty(s.GRecaptchaResponse, s.Token)
		if token == "" {
			return nil, errEmptyField("gRecaptchaResponse")
		}
		return HCaptchaSolution{Token: token, RespKey: s.RespKey, UserAgent: s.UserAgent}, nil
	},

	TypeGeeTestV3: decodeGeeTestV3,
	TypeGeeTestV4: decodeGeeTestV4,

	TypeImageToText: func(solution []byte) (Solution, error) {
		var s struct {
			Text looseString `json:"text"`
		}
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		if s.Text == "" {
			return nil, errEmptyField("text")
		}
		return TextSolution{Text: string(s.Text)}, nil
	},

	TypeGrid: func(solution []byte) (Solution, error) {
		var s struct {
			CellNumbers []int `json:"cellNumbers"`
		}
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		if len(s.CellNumbers) == 0 {
			return nil, errEmptyField("cellNumbers")
		}
		return GridSolution{Cells: s.CellNumbers}, nil
	},

	// coordinates: [[x, y], ...]
	TypeCoordinates: func(solution []byte) (Solution, error) {
		var s struct {
			Coordinates [][]int `json:"coordinates"`
		}
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		if len(s.Coordinates) == 0 {
			return nil, errEmptyField("coordinates")
		}
		points := make([]Point, 0, len(s.Coordinates))
		for i, c := range s.Coordinates {
			if len(c) < 2 {
				return nil, errShape("coordinate %d has %d values, want at least 2", i, len(c))
			}
			points = append(points, Point{X: c[0], Y: c[1]})
		}
		return CoordinatesSolution{Points: points}, nil
	},

	// rectangles: [[x1, y1, x2, y2], ...]
	TypeBoundingBox: func(solution []byte) (Solution, error) {
		var s struct {
			Rectangles [][]int `json:"rectangles"`
		}
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		if len(s.Rectangles) == 0 {
			return nil, errEmptyField("rectangles")
		}
		boxes := make([]Box, 0, len(s.Rectangles))
		for i, r := range s.Rectangles {
			if len(r) != 4 {
				return nil, errShape("rectangle %d has %d values, want 4", i, len(r))
			}
			boxes = append(boxes, Box{X: r[0], Y: r[1], Width: r[2] - r[0], Height: r[3] - r[1]})
		}
		return BoundingBoxSolution{Boxes: boxes}, nil
	},

	TypeAntiGate: func(solution []byte) (Solution, error) {
		var s struct {
			URL          string            `json:"url"`
			Domain       string            `json:"domain"`
			Cookies      map[string]string `json:"cookies"`
			LocalStorage map[string]string `json:"localStorage"`
			Fingerprint  map[string]string `json:"fingerprint"`
			Headers      map[string]string `json:"headers"`
			Screenshots  []string          `json:"screenshots"`
		}
		if err := json.Unmarshal(solution, &s); err != nil {
			return nil, err
		}
		if s.URL == "" && len(s.Cookies) == 0 && len(s.LocalStorage) == 0 {
			return nil, errEmptyField("url, cookies or localStorage")
		}
		return AntiGateSolution{
			URL:          s.URL,
			Domain:       s.Domain,
			Cookies:      s.Cookies,
			LocalStorage: s.LocalStorage,
			Fingerprint:  s.Fingerprint,
			Headers:      s.Headers,
			Screenshots:  s.Screenshots,
		}, nil
	},
}

func (d *taskDialect) decode(task *SubmittedTask, payload []byte) (Solution, error) {
	dec, ok := taskDecoders[task.Type]
	if !ok {
		return nil, decodeError(task.ID.String(), "no task decoder for %s", task.Type)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, decodeError(task.ID.String(), "%s: ready without a solution", task.Type)
	}
	sol, err := dec(payload)
	if err != nil {
		return nil, &Error{Kind: KindDecoding, TaskID: task.ID.String(), Message: task.Type.String(), Err: err}
	}
	return sol, nil
}
