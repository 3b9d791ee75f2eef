package captcha

import "time"

// Solution is the typed payload of a solved challenge. The concrete type
// is fixed by the challenge type.
type Solution interface {
	Type() ChallengeType
}

// TokenSolution is the response token of reCAPTCHA, FunCaptcha and
// Yandex SmartCaptcha.
type TokenSolution struct {
	ChallengeType ChallengeType
	Token         string
	// UserAgent is set when the backend reports the one the token is bound to.
	UserAgent string
}

// HCaptchaSolution carries the hCaptcha token and the optional respKey.
type HCaptchaSolution struct {
	Token     string
	RespKey   string
	UserAgent string
}

// GeeTestV3Solution holds the three values the GeeTest v3 widget posts back.
type GeeTestV3Solution struct {
	Challenge string
	Validate  string
	Seccode   string
}

// GeeTestV4Solution holds the GeeTest v4 validation fields.
type GeeTestV4Solution struct {
	CaptchaID     string
	LotNumber     string
	PassToken     string
	GenTime       string
	CaptchaOutput string
}

// TextSolution is the recognized text of an ImageToText challenge.
type TextSolution struct {
	Text string
}

// GridSolution lists the clicked cells, 1-based, row by row.
type GridSolution struct {
	Cells []int
}

// Point is one click position in image pixels.
type Point struct {
	X, Y int
}

// CoordinatesSolution lists the click points in order.
type CoordinatesSolution struct {
	Points []Point
}

// Box is a rectangle in image pixels.
type Box struct {
	X, Y, Width, Height int
}

// BoundingBoxSolution lists the boxes drawn around the requested objects.
type BoundingBoxSolution struct {
	Boxes []Box
}

// AntiGateSolution is whatever the template collected in the worker's browser.
type AntiGateSolution struct {
	URL          string
	Domain       string
	Cookies      map[string]string
	LocalStorage map[string]string
	Fingerprint  map[string]string
	Headers      map[string]string
	Screenshots  []string
}

func (s TokenSolution) Type() ChallengeType    { return s.ChallengeType }
func (HCaptchaSolution) Type() ChallengeType    { return TypeHCaptcha }
func (GeeTestV3Solution) Type() ChallengeType   { return TypeGeeTestV3 }
func (GeeTestV4Solution) Type() ChallengeType   { return TypeGeeTestV4 }
func (TextSolution) Type() ChallengeType        { return TypeImageToText }
func (GridSolution) Type() ChallengeType        { return TypeGrid }
func (CoordinatesSolution) Type() ChallengeType { return TypeCoordinates }
func (BoundingBoxSolution) Type() ChallengeType { return TypeBoundingBox }
func (AntiGateSolution) Type() ChallengeType    { return TypeAntiGate }

// Result is returned by a successful Solve.
type Result struct {
	TaskID   string
	Solution Solution
	// Cost is the price reported by the backend, verbatim; empty if none.
	Cost    string
	Elapsed time.Duration
	Polls   int
}

// Token returns the primary string answer for token and text solutions,
// or "" for structured ones.
func (r *Result) Token() string {
	switch s := r.Solution.(type) {
	case TokenSolution:
		return s.Token
	case HCaptchaSolution:
		return s.Token
	case TextSolution:
		return s.Text
	}
	return ""
}
