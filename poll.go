package captcha

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
)

// TaskID is the backend's task identifier. Some backends send a JSON
// number, others a string; the original form is kept for re-encoding.
type TaskID struct {
	value   string
	numeric bool
}

// String returns the id as the backend sent it.
func (id TaskID) String() string { return id.value }

// IsZero reports whether no id was assigned.
func (id TaskID) IsZero() bool { return id.value == "" }

// MarshalJSON writes numeric ids as JSON numbers and the rest as strings.
func (id TaskID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON accepts a JSON string or a non-negative integer.
func (id *TaskID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*id = TaskID{}
		return nil
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = TaskID{value: v}
		return nil
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return decodeError("", "taskId %s is neither a string nor an integer", truncateBytes(b, 40))
	}
	*id = TaskID{value: s, numeric: true}
	return nil
}

// SubmittedTask is owned by the poll loop of the Solve that created it.
type SubmittedTask struct {
	ID          TaskID
	Type        ChallengeType
	SubmittedAt time.Time
}

// PollState is the classification of one status response.
type PollState int

const (
	StatePending PollState = iota
	StateReady
	StateFailed
)

// String returns the lower-case state name.
func (s PollState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// PollOutcome is produced once per status response by a dialect classifier.
type PollOutcome struct {
	State PollState
	// Payload is the raw solution: a text line for key-value backends, the
	// solution object for task backends.
	Payload []byte
	Cost    string
	Err     *Error
}

// clock is the time source of the poll loop.
type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, clk clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// poll runs the status loop of one task until it reaches a terminal state.
// It waits SolveDelay before the first check and between checks, tolerates
// MaxTransportFailures consecutive failed requests with backoff, and gives
// up once MaxWait has passed since submission.
func (c *Client) poll(ctx context.Context, task *SubmittedTask, log *slog.Logger) (*PollOutcome, int, error) {
	backoff := stealth.BackoffConfig{
		InitialWait: c.cfg.SolveDelay,
		MaxWait:     maxDuration(c.cfg.SolveDelay, 30*time.Second),
		Multiplier:  2.0,
		JitterPct:   0.3,
	}
	taskID := task.ID.String()
	budget := c.cfg.MaxTransportFailures
	if budget < 0 {
		budget = 0
	}

	var polls, fails int
	wait := c.cfg.SolveDelay
	for {
		if err := sleep(ctx, c.clock, wait); err != nil {
			return nil, polls, &Error{Kind: KindCancelled, TaskID: taskID, Err: err}
		}

		elapsed := c.clock.Now().Sub(task.SubmittedAt)
		if elapsed > c.cfg.MaxWait {
			log.Warn("captcha solve timed out", slog.String("taskId", taskID), slog.Int("polls", polls), slog.Duration("elapsed", elapsed))
			return nil, polls, &Error{Kind: KindTimeout, TaskID: taskID, Message: "still pending after " + c.cfg.MaxWait.String()}
		}

		polls++
		out, err := c.dialect.check(ctx, task)
		if err != nil {
			if ctx.Err() != nil {
				return nil, polls, &Error{Kind: KindCancelled, TaskID: taskID, Err: ctx.Err()}
			}
			fails++
			if fails > budget {
				return nil, polls, transportError(taskID, err)
			}
			wait = backoff.Duration(fails - 1)
			log.Warn("captcha status request failed, retrying",
				slog.String("taskId", taskID),
				slog.Int("consec_fails", fails),
				slog.Duration("backoff", wait),
				slog.Any("error", err))
			c.cfg.progress("task %s: status request failed (%d/%d), retrying", taskID, fails, budget)
			continue
		}
		fails = 0
		wait = c.cfg.SolveDelay

		switch out.State {
		case StatePending:
			log.Debug("captcha not ready", slog.String("taskId", taskID), slog.Int("poll", polls))
			c.cfg.progress("task %s: not ready yet (poll %d)", taskID, polls)
		case StateReady:
			return out, polls, nil
		default:
			e := out.Err
			if e == nil {
				e = &Error{Kind: KindUnknownBackend, Message: "failed without an error code"}
			}
			e.TaskID = taskID
			return nil, polls, e
		}
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
