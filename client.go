package captcha

import (
	"context"
	"fmt"
	"log/slog"

	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Solver abstracts CAPTCHA solving services (2captcha, anti-captcha,
// capsolver, ...). Both wire dialects implement it through *Client.
type Solver interface {
	// Solve submits ch and blocks until it is solved, fails, times out,
	// or ctx is cancelled.
	Solve(ctx context.Context, ch Challenge) (*Result, error)

	// SolveAsync runs Solve in the background. The channel receives exactly
	// one Outcome and is then closed.
	SolveAsync(ctx context.Context, ch Challenge) <-chan Outcome

	// Supports reports whether the backend accepts the challenge type.
	Supports(t ChallengeType) bool
}

// Outcome is delivered by SolveAsync.
type Outcome struct {
	Result *Result
	Err    error
}

// dialect is one wire format. encode is pure; submit and check each issue
// exactly one request.
type dialect interface {
	supports(t ChallengeType) bool
	encode(ch Challenge) (*Request, error)
	submit(ctx context.Context, req *Request) (TaskID, error)
	check(ctx context.Context, task *SubmittedTask) (*PollOutcome, error)
	decode(task *SubmittedTask, payload []byte) (Solution, error)
}

// Client is safe for concurrent use. Concurrent solves share only the
// transport.
type Client struct {
	provider  string
	dialect   dialect
	cfg       Config
	transport Transport
	clock     clock
	log       *slog.Logger
}

var _ Solver = (*Client)(nil)

// newClient validates cfg, fills defaults and wires the transport.
func newClient(provider string, cfg Config, build func(cfg *Config, t Transport) dialect) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, &Error{Kind: KindConfiguration, Err: err}
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}

	t := cfg.Transport
	if t == nil {
		st, err := NewStealthTransport(cfg.TransportProxy, cfg.RequestTimeout)
		if err != nil {
			return nil, &Error{Kind: KindConfiguration, Message: "transport", Err: err}
		}
		t = st
	}

	log := cfg.Logger.With(slog.String("provider", provider))
	if cfg.TransportProxy != "" {
		log.Debug("captcha api calls proxied", slog.String("proxy", stealth.MaskProxy(cfg.TransportProxy)))
	}

	return &Client{
		provider:  provider,
		dialect:   build(&cfg, t),
		cfg:       cfg,
		transport: t,
		clock:     realClock{},
		log:       log,
	}, nil
}

// Provider returns the provider id the client was built for.
func (c *Client) Provider() string { return c.provider }

// Supports reports whether the backend dialect can encode t.
func (c *Client) Supports(t ChallengeType) bool { return c.dialect.supports(t) }

// Solve validates and encodes ch, submits it, and polls until a terminal
// state. Every failure is an *Error.
func (c *Client) Solve(ctx context.Context, ch Challenge) (*Result, error) {
	if err := Validate(ch); err != nil {
		return nil, err
	}
	if !c.dialect.supports(ch.Type()) {
		return nil, &Error{Kind: KindConfiguration, Reason: ReasonUnsupportedTask,
			Message: fmt.Sprintf("%s does not support %s", c.provider, ch.Type())}
	}
	req, err := c.dialect.encode(ch)
	if err != nil {
		return nil, err
	}

	log := c.log.With(slog.String("solve_id", uuid.NewString()), slog.String("type", ch.Type().String()))
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Err: err}
	}

	start := c.clock.Now()
	id, err := c.dialect.submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: KindCancelled, Err: ctx.Err()}
		}
		log.Warn("captcha task rejected", slog.Any("error", err))
		c.cfg.progress("%s: task not accepted: %v", c.provider, err)
		return nil, err
	}

	task := &SubmittedTask{ID: id, Type: ch.Type(), SubmittedAt: start}
	log.Info("captcha task created", slog.String("taskId", id.String()))
	c.cfg.progress("%s: task %s created, waiting %s", c.provider, id, c.cfg.SolveDelay)

	out, polls, err := c.poll(ctx, task, log)
	if err != nil {
		if KindOf(err) != KindCancelled {
			log.Warn("captcha solve failed", slog.String("taskId", id.String()), slog.Any("error", err))
		}
		c.cfg.progress("task %s: %v", id, err)
		return nil, err
	}

	sol, err := c.dialect.decode(task, out.Payload)
	if err != nil {
		log.Warn("captcha solution malformed", slog.String("taskId", id.String()), slog.Any("error", err))
		return nil, err
	}

	elapsed := c.clock.Now().Sub(start)
	log.Info("captcha solved", slog.String("taskId", id.String()), slog.Int("polls", polls), slog.Duration("elapsed", elapsed))
	c.cfg.progress("task %s: solved after %d polls", id, polls)
	return &Result{
		TaskID:   id.String(),
		Solution: sol,
		Cost:     out.Cost,
		Elapsed:  elapsed,
		Polls:    polls,
	}, nil
}

// SolveAsync runs Solve in a goroutine and delivers one Outcome on the
// returned channel, which is then closed.
func (c *Client) SolveAsync(ctx context.Context, ch Challenge) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := c.Solve(ctx, ch)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
