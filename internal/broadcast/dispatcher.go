// Package broadcast streams one admin message to every known recipient at a
// bounded rate and reports what happened.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"gatebot/internal/storage"
	"gatebot/internal/transport"
	logx "gatebot/pkg/logx"
)

// summaryTimeout bounds the summary send after a cancelled run.
const summaryTimeout = 10 * time.Second

var ErrInvalidRequest = errors.New("invalid broadcast request")

const abortedText = "⚠️ Broadcast aborted by an internal error. Check the logs before retrying."

// Sender is the slice of the transport the dispatcher uses.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	CopyMessage(ctx context.Context, to transport.ChatTarget, src transport.MessageRef, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Recorder appends broadcast_sent entries.
type Recorder interface {
	Append(ctx context.Context, e storage.Event) (storage.Event, error)
}

// Payload is either plain text or an existing message to copy.
type Payload struct {
	Text   string
	Source *transport.MessageRef
}

func (p Payload) empty() bool { return p.Source == nil && p.Text == "" }

type Request struct {
	Payload       Payload
	Recipients    []int64 // send order
	RatePerSecond float64
	Origin        int64 // where the summary goes
}

type Summary struct {
	Total       int
	Delivered   int
	Unreachable int
	Transient   int
	// Stopped is set when the run was cancelled before the last recipient.
	Stopped bool
	Elapsed time.Duration
}

// Failed is every attempt that did not deliver.
func (s Summary) Failed() int { return s.Unreachable + s.Transient }

// Attempted is Delivered + Failed.
func (s Summary) Attempted() int { return s.Delivered + s.Failed() }

// DefaultSummaryText renders the message sent to the origin chat.
func DefaultSummaryText(s Summary) string {
	if s.Stopped {
		return fmt.Sprintf("⏹ Broadcast stopped after %d of %d.\n\n✅ Sent: %d\n❌ Failed: %d",
			s.Attempted(), s.Total, s.Delivered, s.Failed())
	}
	return fmt.Sprintf("📢 Broadcast finished.\n\n✅ Sent: %d\n❌ Failed: %d", s.Delivered, s.Failed())
}

type Option func(*Dispatcher)

// WithObserver is called with the outcome of every attempt.
func WithObserver(fn func(transport.Outcome)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// WithSummaryText replaces DefaultSummaryText.
func WithSummaryText(fn func(Summary) string) Option {
	return func(d *Dispatcher) { d.summaryText = fn }
}

// Dispatcher runs a single sequential stream per Dispatch call. Concurrent
// calls are not coordinated; Service serializes them.
type Dispatcher struct {
	sender      Sender
	events      Recorder
	log         logx.Logger
	observe     func(transport.Outcome)
	summaryText func(Summary) string
}

func NewDispatcher(sender Sender, events Recorder, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sender:      sender,
		events:      events,
		log:         log.With(logx.String("comp", "broadcast")),
		summaryText: DefaultSummaryText,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch attempts delivery to every recipient once, in order, with at
// most RatePerSecond attempts per second, then sends the summary to Origin.
//
// Per-recipient failures are tallied, never returned. Cancelling ctx stops
// before the next attempt; a partial summary is still sent on a detached
// context and the returned Summary has Stopped set. The only error is a
// failed summary send (or an invalid request).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Summary, error) {
	if req.RatePerSecond <= 0 || req.Payload.empty() {
		return Summary{}, ErrInvalidRequest
	}
	start := time.Now()
	sum := Summary{Total: len(req.Recipients)}

	// Burst 1 with a full bucket: the first attempt goes out at once, every
	// later one waits 1/rate after its predecessor, failures included.
	lim := rate.NewLimiter(rate.Limit(req.RatePerSecond), 1)

	d.log.Info("broadcast started", logx.Int("recipients", sum.Total), logx.Float64("rate", req.RatePerSecond))

	for i, chatID := range req.Recipients {
		if err := lim.Wait(ctx); err != nil {
			sum.Stopped = true
			d.log.Warn("broadcast stopped", logx.Int("attempted", i), logx.Int("total", sum.Total), logx.Err(err))
			break
		}
		outcome := d.attempt(ctx, req.Payload, chatID)
		switch outcome {
		case transport.Delivered:
			sum.Delivered++
		case transport.RecipientUnreachable:
			sum.Unreachable++
		default:
			sum.Transient++
		}
		if d.observe != nil {
			d.observe(outcome)
		}
	}
	sum.Elapsed = time.Since(start)

	sctx := ctx
	if sum.Stopped || ctx.Err() != nil {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
		defer cancel()
	}
	_, err := d.sender.SendText(sctx, transport.ChatTarget{ChatID: req.Origin}, d.summaryText(sum), nil)

	d.log.Info("broadcast finished",
		logx.Int("delivered", sum.Delivered),
		logx.Int("unreachable", sum.Unreachable),
		logx.Int("transient", sum.Transient),
		logx.Bool("stopped", sum.Stopped),
		logx.Duration("elapsed", sum.Elapsed),
	)
	if err != nil {
		return sum, fmt.Errorf("send broadcast summary: %w", err)
	}
	return sum, nil
}

// notify sends a best-effort note to the origin chat, even after ctx ended.
func (d *Dispatcher) notify(ctx context.Context, origin int64, text string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("origin notice panicked", logx.Any("panic", r))
		}
	}()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()
	if _, err := d.sender.SendText(sctx, transport.ChatTarget{ChatID: origin}, text, nil); err != nil {
		d.log.Warn("origin notice failed", logx.Int64("chat_id", origin), logx.Err(err))
	}
}

func (d *Dispatcher) attempt(ctx context.Context, p Payload, chatID int64) transport.Outcome {
	to := transport.ChatTarget{ChatID: chatID}
	var err error
	if p.Source != nil {
		_, err = d.sender.CopyMessage(ctx, to, *p.Source, nil)
	} else {
		_, err = d.sender.SendText(ctx, to, p.Text, nil)
	}
	outcome := transport.Classify(err)
	switch outcome {
	case transport.Delivered:
		// Best-effort: a lost entry under-counts, it never causes a re-send.
		if _, lerr := d.events.Append(context.WithoutCancel(ctx), storage.Event{
			IdentityID: storage.SystemIdentity,
			Kind:       storage.EventBroadcastSent,
			Target:     chatID,
		}); lerr != nil {
			d.log.Warn("broadcast_sent not logged", logx.Int64("chat_id", chatID), logx.Err(lerr))
		}
	case transport.RecipientUnreachable:
		d.log.Warn("recipient unreachable, skipping", logx.Int64("chat_id", chatID), logx.Err(err))
	default:
		d.log.Error("broadcast send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	return outcome
}
