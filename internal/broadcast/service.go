package broadcast

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatebot/internal/runtime/supervisor"
	logx "gatebot/pkg/logx"
)

// ErrBusy is returned while another run is in progress. One stream at a time
// keeps the configured rate a global bound.
var ErrBusy = errors.New("a broadcast is already running")

// ErrNoRecipients means there is nobody to send to.
var ErrNoRecipients = errors.New("no recipients")

// ErrAborted marks a run that died mid-stream.
var ErrAborted = errors.New("broadcast aborted")

type RunState string

const (
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunFailed   RunState = "failed"
)

// Run is the status of one background dispatch.
type Run struct {
	ID         string
	State      RunState
	Recipients int
	StartedAt  time.Time
	EndedAt    time.Time
	Summary    Summary
	Err        error
}

// RecipientSource lists every known contact channel.
type RecipientSource interface {
	Contacts(ctx context.Context) ([]int64, error)
}

// Service runs dispatches in the background under a supervisor.
type Service struct {
	d       *Dispatcher
	src     RecipientSource
	sup     *supervisor.Supervisor
	rate    func() float64
	log     logx.Logger
	keepRun int

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	runs    map[string]*Run
	order   []string
}

// NewService wires a service. rate is read at the start of every run so a
// config reload applies to the next broadcast.
func NewService(d *Dispatcher, src RecipientSource, sup *supervisor.Supervisor, rate func() float64, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		d:       d,
		src:     src,
		sup:     sup,
		rate:    rate,
		log:     log.With(logx.String("comp", "broadcast_svc")),
		keepRun: 20,
		runs:    map[string]*Run{},
	}
}

// Start loads recipients and launches a run. It returns the run id and the
// recipient count, or ErrBusy / ErrNoRecipients.
func (s *Service) Start(ctx context.Context, payload Payload, origin int64) (string, int, error) {
	if payload.empty() {
		return "", 0, ErrInvalidRequest
	}
	s.mu.Lock()
	busy := s.current != ""
	s.mu.Unlock()
	if busy {
		return "", 0, ErrBusy
	}

	recipients, err := s.src.Contacts(ctx)
	if err != nil {
		return "", 0, err
	}
	if len(recipients) == 0 {
		return "", 0, ErrNoRecipients
	}

	s.mu.Lock()
	if s.current != "" {
		s.mu.Unlock()
		return "", 0, ErrBusy
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(s.sup.Context())
	run := &Run{ID: id, State: RunRunning, Recipients: len(recipients), StartedAt: time.Now()}
	s.current, s.cancel = id, cancel
	s.runs[id] = run
	s.order = append(s.order, id)
	s.trimLocked()
	s.mu.Unlock()

	req := Request{Payload: payload, Recipients: recipients, RatePerSecond: s.rate(), Origin: origin}
	s.sup.Go0("broadcast:"+id, func(context.Context) {
		defer cancel()
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			// finish must run even on panic or the slot stays taken.
			s.log.Error("broadcast panicked", logx.String("run", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			s.finish(id, Summary{Total: len(recipients)}, fmt.Errorf("%w: %v", ErrAborted, r))
			s.d.notify(runCtx, origin, abortedText)
		}()
		sum, err := s.d.Dispatch(runCtx, req)
		s.finish(id, sum, err)
	})
	s.log.Info("broadcast queued", logx.String("run", id), logx.Int("recipients", len(recipients)))
	return id, len(recipients), nil
}

func (s *Service) finish(id string, sum Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.runs[id]; r != nil {
		r.Summary, r.Err, r.EndedAt = sum, err, time.Now()
		r.State = RunFinished
		if err != nil {
			r.State = RunFailed
		}
	}
	if s.current == id {
		s.current, s.cancel = "", nil
	}
	if err != nil {
		s.log.Error("broadcast run failed", logx.String("run", id), logx.Err(err))
	}
}

func (s *Service) trimLocked() {
	for len(s.order) > s.keepRun {
		old := s.order[0]
		if old == s.current {
			break
		}
		s.order = s.order[1:]
		delete(s.runs, old)
	}
}

// Stop cancels the running broadcast, if any. It reports whether one was running.
func (s *Service) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Running returns the id of the active run ("" when idle).
func (s *Service) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Status returns a copy of the run.
func (s *Service) Status(id string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return *r, true
}
