// Package router turns transport updates into handler calls. Updates are
// spread over shards by identity so one identity is always handled by the
// same worker, in arrival order, while different identities run in parallel.
package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gatebot/internal/runtime/supervisor"
	kit "gatebot/internal/transport"
	logx "gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdmin
)

type Command struct {
	Name        string
	Description string
	Access      Access
	// Hidden commands work but are left out of the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type CallbackRoute struct {
	Scope   string
	Action  string
	Access  Access
	Timeout time.Duration
	// Throttle applies the per-identity cooldown.
	Throttle bool
	Handle   HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update   kit.Update
	Message  *kit.Message
	Callback *kit.Callback

	Chat    kit.ChatTarget
	FromID  int64
	IsAdmin bool

	Route   string   // command name, "cb:scope:action" or "text"
	Args    []string // command arguments
	Payload string   // callback payload

	ReqID  string
	Logger logx.Logger

	adapter  kit.Adapter
	answered atomic.Bool
}

func (r *Request) Adapter() kit.Adapter { return r.adapter }

// Reply sends text (HTML) to the request's chat.
func (r *Request) Reply(ctx context.Context, m tgui.Message) (kit.MessageRef, error) {
	return m.Send(ctx, r.adapter, r.Chat)
}

// Answer acknowledges the callback once; later calls are no-ops.
func (r *Request) Answer(ctx context.Context, text string) error {
	if r.Callback == nil || !r.answered.CompareAndSwap(false, true) {
		return nil
	}
	return r.adapter.AnswerCallback(ctx, r.Callback.ID, text)
}

// Texts are the router's own replies.
type Texts struct {
	Unknown   string
	Forbidden string
	Busy      string
	Throttled string
}

type Options struct {
	Shards     int
	QueueSize  int
	Timeout    time.Duration
	Cooldown   Middleware
	Observe    func(kind, result string)
	ShardDepth func(shard, depth int)
	Texts      Texts
}

type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	opt     Options

	mu        sync.RWMutex
	admins    []int64
	cmds      map[string]Command
	cmdList   []Command
	callbacks map[string]map[string]CallbackRoute
	fallback  *Command

	shards []chan func()
}

func New(log logx.Logger, adapter kit.Adapter, admins []int64, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Shards <= 0 {
		opt.Shards = 8
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 64
	}
	if opt.Texts.Unknown == "" {
		opt.Texts.Unknown = "Unknown command."
	}
	if opt.Texts.Forbidden == "" {
		opt.Texts.Forbidden = "Not allowed."
	}
	if opt.Texts.Busy == "" {
		opt.Texts.Busy = "Busy, please try again."
	}
	r := &Router{
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		opt:       opt,
		admins:    append([]int64(nil), admins...),
		cmds:      map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		shards:    make([]chan func(), opt.Shards),
	}
	for i := range r.shards {
		r.shards[i] = make(chan func(), opt.QueueSize)
	}
	return r
}

// SetAdmins swaps the admin list. Safe during hot reload.
func (r *Router) SetAdmins(ids []int64) {
	cp := append([]int64(nil), ids...)
	r.mu.Lock()
	r.admins = cp
	r.mu.Unlock()
}

func (r *Router) IsAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.admins {
		if a == id {
			return true
		}
	}
	return false
}

// SetRegistry replaces commands, callbacks and the fallback for plain
// messages (fallback may be nil).
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute, fallback *Command) {
	byName := map[string]Command{}
	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		byName[name] = c
		list = append(list, c)
	}
	cb := map[string]map[string]CallbackRoute{}
	for _, c := range cbs {
		if c.Scope == "" || c.Action == "" || c.Handle == nil {
			continue
		}
		if cb[c.Scope] == nil {
			cb[c.Scope] = map[string]CallbackRoute{}
		}
		cb[c.Scope][c.Action] = c
	}

	r.mu.Lock()
	r.cmds, r.cmdList, r.callbacks, r.fallback = byName, list, cb, fallback
	r.mu.Unlock()
}

// Run consumes updates until ctx is done or updates is closed.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	for i, ch := range r.shards {
		idx, jobs := i, ch
		sup.GoRestart("shard."+strconv.Itoa(idx), func(c context.Context) error {
			r.work(c, idx, jobs)
			return nil
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("router started", logx.Int("shards", len(r.shards)), logx.Int("queue", r.opt.QueueSize))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

func (r *Router) work(ctx context.Context, idx int, jobs <-chan func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			if r.opt.ShardDepth != nil {
				r.opt.ShardDepth(idx, len(jobs))
			}
			job()
		}
	}
}

// Route resolves one update and queues it on its identity's shard.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	req, h, ok := r.resolve(ctx, up)
	if !ok {
		return
	}
	shard := shardFor(req.FromID, len(r.shards))
	job := func() { _ = run(ctx, req, h) }
	select {
	case r.shards[shard] <- job:
		if r.opt.ShardDepth != nil {
			r.opt.ShardDepth(shard, len(r.shards[shard]))
		}
	default:
		r.log.Warn("shard queue full", logx.Int("shard", shard), logx.Int64("from_id", req.FromID))
		if req.Callback != nil {
			_ = req.Answer(ctx, r.opt.Texts.Busy)
		} else {
			_, _ = r.adapter.SendText(ctx, req.Chat, r.opt.Texts.Busy, nil)
		}
	}
}

// Dispatch resolves and runs one update on the calling goroutine. The caller
// is responsible for per-identity ordering.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) error {
	req, h, ok := r.resolve(ctx, up)
	if !ok {
		return nil
	}
	return run(ctx, req, h)
}

func run(ctx context.Context, req *Request, h HandlerFunc) error {
	err := h(ctx, req)
	// Stop the client's loading spinner if the handler did not answer.
	_ = req.Answer(ctx, "")
	return err
}

func (r *Router) resolve(ctx context.Context, up kit.Update) (*Request, HandlerFunc, bool) {
	from := up.IdentityID()
	req := &Request{Update: up, FromID: from, IsAdmin: r.IsAdmin(from), adapter: r.adapter, ReqID: newReqID()}

	var (
		access  Access
		timeout time.Duration
		handle  HandlerFunc
		mws     []Middleware
	)
	switch {
	case up.Message != nil:
		msg := up.Message
		req.Message = msg
		req.Chat = kit.ChatTarget{ChatID: msg.ChatID}
		name, args, isCmd := splitCommand(msg.Text)

		r.mu.RLock()
		cmd, known := r.cmds[name]
		fb := r.fallback
		r.mu.RUnlock()

		switch {
		case isCmd && known:
			req.Route, req.Args = name, args
			access, timeout, handle = cmd.Access, cmd.Timeout, cmd.Handle
		case isCmd:
			if msg.IsPrivate {
				_, _ = r.adapter.SendText(ctx, req.Chat, r.opt.Texts.Unknown, nil)
			}
			return nil, nil, false
		case fb != nil && msg.IsPrivate:
			req.Route = "text"
			access, timeout, handle = fb.Access, fb.Timeout, fb.Handle
		default:
			return nil, nil, false
		}

	case up.Callback != nil:
		cb := up.Callback
		req.Callback = cb
		req.Chat = kit.ChatTarget{ChatID: cb.ChatID}
		scope, action, payload, ok := tgui.ParseData(strings.TrimSpace(cb.Data))
		if !ok {
			return nil, nil, false
		}
		r.mu.RLock()
		route, known := r.callbacks[scope][action]
		r.mu.RUnlock()
		if !known {
			_ = req.Answer(ctx, "")
			return nil, nil, false
		}
		req.Route, req.Payload = "cb:"+scope+":"+action, payload
		access, timeout, handle = route.Access, route.Timeout, route.Handle
		if route.Throttle && r.opt.Cooldown != nil {
			mws = append(mws, r.opt.Cooldown)
		}

	default:
		return nil, nil, false
	}

	if access == AccessAdmin && !req.IsAdmin {
		if req.Callback != nil {
			_ = req.Answer(ctx, r.opt.Texts.Forbidden)
		}
		// Admin commands are invisible to everyone else.
		return nil, nil, false
	}

	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)
	if timeout <= 0 {
		timeout = r.opt.Timeout
	}
	chain := append([]Middleware{
		MWObserve(r.opt.Observe),
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(timeout),
	}, mws...)
	return req, Chain(handle, chain...), true
}
