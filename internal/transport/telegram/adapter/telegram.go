package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "gatebot/internal/runtime/supervisor"
	kit "gatebot/internal/transport"
	logx "gatebot/pkg/logx"
)

// Config selects how updates are received.
type Config struct {
	Token       string
	PollTimeout time.Duration
	Webhook     WebhookConfig
	// SendRate bounds all outbound API calls per second. 0 means 25.
	SendRate float64
}

// WebhookConfig enables webhook mode when Enabled is set. Listen is the local
// address telebot serves on; PublicURL is what Telegram posts to.
type WebhookConfig struct {
	Enabled     bool
	Listen      string
	PublicURL   string
	SecretToken string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Update)
	runMu   sync.Mutex
	running bool

	// sup owns adapter goroutines (poll loop, drop report, stop watcher).
	sup *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	groupMu sync.Mutex
	groups  map[string]*tele.Chat

	menuMu   sync.Mutex
	menuHash map[int64]uint64
	http     *http.Client

	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  newPoller(cfg),
		OnError: func(err error, _ tele.Context) { log.Warn("telebot error", logx.Err(err)) },
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:      cfg,
		log:      log,
		bot:      b,
		groups:   map[string]*tele.Chat{},
		menuHash: map[int64]uint64{},
		http:     &http.Client{Timeout: 8 * time.Second},
		limiter:  newLimiter(cfg.SendRate),
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		perSec = 25
	}
	return rate.NewLimiter(rate.Limit(perSec), max(1, int(perSec)))
}

// wait blocks until the outbound limiter admits one more call.
func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}

func newPoller(cfg Config) tele.Poller {
	if cfg.Webhook.Enabled {
		listen := strings.TrimSpace(cfg.Webhook.Listen)
		if listen == "" {
			listen = "0.0.0.0:8080"
		}
		return &tele.Webhook{
			Listen:      listen,
			SecretToken: cfg.Webhook.SecretToken,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: cfg.Webhook.PublicURL},
		}
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// Username is the bot's @username without the "@" ("" in offline mode).
func (a *Adapter) Username() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	onMessage := func(c tele.Context) error {
		if m := c.Message(); m != nil && m.Sender != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: convertMessage(m)})
		}
		return nil
	}
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnDocument, onMessage)
	a.bot.Handle(tele.OnPhoto, onMessage)
	a.bot.Handle(tele.OnVideo, onMessage)

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func convertMessage(m *tele.Message) *kit.Message {
	out := &kit.Message{
		ID:            m.ID,
		ChatID:        m.Chat.ID,
		FromID:        m.Sender.ID,
		FromUsername:  m.Sender.Username,
		FromFirstName: m.Sender.FirstName,
		Text:          m.Text,
		IsPrivate:     m.Chat.Type == tele.ChatPrivate,
	}
	switch {
	case m.Document != nil:
		out.Media = kit.MediaDocument
		out.FileID = m.Document.FileID
		out.FileName = m.Document.FileName
	case m.Photo != nil:
		out.Media = kit.MediaPhoto
	case m.Video != nil:
		out.Media = kit.MediaVideo
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := a.droppedUpdates.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	mode := "polling"
	if a.cfg.Webhook.Enabled {
		mode = "webhook"
	}
	// Start() can return unexpectedly on some network failures; restart it.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("update loop started", logx.String("mode", mode))
		a.bot.Start()
		a.log.Info("update loop stopped", logx.String("mode", mode))
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))

	if sup != nil {
		sup.Cancel()
	}
	go a.bot.Stop()

	// Keep shutdown snappy even if a long poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	if sup == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}
