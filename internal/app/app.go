// Package app wires the bot together and owns its lifecycle: start order,
// config hot reload and a bounded, step-wise shutdown.
package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"gatebot/internal/analytics"
	"gatebot/internal/bot"
	"gatebot/internal/broadcast"
	"gatebot/internal/catalog"
	"gatebot/internal/config"
	"gatebot/internal/digest"
	"gatebot/internal/eventbus"
	"gatebot/internal/funnel"
	"gatebot/internal/guard"
	"gatebot/internal/membership"
	"gatebot/internal/metrics"
	"gatebot/internal/ops"
	"gatebot/internal/runtime/supervisor"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	telegram "gatebot/internal/transport/telegram/adapter"
	"gatebot/internal/transport/telegram/router"
	"gatebot/internal/wizard"
	logx "gatebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   *storage.DB

	adapter *telegram.Adapter
	router  *router.Router
	bot     *bot.Bot

	ids     *storage.Identities
	catalog *catalog.Catalog
	events  *analytics.EventLog
	stats   *analytics.Stats
	engine  *funnel.Engine
	wizard  *wizard.Wizard
	guard   *guard.Cooldown
	metrics *metrics.Metrics

	dispatcher *broadcast.Dispatcher
	broadcasts *broadcast.Service

	ops    *ops.Server
	digest *digest.Service

	resolved atomic.Pointer[config.Resolved]
	updates  chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")
	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateRuntime)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	// The Telegram log sink needs the adapter, so logging starts without a
	// sender and gets one below.
	logSvc, log := logx.New(mapLogConfig(cfg))
	ad, err := telegram.New(mapAdapterConfig(cfg, res), log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(ad)
	log = log.With(logx.String("comp", "app"))

	db, err := storage.Open(ctx, mapStorageConfig(cfg, res), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	m := metrics.New(bus)

	ids := storage.NewIdentities(db)
	offers := storage.NewOffers(db)
	events := storage.NewEvents(db)
	cat := catalog.New(offers, log)
	evlog := analytics.NewEventLog(events, bus, log)
	stats := analytics.NewStats(ids, offers, events)
	oracle := membership.NewOracle(ad, res.MembershipTimeout, log)

	g := guard.NewCooldown(res.Cooldown)
	rt := router.New(log.With(logx.String("comp", "router")), ad, cfg.Telegram.AdminIDs, router.Options{
		Shards:     res.Shards,
		QueueSize:  res.QueueSize,
		Timeout:    res.RouterTimeout,
		Cooldown:   router.MWCooldown(g, bot.CooldownToast),
		Observe:    m.ObserveUpdate,
		ShardDepth: m.SetShardDepth,
		Texts:      bot.RouterTexts(),
	})

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		db:         db,
		adapter:    ad,
		router:     rt,
		ids:        ids,
		catalog:    cat,
		events:     evlog,
		stats:      stats,
		engine:     funnel.NewEngine(ids, cat, evlog, oracle, cfg.Gate.Group, log),
		wizard:     wizard.New(wizard.NewStore(res.SessionTTL), cat),
		guard:      g,
		metrics:    m,
		dispatcher: broadcast.NewDispatcher(ad, evlog, log, broadcast.WithObserver(m.ObserveBroadcast)),
		digest:     digest.New(mapDigestConfig(cfg, res), stats, ad, log),
		updates:    make(chan kit.Update, 256),
	}
	a.resolved.Store(&res)
	a.ops = ops.New(mapOpsConfig(cfg, res), m.Registry(), a.health, log)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) broadcastRate() float64 { return a.resolved.Load().BroadcastRate }

// health backs /healthz.
func (a *App) health(ctx context.Context) (map[string]any, error) {
	out := map[string]any{
		"bus_dropped":     a.bus.Dropped(),
		"wizard_sessions": a.wizard.Store().Len(),
	}
	if a.broadcasts != nil {
		out["broadcast_running"] = a.broadcasts.Running()
	}
	if err := a.db.Ping(ctx); err != nil {
		out["storage"] = "down"
		return out, err
	}
	out["storage"] = "ok"
	return out, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()
	res := *a.resolved.Load()

	a.broadcasts = broadcast.NewService(a.dispatcher, a.ids, a.sup, a.broadcastRate, a.log)
	a.bot = bot.New(bot.Deps{
		Engine:     a.engine,
		Catalog:    a.catalog,
		Stats:      a.stats,
		Wizard:     a.wizard,
		Broadcasts: a.broadcasts,
		Settings:   mapSettings(cfg, res, a.adapter.Username()),
		Log:        a.log,
	})
	a.router.SetRegistry(a.bot.Commands(), a.bot.Callbacks(), a.bot.Fallback())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("router", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go0("menus", a.router.UpdateMenus)

	a.sup.Go0("guard.prune", func(c context.Context) {
		a.guard.RunPruner(c, 10*time.Minute, time.Hour)
	})
	a.sup.Go0("wizard.sweep", func(c context.Context) {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := a.wizard.Store().Sweep(); n > 0 {
					a.log.Debug("expired admin sessions dropped", logx.Int("count", n))
				}
			}
		}
	})
	a.sup.Go0("metrics.consume", func(c context.Context) {
		a.metrics.Consume(c, a.bus)
	})

	a.ops.Start(a.sup.Context())
	a.digest.Apply(a.sup.Context(), mapDigestConfig(cfg, res), cfg.Telegram.AdminIDs)
	a.digest.Start(a.sup.Context())

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.Bool("webhook", cfg.Telegram.Webhook.Enabled),
		logx.String("storage", a.db.Dialect().String()),
	)
	return nil
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	res, err := newCfg.Resolve()
	if err != nil {
		// Validation ran before commit, so this only happens on a bug.
		a.log.Warn("reloaded config does not resolve; keeping previous", logx.Err(err))
		return
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.Strings("keys", restart))
	}
	a.resolved.Store(&res)

	a.logs.Apply(mapLogConfig(newCfg))

	a.router.SetAdmins(newCfg.Telegram.AdminIDs)
	if !slices.Equal(oldCfg.Telegram.AdminIDs, newCfg.Telegram.AdminIDs) {
		a.router.UpdateMenus(ctx)
	}
	a.engine.SetGroup(newCfg.Gate.Group)
	a.bot.SetSettings(mapSettings(newCfg, res, a.adapter.Username()))
	a.guard.SetWindow(res.Cooldown)
	a.wizard.Store().SetTTL(res.SessionTTL)

	a.ops.Reconfigure(ctx, mapOpsConfig(newCfg, res))
	dc := mapDigestConfig(newCfg, res)
	a.digest.Apply(ctx, dc, newCfg.Telegram.AdminIDs)
	if dc.Enabled {
		a.digest.Start(ctx)
	} else {
		a.digest.Stop()
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// A running broadcast sends its partial summary before the adapter goes.
	step("broadcast", 3*time.Second, func(context.Context) error {
		if a.broadcasts != nil && a.broadcasts.Stop() {
			a.log.Info("running broadcast stopped for shutdown")
		}
		return nil
	})
	step("digest", 1*time.Second, func(context.Context) error { a.digest.Stop(); return nil })
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	// Wait for supervised goroutines (router shards, config watch/reload, broadcast run).
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.db.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
