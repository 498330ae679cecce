// Package bot holds the Telegram-facing handlers: the user funnel (start,
// verify, send) and the admin panel (offers, wizard, broadcast, stats).
package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gatebot/internal/analytics"
	"gatebot/internal/broadcast"
	"gatebot/internal/catalog"
	"gatebot/internal/funnel"
	kit "gatebot/internal/transport"
	"gatebot/internal/transport/telegram/router"
	"gatebot/internal/wizard"
	logx "gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// Callback scopes and actions. Data is "scope:action[:payload]".
const (
	scopeUser  = "u"
	scopeAdmin = "adm"

	actVerify = "verify"
	actSend   = "send"

	actHome        = "home"
	actOffers      = "offers"
	actOffer       = "offer"
	actAsset       = "asset"
	actRename      = "label"
	actToggle      = "toggle"
	actDelete      = "del"
	actDeleteOK    = "delok"
	actAdd         = "add"
	actStats       = "stats"
	actBroadcast   = "bc"
	actBroadcastGo = "bcgo"
	actCancel      = "cancel"
)

const offersPerPage = 5

// Settings are the hot-reloadable bits the handlers read.
type Settings struct {
	InviteURL    string
	ActiveWindow time.Duration
	// Username builds deep links for new offers; empty hides the link.
	Username string
}

type Deps struct {
	Engine     *funnel.Engine
	Catalog    *catalog.Catalog
	Stats      *analytics.Stats
	Wizard     *wizard.Wizard
	Broadcasts *broadcast.Service
	Settings   Settings
	Log        logx.Logger
}

type Bot struct {
	engine     *funnel.Engine
	catalog    *catalog.Catalog
	stats      *analytics.Stats
	wizard     *wizard.Wizard
	broadcasts *broadcast.Service
	settings   atomic.Pointer[Settings]
	log        logx.Logger
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	b := &Bot{
		engine:     d.Engine,
		catalog:    d.Catalog,
		stats:      d.Stats,
		wizard:     d.Wizard,
		broadcasts: d.Broadcasts,
		log:        d.Log.With(logx.String("comp", "bot")),
	}
	b.SetSettings(d.Settings)
	return b
}

func (b *Bot) SetSettings(s Settings) { b.settings.Store(&s) }

func (b *Bot) Settings() Settings { return *b.settings.Load() }

// Commands lists the bot commands in menu order.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: descStart, Handle: b.handleStart},
		{Name: "admin", Description: descAdmin, Access: router.AccessAdmin, Handle: b.handleAdmin},
		{Name: "stats", Description: descStats, Access: router.AccessAdmin, Handle: b.handleStats},
		{Name: "cancel", Description: descCancel, Access: router.AccessAdmin, Hidden: true, Handle: b.handleCancel},
	}
}

// Callbacks lists the inline-button routes. Every press goes through the
// cooldown guard.
func (b *Bot) Callbacks() []router.CallbackRoute {
	user := func(action string, h router.HandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Scope: scopeUser, Action: action, Throttle: true, Handle: h}
	}
	admin := func(action string, h router.HandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Scope: scopeAdmin, Action: action, Access: router.AccessAdmin, Throttle: true, Handle: h}
	}
	return []router.CallbackRoute{
		user(actVerify, b.handleVerify),
		user(actSend, b.handleSend),

		admin(actHome, b.cbPanel),
		admin(actOffers, b.cbOffers),
		admin(actOffer, b.cbOffer),
		admin(actAsset, b.cbChangeAsset),
		admin(actRename, b.cbRename),
		admin(actToggle, b.cbToggle),
		admin(actDelete, b.cbDelete),
		admin(actDeleteOK, b.cbDeleteConfirmed),
		admin(actAdd, b.cbAdd),
		admin(actStats, b.cbStats),
		admin(actBroadcast, b.cbBroadcast),
		admin(actBroadcastGo, b.cbBroadcastGo),
		admin(actCancel, b.cbCancel),
	}
}

// Fallback handles plain messages: wizard input from admins.
func (b *Bot) Fallback() *router.Command {
	return &router.Command{Name: "text", Handle: b.handleText}
}

// RouterTexts are the router's own replies in the users' language.
func RouterTexts() router.Texts {
	return router.Texts{Unknown: txtUnknownCmd, Forbidden: txtAdminOnly, Busy: txtQueueBusy}
}

// CooldownToast is shown for throttled button presses.
const CooldownToast = txtTooFast

func userData(action, payload string) string  { return tgui.Data(scopeUser, action, payload) }
func adminData(action, payload string) string { return tgui.Data(scopeAdmin, action, payload) }

// html formats an HTML message without a keyboard.
func html(format string, args ...any) tgui.Message {
	return tgui.Message{Text: fmt.Sprintf(format, args...)}
}

func withKeyboard(m tgui.Message, kb *tgui.Inline) tgui.Message {
	return tgui.Message{Text: m.Text, Opt: tgui.New().Inline(kb).Build().Opt}
}

// show replaces the pressed message for callbacks and sends a new one
// otherwise. Messages that cannot be edited (e.g. media) get a fresh reply.
func (b *Bot) show(ctx context.Context, req *router.Request, m tgui.Message) error {
	if cb := req.Callback; cb != nil && cb.MessageID != 0 {
		ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
		err := m.Edit(ctx, req.Adapter(), ref)
		if err == nil {
			return nil
		}
		req.Logger.Debug("edit failed; sending instead", logx.Err(err))
	}
	_, err := req.Reply(ctx, m)
	return err
}
