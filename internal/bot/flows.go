package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatebot/internal/broadcast"
	"gatebot/internal/catalog"
	kit "gatebot/internal/transport"
	"gatebot/internal/transport/telegram/router"
	"gatebot/internal/wizard"
	logx "gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

// handleText feeds admin messages into the pending wizard flow. Other plain
// messages are ignored.
func (b *Bot) handleText(ctx context.Context, req *router.Request) error {
	if !req.IsAdmin || req.Message == nil {
		return nil
	}
	msg := req.Message
	step := b.wizard.Current(req.FromID)
	if step == wizard.StepNone {
		return nil
	}

	in := wizard.Input{Text: msg.Text, Source: msg.Ref()}
	if msg.Media == kit.MediaDocument {
		in.AssetRef = msg.FileID
	}
	res, err := b.wizard.Handle(ctx, req.FromID, in)
	if err != nil {
		typed := ""
		if step == wizard.StepAwaitKey {
			typed = strings.TrimSpace(msg.Text)
		}
		if m, ok := wizardError(err, typed); ok {
			_, err = req.Reply(ctx, withKeyboard(m, cancelKeyboard()))
			return err
		}
		switch {
		case errors.Is(err, wizard.ErrNoSession):
			_, err = req.Reply(ctx, html(txtSessionGone))
			return err
		case errors.Is(err, catalog.ErrNotFound):
			_, err = req.Reply(ctx, html(txtOfferNotFound))
			return err
		}
		_, _ = req.Reply(ctx, html(txtTryLater))
		return err
	}

	switch {
	case res.Created != nil:
		return b.offerCreated(ctx, req, res.Created)
	case res.AssetChanged != "":
		_, err = req.Reply(ctx, html(txtAssetChanged, tgui.Esc(res.AssetChanged)))
		return err
	case res.LabelChanged != "":
		if _, err = req.Reply(ctx, html(txtLabelChanged, tgui.Esc(res.LabelChanged))); err != nil {
			return err
		}
		m, err := b.offerMessage(ctx, res.LabelChanged)
		if err != nil {
			return err
		}
		_, err = req.Reply(ctx, m)
		return err
	case res.Draft != nil:
		return b.previewBroadcast(ctx, req, *res.Draft)
	case res.Step == wizard.StepAwaitLabel:
		_, err = req.Reply(ctx, withKeyboard(html(txtAddLabel), cancelKeyboard()))
		return err
	case res.Step == wizard.StepAwaitAsset:
		_, err = req.Reply(ctx, withKeyboard(html(txtAddAsset), cancelKeyboard()))
		return err
	}
	return nil
}

func (b *Bot) offerCreated(ctx context.Context, req *router.Request, o *catalog.Offer) error {
	link := b.deepLink(o.Key)
	if link == "" {
		link = "/start " + o.Key
	}
	if _, err := req.Reply(ctx, html(txtAddDone, tgui.Esc(o.Key), tgui.Esc(link))); err != nil {
		return err
	}
	m, err := b.offersMessage(ctx, 0)
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, m)
	return err
}

// previewBroadcast copies the draft back to the admin, then asks to confirm.
func (b *Bot) previewBroadcast(ctx context.Context, req *router.Request, draft kit.MessageRef) error {
	if _, err := req.Adapter().CopyMessage(ctx, req.Chat, draft, nil); err != nil {
		req.Logger.Warn("broadcast preview failed", logx.Err(err))
	}
	kb := tgui.Confirm(btnSendNow, adminData(actBroadcastGo, ""), btnCancel, adminData(actCancel, ""))
	_, err := req.Reply(ctx, withKeyboard(html(txtBroadcastConfirm), kb))
	return err
}

// busyText describes the run in progress.
func (b *Bot) busyText() string {
	run, ok := b.broadcasts.Status(b.broadcasts.Running())
	if !ok || run.State != broadcast.RunRunning {
		return txtBroadcastBusy
	}
	return fmt.Sprintf(txtBroadcastRunning, run.Recipients, time.Since(run.StartedAt).Round(time.Second))
}

func (b *Bot) cbBroadcast(ctx context.Context, req *router.Request) error {
	if b.broadcasts.Running() != "" {
		return req.Answer(ctx, b.busyText())
	}
	b.wizard.BeginBroadcast(req.FromID)
	return b.show(ctx, req, withKeyboard(html(txtBroadcastContent), cancelKeyboard()))
}

// cbBroadcastGo starts the confirmed broadcast in the background. The
// summary goes to the chat the admin confirmed from.
func (b *Bot) cbBroadcastGo(ctx context.Context, req *router.Request) error {
	draft, err := b.wizard.TakeDraft(req.FromID)
	if err != nil {
		return b.show(ctx, req, withKeyboard(html(txtBroadcastMissing), panelKeyboard()))
	}
	src := draft
	id, n, err := b.broadcasts.Start(ctx, broadcast.Payload{Source: &src}, req.Chat.ChatID)
	switch {
	case errors.Is(err, broadcast.ErrNoRecipients):
		return b.show(ctx, req, withKeyboard(html(txtBroadcastNoUsers), panelKeyboard()))
	case errors.Is(err, broadcast.ErrBusy):
		return b.show(ctx, req, tgui.Message{Text: b.busyText()})
	case err != nil:
		_ = req.Answer(ctx, txtTryLater)
		return err
	}
	req.Logger.Info("broadcast confirmed", logx.String("run", id), logx.Int("recipients", n))
	return b.show(ctx, req, html(txtBroadcastStarted, n))
}
