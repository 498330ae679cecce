package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gatebot/internal/catalog"
	"gatebot/internal/funnel"
	kit "gatebot/internal/transport"
	"gatebot/internal/transport/telegram/router"
	logx "gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

func (b *Bot) preVerifyKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.URLBtn(btnJoinGroup, b.Settings().InviteURL)).
		Row(tgui.Btn(btnVerifyJoin, userData(actVerify, "")))
}

func (b *Bot) rejoinKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.URLBtn(btnJoinGroup, b.Settings().InviteURL)).
		Row(tgui.Btn(btnRejoined, userData(actVerify, "")))
}

func fileKeyboard(key, label string) *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn(fmt.Sprintf(btnOfferTemplate, tgui.TruncRunes(label, 48)), userData(actSend, key)))
}

func displayName(req *router.Request) string {
	if req.Message == nil {
		return ""
	}
	name := strings.TrimSpace(req.Message.FromFirstName)
	if name == "" {
		name = req.Message.FromUsername
	}
	return name
}

func (b *Bot) preVerifyMessage(req *router.Request, label string) tgui.Message {
	return withKeyboard(
		html(txtStartPreVerify, tgui.B(displayName(req)), tgui.Esc(label)),
		b.preVerifyKeyboard(),
	)
}

// handleStart is /start [offer_key]. Every /start replaces the selection, so
// a bare /start clears it.
func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	var payload string
	if len(req.Args) > 0 {
		payload = req.Args[0]
	}
	res, err := b.engine.Enter(ctx, req.FromID, req.Chat.ChatID, payload)
	if err != nil {
		_, _ = req.Reply(ctx, html(txtTryLater))
		return err
	}
	if res.Redirect {
		if payload != "" {
			req.Logger.Info("start without a usable offer", logx.String("payload", tgui.TruncRunes(payload, 64)))
		}
		_, err = req.Reply(ctx, html(txtStartNoOffer))
		return err
	}
	_, err = req.Reply(ctx, b.preVerifyMessage(req, res.Label))
	return err
}

// handleVerify is the "I joined" button.
func (b *Bot) handleVerify(ctx context.Context, req *router.Request) error {
	res, err := b.engine.Verify(ctx, req.FromID)
	switch {
	case errors.Is(err, funnel.ErrNotFound):
		return req.Answer(ctx, txtNeedStart)
	case errors.Is(err, funnel.ErrOfferGone):
		return b.show(ctx, req, html(txtOfferGone))
	case err != nil:
		_ = req.Answer(ctx, txtTryLater)
		return err
	}

	if !res.OK {
		if res.Repeated {
			// the prompt is already on screen
			return req.Answer(ctx, txtVerifyFail)
		}
		return b.show(ctx, req, withKeyboard(html(txtVerifyFail), b.rejoinKeyboard()))
	}
	return b.show(ctx, req, withKeyboard(html(txtVerified), fileKeyboard(res.OfferKey, res.Label)))
}

// handleSend delivers the asset of the offer named in the payload. The
// asset is sent before file_sent is recorded, so a failed send logs nothing.
func (b *Bot) handleSend(ctx context.Context, req *router.Request) error {
	key := req.Payload
	if !catalog.ValidKey(key) {
		return req.Answer(ctx, txtFileMissing)
	}
	_, err := b.engine.Deliver(ctx, req.FromID, key, func(ctx context.Context, d funnel.Delivery) error {
		doc := kit.Document{FileID: d.AssetRef, Caption: d.Label}
		if _, err := req.Adapter().SendDocument(ctx, req.Chat, doc, nil); err != nil {
			return err
		}
		_ = req.Answer(ctx, "")
		return nil
	})
	switch {
	case errors.Is(err, funnel.ErrNotMember):
		return b.show(ctx, req, withKeyboard(html(txtLeftGroup), b.rejoinKeyboard()))
	case errors.Is(err, funnel.ErrOfferUnavailable):
		return req.Answer(ctx, txtFileMissing)
	case errors.Is(err, funnel.ErrSendFailed):
		_ = req.Answer(ctx, txtSendFailed)
		return fmt.Errorf("send asset %s: %w", key, err)
	case err != nil:
		// the file may already be out; Answer is a no-op then
		_ = req.Answer(ctx, txtTryLater)
		return err
	}
	return nil
}
