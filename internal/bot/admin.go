package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"gatebot/internal/analytics"
	"gatebot/internal/catalog"
	"gatebot/internal/transport/telegram/router"
	"gatebot/internal/wizard"
	"gatebot/pkg/tgui"
)

func panelKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn(btnManageOffers, adminData(actOffers, "0"))).
		Row(tgui.Btn(btnBroadcast, adminData(actBroadcast, ""))).
		Row(tgui.Btn(btnStats, adminData(actStats, "")))
}

func cancelKeyboard() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn(btnCancel, adminData(actCancel, "")))
}

func (b *Bot) panelMessage(ctx context.Context) (tgui.Message, error) {
	g, err := b.stats.GlobalStats(ctx, b.Settings().ActiveWindow)
	if err != nil {
		return tgui.Message{}, err
	}
	return withKeyboard(
		html(txtAdminPanel, g.TotalIdentities, g.JoinedCount, tgui.Percent(g.JoinRate())),
		panelKeyboard(),
	), nil
}

func (b *Bot) handleAdmin(ctx context.Context, req *router.Request) error {
	m, err := b.panelMessage(ctx)
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, m)
	return err
}

func (b *Bot) cbPanel(ctx context.Context, req *router.Request) error {
	m, err := b.panelMessage(ctx)
	if err != nil {
		return err
	}
	return b.show(ctx, req, m)
}

// offersMessage renders one page of the offer list. Out-of-range pages are
// clamped, so stale buttons still land somewhere sensible.
func (b *Bot) offersMessage(ctx context.Context, page int) (tgui.Message, error) {
	items, total, err := b.catalog.Page(ctx, page, offersPerPage)
	if err != nil {
		return tgui.Message{}, err
	}
	p := tgui.NewPage(page, offersPerPage, total)
	if p.Index != page {
		if items, _, err = b.catalog.Page(ctx, p.Index, offersPerPage); err != nil {
			return tgui.Message{}, err
		}
	}

	kb := tgui.NewInline()
	for _, o := range items {
		label := fmt.Sprintf(btnOfferTemplate, tgui.TruncRunes(o.Label, 40))
		if !o.Active {
			label = "⏸ " + label
		}
		kb.Row(tgui.Btn(label, adminData(actOffer, o.Key)))
	}
	kb.NavRow(p, func(i int) string { return adminData(actOffers, strconv.Itoa(i)) })
	kb.Row(tgui.Btn(btnAddOffer, adminData(actAdd, "")))
	kb.Row(tgui.Btn(btnBackToPanel, adminData(actHome, "")))

	msg := tgui.New().Inline(kb)
	if total == 0 {
		msg.Line(txtOffersEmpty)
	} else {
		msg.Line(txtOffersTitle).Blank().RawLine(tgui.I(p.Label()))
	}
	return msg.Build(), nil
}

func (b *Bot) cbOffers(ctx context.Context, req *router.Request) error {
	page, _ := strconv.Atoi(req.Payload)
	m, err := b.offersMessage(ctx, page)
	if err != nil {
		return err
	}
	return b.show(ctx, req, m)
}

// deepLink is the t.me link that starts the funnel for key.
func (b *Bot) deepLink(key string) string {
	user := b.Settings().Username
	if user == "" {
		return ""
	}
	return "https://t.me/" + url.PathEscape(user) + "?start=" + key
}

func (b *Bot) offerMessage(ctx context.Context, key string) (tgui.Message, error) {
	o, err := b.catalog.Resolve(ctx, key)
	if err != nil {
		return tgui.Message{}, err
	}
	st, err := b.stats.OfferStats(ctx, key)
	if err != nil {
		return tgui.Message{}, err
	}

	yesNo := func(v bool) string {
		if v {
			return "✅ Yes"
		}
		return "❌ No"
	}
	msg := tgui.New().
		Title("📄", "Offer Details").
		Blank().
		RawLine("• "+tgui.B("Key:")+" "+tgui.Code(o.Key)).
		KV("Label", o.Label).
		KV("Active", yesNo(o.Active)).
		KV("File Set", yesNo(o.HasAsset()))
	if link := b.deepLink(o.Key); link != "" {
		msg.RawLine("• " + tgui.B("Link:") + " " + tgui.Code(link))
	}
	msg.Blank().
		Section("📈 Performance:").
		KV("Starts", strconv.FormatInt(st.Starts, 10)).
		KV("Verifications", strconv.FormatInt(st.Verifies, 10)).
		KV("Files Sent", strconv.FormatInt(st.Sends, 10)).
		KV("Funnel Conversion Rate", tgui.Percent(st.SendConversion()))

	toggle := btnDeactivate
	if !o.Active {
		toggle = btnActivate
	}
	kb := tgui.NewInline().
		Row(tgui.Btn(btnChangeFile, adminData(actAsset, o.Key))).
		Row(tgui.Btn(btnRename, adminData(actRename, o.Key))).
		Row(tgui.Btn(toggle, adminData(actToggle, o.Key))).
		Row(tgui.Btn(btnDeleteOffer, adminData(actDelete, o.Key))).
		Row(tgui.Btn(btnBackToList, adminData(actOffers, "0")))
	return msg.Inline(kb).Build(), nil
}

// showOffer renders the offer detail, or a toast when the offer vanished.
func (b *Bot) showOffer(ctx context.Context, req *router.Request, key string) error {
	m, err := b.offerMessage(ctx, key)
	if errors.Is(err, catalog.ErrNotFound) {
		return req.Answer(ctx, txtOfferNotFound)
	}
	if err != nil {
		return err
	}
	return b.show(ctx, req, m)
}

func (b *Bot) cbOffer(ctx context.Context, req *router.Request) error {
	return b.showOffer(ctx, req, req.Payload)
}

func (b *Bot) cbToggle(ctx context.Context, req *router.Request) error {
	o, err := b.catalog.Resolve(ctx, req.Payload)
	if errors.Is(err, catalog.ErrNotFound) {
		return req.Answer(ctx, txtOfferNotFound)
	}
	if err != nil {
		return err
	}
	if err := b.catalog.SetActive(ctx, o.Key, !o.Active); err != nil {
		return err
	}
	return b.showOffer(ctx, req, o.Key)
}

func (b *Bot) cbDelete(ctx context.Context, req *router.Request) error {
	key := req.Payload
	kb := tgui.Confirm(btnYesDelete, adminData(actDeleteOK, key), btnNoGoBack, adminData(actOffer, key))
	return b.show(ctx, req, withKeyboard(html(txtDeleteConfirm, tgui.Esc(key)), kb))
}

func (b *Bot) cbDeleteConfirmed(ctx context.Context, req *router.Request) error {
	err := b.catalog.Delete(ctx, req.Payload)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		_ = req.Answer(ctx, txtOfferNotFound)
	case err != nil:
		return err
	default:
		_ = req.Answer(ctx, txtOfferDeleted)
	}
	m, err := b.offersMessage(ctx, 0)
	if err != nil {
		return err
	}
	return b.show(ctx, req, m)
}

func (b *Bot) cbAdd(ctx context.Context, req *router.Request) error {
	b.wizard.BeginCreate(req.FromID)
	return b.show(ctx, req, withKeyboard(html(txtAddKey), cancelKeyboard()))
}

func (b *Bot) cbChangeAsset(ctx context.Context, req *router.Request) error {
	key := req.Payload
	ok, err := b.catalog.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return req.Answer(ctx, txtOfferNotFound)
	}
	b.wizard.BeginAssetChange(req.FromID, key)
	return b.show(ctx, req, withKeyboard(html(txtNewAsset, tgui.Esc(key)), cancelKeyboard()))
}

func (b *Bot) cbRename(ctx context.Context, req *router.Request) error {
	key := req.Payload
	ok, err := b.catalog.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return req.Answer(ctx, txtOfferNotFound)
	}
	b.wizard.BeginRename(req.FromID, key)
	return b.show(ctx, req, withKeyboard(html(txtNewLabel, tgui.Esc(key)), cancelKeyboard()))
}

// cbCancel drops the pending flow and returns to the panel.
func (b *Bot) cbCancel(ctx context.Context, req *router.Request) error {
	b.wizard.Cancel(req.FromID)
	_ = req.Answer(ctx, txtCancelled)
	return b.cbPanel(ctx, req)
}

// handleCancel is /cancel: the pending flow first, then a running broadcast.
func (b *Bot) handleCancel(ctx context.Context, req *router.Request) error {
	text := txtNothingToStop
	switch {
	case b.wizard.Cancel(req.FromID):
		text = txtCancelled
	case b.broadcasts != nil && b.broadcasts.Stop():
		text = txtBroadcastStopped
	}
	_, err := req.Reply(ctx, tgui.Message{Text: text})
	return err
}

func (b *Bot) statsMessage(ctx context.Context) (tgui.Message, error) {
	window := b.Settings().ActiveWindow
	g, err := b.stats.GlobalStats(ctx, window)
	if err != nil {
		return tgui.Message{}, err
	}
	offers, err := b.stats.AllOfferStats(ctx)
	if err != nil {
		return tgui.Message{}, err
	}
	return renderStats(g, offers), nil
}

func renderStats(g analytics.GlobalStats, offers []analytics.OfferStats) tgui.Message {
	msg := tgui.New().
		Section(txtStatsHeader).
		Blank().
		Line(fmt.Sprintf("👤 Total Users: %d", g.TotalIdentities)).
		Line(fmt.Sprintf("✅ Verified Users: %d (%s)", g.JoinedCount, tgui.Percent(g.JoinRate()))).
		Line(fmt.Sprintf("🏃 Active (%s): %d", tgui.HumanDuration(g.Window), g.ActiveWithin)).
		Blank().
		Line("--- Per-Offer Stats ---")
	if len(offers) == 0 {
		return msg.Line("No offer activity yet.").Build()
	}
	for _, o := range offers {
		msg.RawLine("🔹 " + tgui.Code(o.Key) + " (" + tgui.Esc(o.Label) + "):")
		msg.Line(fmt.Sprintf("  Starts: %d, Verified: %d, Sent: %d (%s)",
			o.Starts, o.Verifies, o.Sends, tgui.Percent(o.SendConversion())))
	}
	return msg.Build()
}

func (b *Bot) handleStats(ctx context.Context, req *router.Request) error {
	m, err := b.statsMessage(ctx)
	if err != nil {
		return err
	}
	_, err = req.Reply(ctx, m)
	return err
}

func (b *Bot) cbStats(ctx context.Context, req *router.Request) error {
	m, err := b.statsMessage(ctx)
	if err != nil {
		return err
	}
	m = withKeyboard(m, tgui.NewInline().Row(tgui.Btn(btnBackToPanel, adminData(actHome, ""))))
	return b.show(ctx, req, m)
}

// wizardError maps rejected wizard input to the re-prompt shown.
func wizardError(err error, input string) (tgui.Message, bool) {
	switch {
	case errors.Is(err, wizard.ErrKeyFormat):
		return html(txtAddKeyInvalid), true
	case errors.Is(err, wizard.ErrKeyTaken):
		if input == "" {
			return html(txtAddKeyTakenLate + "\n\n" + txtAddKey), true
		}
		return html(txtAddKeyTaken, tgui.Esc(input)), true
	case errors.Is(err, wizard.ErrLabelEmpty):
		return html(txtAddLabelEmpty), true
	case errors.Is(err, wizard.ErrAssetRequired):
		return html(txtNeedDocument), true
	}
	return tgui.Message{}, false
}
