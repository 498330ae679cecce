// Package funnel decides what an identity may do next: enter with an offer,
// verify membership of the gating group, then receive the asset.
package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"gatebot/internal/analytics"
	"gatebot/internal/catalog"
	"gatebot/internal/membership"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

var (
	ErrNotFound         = errors.New("identity or selected offer not found")
	ErrOfferGone        = errors.New("offer deleted or deactivated")
	ErrOfferUnavailable = errors.New("offer unavailable")
	ErrNotMember        = errors.New("not a member of the group")
	ErrSendFailed       = errors.New("asset send failed")
)

type EnterResult struct {
	// Redirect means there is no usable offer; show the no-offer screen.
	Redirect bool
	OfferKey string
	Label    string
}

type VerifyResult struct {
	OK       bool
	OfferKey string
	Label    string
	// Repeated is set on a failure that follows another failure for the
	// same offer, so the caller can acknowledge instead of re-rendering.
	Repeated bool
}

// Delivery is a checked hand-out that has not been recorded yet.
type Delivery struct {
	IdentityID int64
	OfferKey   string
	Label      string
	AssetRef   string
}

// Engine runs the funnel. Calls for one identity must not overlap; the
// router serializes them per identity.
type Engine struct {
	ids     *storage.Identities
	catalog *catalog.Catalog
	events  *analytics.EventLog
	members membership.Checker
	group   atomic.Pointer[string]
	log     logx.Logger
}

func NewEngine(ids *storage.Identities, cat *catalog.Catalog, events *analytics.EventLog, members membership.Checker, group string, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		ids:     ids,
		catalog: cat,
		events:  events,
		members: members,
		log:     log.With(logx.String("comp", "funnel")),
	}
	e.SetGroup(group)
	return e
}

// SetGroup swaps the gating group, e.g. on config reload.
func (e *Engine) SetGroup(group string) { e.group.Store(&group) }

func (e *Engine) Group() string { return *e.group.Load() }

// Enter records that the identity arrived with offerKey ("" for none).
// selected_offer is overwritten even when the key turns out unusable.
func (e *Engine) Enter(ctx context.Context, identityID, contact int64, offerKey string) (EnterResult, error) {
	if err := e.ids.Upsert(ctx, identityID, contact, offerKey); err != nil {
		return EnterResult{}, fmt.Errorf("enter: %w", err)
	}
	if offerKey == "" || !catalog.ValidKey(offerKey) {
		return EnterResult{Redirect: true}, nil
	}
	offer, err := e.catalog.Resolve(ctx, offerKey)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && !offer.Active) {
		return EnterResult{Redirect: true}, nil
	}
	if err != nil {
		return EnterResult{}, fmt.Errorf("enter: %w", err)
	}
	if err := e.events.Record(ctx, identityID, storage.EventStart, offerKey); err != nil {
		return EnterResult{}, err
	}
	return EnterResult{OfferKey: offer.Key, Label: offer.Label}, nil
}

// Verify checks membership of the current group for the selected offer.
func (e *Engine) Verify(ctx context.Context, identityID int64) (VerifyResult, error) {
	id, err := e.ids.Get(ctx, identityID)
	if errors.Is(err, storage.ErrNotFound) {
		return VerifyResult{}, ErrNotFound
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify: %w", err)
	}
	if id.SelectedOffer == "" {
		return VerifyResult{}, ErrNotFound
	}
	key := id.SelectedOffer

	if !e.members.IsMember(ctx, identityID, e.Group()) {
		last, err := e.events.LastFunnelKind(ctx, identityID, key)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("verify: %w", err)
		}
		if err := e.events.Record(ctx, identityID, storage.EventVerifyFail, key); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{OfferKey: key, Repeated: last == storage.EventVerifyFail}, nil
	}

	if !id.JoinedOK {
		if err := e.ids.MarkJoined(ctx, identityID); err != nil {
			return VerifyResult{}, fmt.Errorf("verify: %w", err)
		}
	}
	if err := e.events.Record(ctx, identityID, storage.EventVerifyOK, key); err != nil {
		return VerifyResult{}, err
	}
	offer, err := e.catalog.Resolve(ctx, key)
	if errors.Is(err, catalog.ErrNotFound) || (err == nil && !offer.Active) {
		return VerifyResult{}, ErrOfferGone
	}
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify: %w", err)
	}
	e.log.Info("identity verified", logx.Int64("identity", identityID), logx.String("offer", key))
	return VerifyResult{OK: true, OfferKey: key, Label: offer.Label}, nil
}

// PrepareDelivery re-checks membership now and resolves the asset.
// Nothing is recorded until RecordDelivery.
func (e *Engine) PrepareDelivery(ctx context.Context, identityID int64, offerKey string) (Delivery, error) {
	if !e.members.IsMember(ctx, identityID, e.Group()) {
		return Delivery{}, ErrNotMember
	}
	offer, err := e.catalog.Resolve(ctx, offerKey)
	if errors.Is(err, catalog.ErrNotFound) {
		return Delivery{}, ErrOfferUnavailable
	}
	if err != nil {
		return Delivery{}, fmt.Errorf("deliver: %w", err)
	}
	if !offer.Deliverable() {
		return Delivery{}, ErrOfferUnavailable
	}
	return Delivery{IdentityID: identityID, OfferKey: offer.Key, Label: offer.Label, AssetRef: offer.AssetRef}, nil
}

// RecordDelivery appends file_sent once the transport accepted the asset.
func (e *Engine) RecordDelivery(ctx context.Context, d Delivery) error {
	if err := e.events.Record(ctx, d.IdentityID, storage.EventFileSent, d.OfferKey); err != nil {
		return err
	}
	e.log.Info("asset delivered", logx.Int64("identity", d.IdentityID), logx.String("offer", d.OfferKey))
	return nil
}

// Deliver prepares the delivery, hands it to send and records file_sent only
// when send succeeds. A send error is wrapped in ErrSendFailed.
func (e *Engine) Deliver(ctx context.Context, identityID int64, offerKey string, send func(context.Context, Delivery) error) (Delivery, error) {
	d, err := e.PrepareDelivery(ctx, identityID, offerKey)
	if err != nil {
		return Delivery{}, err
	}
	if err := send(ctx, d); err != nil {
		return d, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := e.RecordDelivery(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// State classifies the identity. A missing identity is StateNoOffer.
func (e *Engine) State(ctx context.Context, identityID int64) (State, storage.Identity, error) {
	id, err := e.ids.Get(ctx, identityID)
	if errors.Is(err, storage.ErrNotFound) {
		return StateNoOffer, storage.Identity{}, nil
	}
	if err != nil {
		return StateNoOffer, storage.Identity{}, err
	}
	if id.SelectedOffer == "" {
		return Classify(&id, nil, false), id, nil
	}
	var offer *storage.Offer
	o, err := e.catalog.Resolve(ctx, id.SelectedOffer)
	switch {
	case err == nil:
		offer = &o
	case !errors.Is(err, catalog.ErrNotFound):
		return StateNoOffer, id, err
	}
	delivered, err := e.events.Delivered(ctx, identityID, id.SelectedOffer)
	if err != nil {
		return StateNoOffer, id, err
	}
	return Classify(&id, offer, delivered), id, nil
}
