// Package wizard holds the multi-step admin flows: creating an offer,
// editing an existing one and drafting a broadcast.
package wizard

import (
	"context"
	"errors"
	"strings"

	"gatebot/internal/catalog"
	"gatebot/internal/transport"
)

var (
	ErrNoSession     = errors.New("no active admin session")
	ErrKeyFormat     = errors.New("offer key has an invalid format")
	ErrKeyTaken      = errors.New("offer key already exists")
	ErrLabelEmpty    = errors.New("label is empty")
	ErrAssetRequired = errors.New("a document is required")
	ErrWrongStep     = errors.New("input not expected at this step")
)

// Offers is the catalog surface the wizard writes through.
type Offers interface {
	Exists(ctx context.Context, key string) (bool, error)
	Create(ctx context.Context, key, label, assetRef string) (catalog.Offer, error)
	SetAsset(ctx context.Context, key, assetRef string) error
	SetLabel(ctx context.Context, key, label string) error
}

// Input is one admin message. AssetRef is set only when the message carries
// an asset (a document); Source is the message itself.
type Input struct {
	Text     string
	AssetRef string
	Source   transport.MessageRef
}

// Result is what the caller renders next.
type Result struct {
	Step Step
	// Created is set when the offer was created and the session cleared.
	Created *catalog.Offer
	// AssetChanged is the key whose asset was replaced.
	AssetChanged string
	// LabelChanged is the key whose label was replaced.
	LabelChanged string
	// Draft is set after a broadcast draft was captured.
	Draft *transport.MessageRef
}

type Wizard struct {
	store  *Store
	offers Offers
}

func New(store *Store, offers Offers) *Wizard {
	return &Wizard{store: store, offers: offers}
}

func (w *Wizard) Store() *Store { return w.store }

// Current returns the live session step (StepNone when idle).
func (w *Wizard) Current(adminID int64) Step {
	sess, ok := w.store.Get(adminID)
	if !ok {
		return StepNone
	}
	return sess.Step
}

// BeginCreate starts the offer-creation flow, replacing any pending flow.
func (w *Wizard) BeginCreate(adminID int64) Step {
	w.store.Put(Session{AdminID: adminID, Step: StepAwaitKey})
	return StepAwaitKey
}

// BeginAssetChange waits for a new asset for an existing offer.
func (w *Wizard) BeginAssetChange(adminID int64, key string) Step {
	w.store.Put(Session{AdminID: adminID, Step: StepAwaitNewAsset, Key: key})
	return StepAwaitNewAsset
}

// BeginRename waits for a new label for an existing offer.
func (w *Wizard) BeginRename(adminID int64, key string) Step {
	w.store.Put(Session{AdminID: adminID, Step: StepAwaitNewLabel, Key: key})
	return StepAwaitNewLabel
}

// BeginBroadcast waits for the message to broadcast.
func (w *Wizard) BeginBroadcast(adminID int64) Step {
	w.store.Put(Session{AdminID: adminID, Step: StepAwaitBroadcastContent})
	return StepAwaitBroadcastContent
}

// Cancel discards any pending flow and reports whether there was one.
func (w *Wizard) Cancel(adminID int64) bool { return w.store.Delete(adminID) }

// TakeDraft returns the confirmed broadcast draft and ends the session.
func (w *Wizard) TakeDraft(adminID int64) (transport.MessageRef, error) {
	sess, ok := w.store.Get(adminID)
	if !ok {
		return transport.MessageRef{}, ErrNoSession
	}
	if sess.Step != StepAwaitBroadcastConfirm || sess.Draft == nil {
		return transport.MessageRef{}, ErrWrongStep
	}
	w.store.Delete(adminID)
	return *sess.Draft, nil
}

// Handle feeds one admin message into the pending flow. Rejected input
// leaves the session where it was, with held data intact.
func (w *Wizard) Handle(ctx context.Context, adminID int64, in Input) (Result, error) {
	sess, ok := w.store.Get(adminID)
	if !ok {
		return Result{}, ErrNoSession
	}

	switch sess.Step {
	case StepAwaitKey:
		key := strings.TrimSpace(in.Text)
		if !catalog.ValidKey(key) {
			return w.stay(sess, ErrKeyFormat)
		}
		taken, err := w.offers.Exists(ctx, key)
		if err != nil {
			return Result{Step: sess.Step}, err
		}
		if taken {
			return w.stay(sess, ErrKeyTaken)
		}
		sess.Key, sess.Step = key, StepAwaitLabel
		w.store.Put(sess)
		return Result{Step: sess.Step}, nil

	case StepAwaitLabel:
		label := strings.TrimSpace(in.Text)
		if label == "" {
			return w.stay(sess, ErrLabelEmpty)
		}
		sess.Label, sess.Step = label, StepAwaitAsset
		w.store.Put(sess)
		return Result{Step: sess.Step}, nil

	case StepAwaitAsset:
		if in.AssetRef == "" {
			return w.stay(sess, ErrAssetRequired)
		}
		o, err := w.offers.Create(ctx, sess.Key, sess.Label, in.AssetRef)
		if errors.Is(err, catalog.ErrKeyTaken) {
			// Taken between steps: ask for a new key, keep the label.
			sess.Step = StepAwaitKey
			w.store.Put(sess)
			return Result{Step: sess.Step}, ErrKeyTaken
		}
		if err != nil {
			return Result{Step: sess.Step}, err
		}
		w.store.Delete(adminID)
		return Result{Step: StepNone, Created: &o}, nil

	case StepAwaitNewAsset:
		if in.AssetRef == "" {
			return w.stay(sess, ErrAssetRequired)
		}
		if err := w.offers.SetAsset(ctx, sess.Key, in.AssetRef); err != nil {
			w.store.Delete(adminID)
			return Result{}, err
		}
		w.store.Delete(adminID)
		return Result{Step: StepNone, AssetChanged: sess.Key}, nil

	case StepAwaitNewLabel:
		label := strings.TrimSpace(in.Text)
		if label == "" {
			return w.stay(sess, ErrLabelEmpty)
		}
		if err := w.offers.SetLabel(ctx, sess.Key, label); err != nil {
			w.store.Delete(adminID)
			return Result{}, err
		}
		w.store.Delete(adminID)
		return Result{Step: StepNone, LabelChanged: sess.Key}, nil

	case StepAwaitBroadcastContent:
		src := in.Source
		sess.Draft, sess.Step = &src, StepAwaitBroadcastConfirm
		w.store.Put(sess)
		return Result{Step: sess.Step, Draft: &src}, nil

	default:
		return Result{Step: sess.Step}, ErrWrongStep
	}
}

func (w *Wizard) stay(sess Session, err error) (Result, error) {
	w.store.Put(sess)
	return Result{Step: sess.Step}, err
}
