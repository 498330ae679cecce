// Package catalog is the keyed list of offers users can request.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gatebot/internal/storage"
	"gatebot/internal/validate"
	logx "gatebot/pkg/logx"
)

var (
	ErrInvalidKey = errors.New("offer key must be 2-50 chars of a-z, 0-9 or _")
	ErrKeyTaken   = errors.New("offer key already exists")
	ErrNotFound   = errors.New("offer not found")
)

type Offer = storage.Offer

type newOffer struct {
	Key      string `validate:"required,offerkey"`
	Label    string `validate:"required,max=200"`
	AssetRef string `validate:"required,max=512"`
}

// Catalog resolves and manages offers. Keys are immutable once created.
type Catalog struct {
	offers *storage.Offers
	log    logx.Logger
}

func New(offers *storage.Offers, log logx.Logger) *Catalog {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Catalog{offers: offers, log: log.With(logx.String("comp", "catalog"))}
}

// ValidKey reports whether key is well-formed. It does not touch storage.
func ValidKey(key string) bool { return validate.OfferKey(key) }

// Create adds an active offer. An empty assetRef stores the MISSING sentinel.
func (c *Catalog) Create(ctx context.Context, key, label, assetRef string) (Offer, error) {
	key = strings.TrimSpace(key)
	label = strings.TrimSpace(label)
	if !ValidKey(key) {
		return Offer{}, ErrInvalidKey
	}
	if assetRef == "" {
		assetRef = storage.AssetMissing
	}
	if err := validate.Struct(newOffer{Key: key, Label: label, AssetRef: assetRef}); err != nil {
		return Offer{}, err
	}
	o, err := c.offers.Insert(ctx, Offer{Key: key, Label: label, AssetRef: assetRef, Active: true})
	if errors.Is(err, storage.ErrDuplicate) {
		return Offer{}, ErrKeyTaken
	}
	if err != nil {
		return Offer{}, fmt.Errorf("create offer %s: %w", key, err)
	}
	c.log.Info("offer created", logx.String("key", key), logx.Bool("has_asset", o.HasAsset()))
	return o, nil
}

// Put creates or updates an offer the way the seeding tool expects:
// label always, asset only when given.
func (c *Catalog) Put(ctx context.Context, key, label, assetRef string) (created bool, err error) {
	key = strings.TrimSpace(key)
	if !ValidKey(key) {
		return false, ErrInvalidKey
	}
	if assetRef == "" {
		assetRef = storage.AssetMissing
	}
	if err := validate.Struct(newOffer{Key: key, Label: strings.TrimSpace(label), AssetRef: assetRef}); err != nil {
		return false, err
	}
	return c.offers.Upsert(ctx, Offer{Key: key, Label: strings.TrimSpace(label), AssetRef: assetRef, Active: true})
}

// Resolve returns the offer for key whether or not it is active.
// A malformed key resolves to ErrNotFound without a lookup.
func (c *Catalog) Resolve(ctx context.Context, key string) (Offer, error) {
	if !ValidKey(key) {
		return Offer{}, ErrNotFound
	}
	o, err := c.offers.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return Offer{}, ErrNotFound
	}
	return o, err
}

// Exists reports whether key is taken.
func (c *Catalog) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Resolve(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Page returns page (0-based) of size offers plus the total count.
func (c *Catalog) Page(ctx context.Context, page, size int) ([]Offer, int, error) {
	total, err := c.offers.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	page = max(page, 0)
	items, err := c.offers.List(ctx, page*size, size)
	return items, total, err
}

// All lists every offer.
func (c *Catalog) All(ctx context.Context) ([]Offer, error) {
	return c.offers.List(ctx, 0, 0)
}

func (c *Catalog) SetAsset(ctx context.Context, key, assetRef string) error {
	if strings.TrimSpace(assetRef) == "" {
		return fmt.Errorf("%w: asset ref is empty", validate.ErrInvalid)
	}
	if err := c.mapErr(c.offers.SetAsset(ctx, key, assetRef)); err != nil {
		return err
	}
	c.log.Info("offer asset changed", logx.String("key", key))
	return nil
}

func (c *Catalog) SetLabel(ctx context.Context, key, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("%w: label is empty", validate.ErrInvalid)
	}
	if err := c.mapErr(c.offers.SetLabel(ctx, key, label)); err != nil {
		return err
	}
	c.log.Info("offer label changed", logx.String("key", key))
	return nil
}

func (c *Catalog) SetActive(ctx context.Context, key string, active bool) error {
	if err := c.mapErr(c.offers.SetActive(ctx, key, active)); err != nil {
		return err
	}
	c.log.Info("offer active changed", logx.String("key", key), logx.Bool("active", active))
	return nil
}

// Delete removes the offer. Identities that selected it keep the key and
// fall into the offer-gone path on their next interaction.
func (c *Catalog) Delete(ctx context.Context, key string) error {
	if err := c.mapErr(c.offers.Delete(ctx, key)); err != nil {
		return err
	}
	c.log.Info("offer deleted", logx.String("key", key))
	return nil
}

func (c *Catalog) mapErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
