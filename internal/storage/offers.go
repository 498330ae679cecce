package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Offers persists the offer catalog.
type Offers struct {
	db  *DB
	now func() time.Time
}

func NewOffers(db *DB) *Offers {
	return &Offers{db: db, now: time.Now}
}

const offerColumns = `key, label, asset_ref, active, created_at`

func scanOffer(sc interface{ Scan(...any) error }) (Offer, error) {
	var (
		o       Offer
		created int64
	)
	if err := sc.Scan(&o.Key, &o.Label, &o.AssetRef, &o.Active, &created); err != nil {
		return Offer{}, err
	}
	o.CreatedAt = time.UnixMilli(created).UTC()
	return o, nil
}

// Insert creates an offer. It returns ErrDuplicate when the key exists.
func (s *Offers) Insert(ctx context.Context, o Offer) (Offer, error) {
	if o.AssetRef == "" {
		o.AssetRef = AssetMissing
	}
	o.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	n, err := s.db.Exec(ctx, `
INSERT INTO offers (key, label, asset_ref, active, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key) DO NOTHING`,
		o.Key, o.Label, o.AssetRef, o.Active, o.CreatedAt.UnixMilli())
	if err != nil {
		return Offer{}, err
	}
	if n == 0 {
		return Offer{}, ErrDuplicate
	}
	return o, nil
}

// Upsert creates the offer or updates an existing one's label, and its
// asset when o carries one. It reports whether a new row was created.
func (s *Offers) Upsert(ctx context.Context, o Offer) (created bool, err error) {
	if o.AssetRef == "" {
		o.AssetRef = AssetMissing
	}
	_, err = s.Insert(ctx, o)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return false, err
	}
	if !o.HasAsset() {
		return false, s.SetLabel(ctx, o.Key, o.Label)
	}
	_, err = s.db.Exec(ctx, `UPDATE offers SET label = ?, asset_ref = ? WHERE key = ?`, o.Label, o.AssetRef, o.Key)
	return false, err
}

func (s *Offers) Get(ctx context.Context, key string) (Offer, error) {
	var (
		o       Offer
		created int64
	)
	err := s.db.FetchOne(ctx, `SELECT `+offerColumns+` FROM offers WHERE key = ?`, []any{key},
		&o.Key, &o.Label, &o.AssetRef, &o.Active, &created)
	if err != nil {
		return Offer{}, err
	}
	o.CreatedAt = time.UnixMilli(created).UTC()
	return o, nil
}

// List returns offers ordered by creation (then key), paginated when limit > 0.
func (s *Offers) List(ctx context.Context, offset, limit int) ([]Offer, error) {
	q := `SELECT ` + offerColumns + ` FROM offers ORDER BY created_at, key`
	var args []any
	if limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = []any{limit, offset}
	}
	var out []Offer
	err := s.db.FetchAll(ctx, q, args, func(rows *sql.Rows) error {
		o, err := scanOffer(rows)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

func (s *Offers) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.FetchOne(ctx, `SELECT COUNT(*) FROM offers`, nil, &n)
	return n, err
}

func (s *Offers) SetAsset(ctx context.Context, key, assetRef string) error {
	return s.update(ctx, `UPDATE offers SET asset_ref = ? WHERE key = ?`, assetRef, key)
}

func (s *Offers) SetLabel(ctx context.Context, key, label string) error {
	return s.update(ctx, `UPDATE offers SET label = ? WHERE key = ?`, label, key)
}

func (s *Offers) SetActive(ctx context.Context, key string, active bool) error {
	return s.update(ctx, `UPDATE offers SET active = ? WHERE key = ?`, active, key)
}

func (s *Offers) Delete(ctx context.Context, key string) error {
	return s.update(ctx, `DELETE FROM offers WHERE key = ?`, key)
}

func (s *Offers) update(ctx context.Context, q string, args ...any) error {
	n, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
