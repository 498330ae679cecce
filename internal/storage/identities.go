package storage

import (
	"context"
	"database/sql"
	"time"
)

// Identities persists end users.
type Identities struct {
	db  *DB
	now func() time.Time
}

func NewIdentities(db *DB) *Identities {
	return &Identities{db: db, now: time.Now}
}

// Upsert creates the identity or refreshes its contact channel, always
// overwriting selected_offer ("" stores NULL). joined_ok is never touched.
func (s *Identities) Upsert(ctx context.Context, id, contact int64, selectedOffer string) error {
	ts := s.now().UTC().UnixMilli()
	_, err := s.db.Exec(ctx, `
INSERT INTO users (identity_id, contact_channel, selected_offer, joined_ok, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (identity_id) DO UPDATE SET
    contact_channel = excluded.contact_channel,
    selected_offer  = excluded.selected_offer,
    updated_at      = excluded.updated_at`,
		id, contact, nullStr(selectedOffer), false, ts, ts)
	return err
}

// Get returns ErrNotFound when the identity does not exist.
func (s *Identities) Get(ctx context.Context, id int64) (Identity, error) {
	var (
		it       Identity
		selected sql.NullString
		created  int64
		updated  int64
	)
	err := s.db.FetchOne(ctx, `
SELECT identity_id, contact_channel, selected_offer, joined_ok, created_at, updated_at
FROM users WHERE identity_id = ?`, []any{id},
		&it.ID, &it.ContactChannel, &selected, &it.JoinedOK, &created, &updated)
	if err != nil {
		return Identity{}, err
	}
	it.SelectedOffer = selected.String
	it.CreatedAt = time.UnixMilli(created).UTC()
	it.UpdatedAt = time.UnixMilli(updated).UTC()
	return it, nil
}

// MarkJoined sets joined_ok. It is sticky: nothing ever clears it.
func (s *Identities) MarkJoined(ctx context.Context, id int64) error {
	n, err := s.db.Exec(ctx, `UPDATE users SET joined_ok = ?, updated_at = ? WHERE identity_id = ?`,
		true, s.now().UTC().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Contacts returns every known contact channel in identity order.
func (s *Identities) Contacts(ctx context.Context) ([]int64, error) {
	var out []int64
	err := s.db.FetchAll(ctx, `SELECT contact_channel FROM users ORDER BY identity_id`, nil, func(rows *sql.Rows) error {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// Counts returns (total identities, identities with joined_ok).
func (s *Identities) Counts(ctx context.Context) (total, joined int64, err error) {
	var j sql.NullInt64
	err = s.db.FetchOne(ctx, `
SELECT COUNT(*), SUM(CASE WHEN joined_ok = ? THEN 1 ELSE 0 END) FROM users`, []any{true}, &total, &j)
	return total, j.Int64, err
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
