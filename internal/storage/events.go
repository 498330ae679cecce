package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Events is the append-only event log table. There is no update or delete.
type Events struct {
	db  *DB
	now func() time.Time
}

func NewEvents(db *DB) *Events {
	return &Events{db: db, now: time.Now}
}

// Append stores e and returns it with ID and At filled in.
func (s *Events) Append(ctx context.Context, e Event) (Event, error) {
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("append event: unknown kind %q", e.Kind)
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	e.At = e.At.UTC().Truncate(time.Millisecond)
	var target any
	if e.Target != 0 {
		target = e.Target
	}
	err := s.db.FetchOne(ctx, `
INSERT INTO events (identity_id, kind, offer_key, target, ts) VALUES (?, ?, ?, ?, ?)
RETURNING id`,
		[]any{e.IdentityID, string(e.Kind), nullStr(e.OfferKey), target, e.At.UnixMilli()}, &e.ID)
	if err != nil {
		return Event{}, err
	}
	return e, nil
}

// OfferCounts holds funnel counters for one offer key.
type OfferCounts struct {
	Starts   int64
	Verifies int64
	Sends    int64
}

const offerCountsSelect = `
SUM(CASE WHEN kind = 'start' THEN 1 ELSE 0 END),
SUM(CASE WHEN kind = 'verify_ok' THEN 1 ELSE 0 END),
SUM(CASE WHEN kind = 'file_sent' THEN 1 ELSE 0 END)`

// CountsForOffer counts start, verify_ok and file_sent entries tagged key.
func (s *Events) CountsForOffer(ctx context.Context, key string) (OfferCounts, error) {
	var st, vf, sn sql.NullInt64
	err := s.db.FetchOne(ctx, `SELECT `+offerCountsSelect+` FROM events WHERE offer_key = ?`, []any{key}, &st, &vf, &sn)
	if err != nil {
		return OfferCounts{}, err
	}
	return OfferCounts{Starts: st.Int64, Verifies: vf.Int64, Sends: sn.Int64}, nil
}

// CountsByOffer returns counters for every offer key present in the log.
func (s *Events) CountsByOffer(ctx context.Context) (map[string]OfferCounts, error) {
	out := map[string]OfferCounts{}
	err := s.db.FetchAll(ctx, `SELECT offer_key, `+offerCountsSelect+`
FROM events WHERE offer_key IS NOT NULL GROUP BY offer_key`, nil, func(rows *sql.Rows) error {
		var (
			key        string
			st, vf, sn sql.NullInt64
		)
		if err := rows.Scan(&key, &st, &vf, &sn); err != nil {
			return err
		}
		out[key] = OfferCounts{Starts: st.Int64, Verifies: vf.Int64, Sends: sn.Int64}
		return nil
	})
	return out, err
}

// ActiveIdentities counts distinct non-system identities with any event in [from, to].
func (s *Events) ActiveIdentities(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.FetchOne(ctx, `
SELECT COUNT(DISTINCT identity_id) FROM events
WHERE ts >= ? AND ts <= ? AND identity_id <> ?`,
		[]any{from.UnixMilli(), to.UnixMilli(), SystemIdentity}, &n)
	return n, err
}

// LastFunnelKind returns the kind of the most recent funnel event of the
// identity for offerKey, or "" when there is none.
func (s *Events) LastFunnelKind(ctx context.Context, identityID int64, offerKey string) (EventKind, error) {
	var kind string
	err := s.db.FetchOne(ctx, `
SELECT kind FROM events
WHERE identity_id = ? AND offer_key = ? AND kind IN ('start', 'verify_ok', 'verify_fail', 'file_sent')
ORDER BY id DESC LIMIT 1`, []any{identityID, offerKey}, &kind)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return EventKind(kind), err
}

// HasDelivery reports whether a file_sent entry exists for identity and offer.
func (s *Events) HasDelivery(ctx context.Context, identityID int64, offerKey string) (bool, error) {
	var one int
	err := s.db.FetchOne(ctx, `
SELECT 1 FROM events WHERE identity_id = ? AND offer_key = ? AND kind = 'file_sent' LIMIT 1`,
		[]any{identityID, offerKey}, &one)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Each streams every event ordered by timestamp ascending (id breaks ties).
func (s *Events) Each(ctx context.Context, fn func(Event) error) error {
	return s.db.FetchAll(ctx, `
SELECT id, identity_id, kind, offer_key, target, ts FROM events ORDER BY ts, id`, nil, func(rows *sql.Rows) error {
		var (
			e      Event
			kind   string
			key    sql.NullString
			target sql.NullInt64
			ts     int64
		)
		if err := rows.Scan(&e.ID, &e.IdentityID, &kind, &key, &target, &ts); err != nil {
			return err
		}
		e.Kind = EventKind(kind)
		e.OfferKey = key.String
		e.Target = target.Int64
		e.At = time.UnixMilli(ts).UTC()
		return fn(e)
	})
}
