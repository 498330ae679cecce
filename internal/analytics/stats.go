package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"gatebot/internal/storage"
)

// GlobalStats are identity-level totals.
type GlobalStats struct {
	TotalIdentities int64
	JoinedCount     int64
	ActiveWithin    int64
	Window          time.Duration
}

// JoinRate is JoinedCount/TotalIdentities, 0 for an empty table.
func (g GlobalStats) JoinRate() float64 {
	return ratio(g.JoinedCount, g.TotalIdentities)
}

// OfferStats are funnel counters for one offer key.
type OfferStats struct {
	Key      string
	Label    string
	Active   bool
	HasAsset bool
	Starts   int64
	Verifies int64
	Sends    int64
}

func (o OfferStats) VerifyConversion() float64 { return ratio(o.Verifies, o.Starts) }
func (o OfferStats) SendConversion() float64   { return ratio(o.Sends, o.Starts) }

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// OfferReader is the offer-table surface Stats reads.
type OfferReader interface {
	Get(ctx context.Context, key string) (storage.Offer, error)
	List(ctx context.Context, offset, limit int) ([]storage.Offer, error)
}

// Stats computes metrics on demand. It never writes and keeps no counters.
type Stats struct {
	identities *storage.Identities
	offers     OfferReader
	events     *storage.Events
	now        func() time.Time
}

func NewStats(identities *storage.Identities, offers OfferReader, events *storage.Events) *Stats {
	return &Stats{identities: identities, offers: offers, events: events, now: time.Now}
}

func (s *Stats) GlobalStats(ctx context.Context, window time.Duration) (GlobalStats, error) {
	total, joined, err := s.identities.Counts(ctx)
	if err != nil {
		return GlobalStats{}, err
	}
	g := GlobalStats{TotalIdentities: total, JoinedCount: joined, Window: window}
	if window > 0 {
		now := s.now()
		g.ActiveWithin, err = s.events.ActiveIdentities(ctx, now.Add(-window), now)
		if err != nil {
			return GlobalStats{}, err
		}
	}
	return g, nil
}

// OfferStats counts entries tagged key. The key need not exist in the
// catalog any more; deleted offers keep their history.
func (s *Stats) OfferStats(ctx context.Context, key string) (OfferStats, error) {
	c, err := s.events.CountsForOffer(ctx, key)
	if err != nil {
		return OfferStats{}, err
	}
	out := OfferStats{Key: key, Starts: c.Starts, Verifies: c.Verifies, Sends: c.Sends}
	o, err := s.offers.Get(ctx, key)
	switch {
	case err == nil:
		out.Label, out.Active, out.HasAsset = o.Label, o.Active, o.HasAsset()
	case !errors.Is(err, storage.ErrNotFound):
		return OfferStats{}, err
	}
	return out, nil
}

// AllOfferStats returns one row per catalog offer, most started first.
func (s *Stats) AllOfferStats(ctx context.Context) ([]OfferStats, error) {
	offers, err := s.offers.List(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	counts, err := s.events.CountsByOffer(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]OfferStats, 0, len(offers))
	for _, o := range offers {
		c := counts[o.Key]
		out = append(out, OfferStats{
			Key: o.Key, Label: o.Label, Active: o.Active, HasAsset: o.HasAsset(),
			Starts: c.Starts, Verifies: c.Verifies, Sends: c.Sends,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Starts > out[j].Starts })
	return out, nil
}
