package analytics

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

type fixture struct {
	db    *storage.DB
	ids   *storage.Identities
	offs  *storage.Offers
	evs   *storage.Events
	log   *EventLog
	stats *Stats
	bus   eventbus.Bus
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "a.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := fixture{db: db, ids: storage.NewIdentities(db), offs: storage.NewOffers(db), evs: storage.NewEvents(db), bus: eventbus.New()}
	f.log = NewEventLog(f.evs, f.bus, logx.Nop())
	f.stats = NewStats(f.ids, f.offs, f.evs)
	return f
}

func TestConversionZeroWhenNoStarts(t *testing.T) {
	t.Parallel()
	var s OfferStats
	require.Zero(t, s.VerifyConversion())
	require.Zero(t, s.SendConversion())
	require.Zero(t, GlobalStats{}.JoinRate())

	s = OfferStats{Starts: 4, Verifies: 2, Sends: 1}
	require.InDelta(t, 0.5, s.VerifyConversion(), 1e-9)
	require.InDelta(t, 0.25, s.SendConversion(), 1e-9)
}

func TestAppendPublishesSignal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe(SignalPrefix, 4)
	defer unsub()

	require.NoError(t, f.log.Record(ctx, 7, storage.EventStart, "pack_a"))

	select {
	case e := <-ch:
		require.Equal(t, "funnel.start", e.Type)
		saved, ok := e.Data.(storage.Event)
		require.True(t, ok)
		require.Equal(t, int64(7), saved.IdentityID)
		require.NotZero(t, saved.ID)
	case <-time.After(time.Second):
		t.Fatal("no signal published")
	}
}

func TestOfferStatsFromLog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.offs.Insert(ctx, storage.Offer{Key: "pack_a", Label: "Pack A", AssetRef: "F", Active: true})
	require.NoError(t, err)
	_, err = f.offs.Insert(ctx, storage.Offer{Key: "pack_b", Label: "Pack B", AssetRef: storage.AssetMissing, Active: true})
	require.NoError(t, err)

	for _, k := range []storage.EventKind{storage.EventStart, storage.EventStart, storage.EventVerifyOK, storage.EventFileSent, storage.EventVerifyFail} {
		require.NoError(t, f.log.Record(ctx, 1, k, "pack_a"))
	}

	got, err := f.stats.OfferStats(ctx, "pack_a")
	require.NoError(t, err)
	want := OfferStats{Key: "pack_a", Label: "Pack A", Active: true, HasAsset: true, Starts: 2, Verifies: 1, Sends: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("offer stats mismatch (-want +got):\n%s", diff)
	}

	all, err := f.stats.AllOfferStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "pack_a", all[0].Key)
	require.Equal(t, OfferStats{Key: "pack_b", Label: "Pack B", Active: true}, all[1])

	empty, err := f.stats.OfferStats(ctx, "gone_key")
	require.NoError(t, err)
	require.Zero(t, empty.SendConversion())
}

type brokenOffers struct{ *storage.Offers }

func (brokenOffers) Get(context.Context, string) (storage.Offer, error) {
	return storage.Offer{}, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func TestOfferStatsPropagatesStoreOutage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.log.Record(ctx, 1, storage.EventStart, "pack_a"))

	stats := NewStats(f.ids, brokenOffers{f.offs}, f.evs)
	_, err := stats.OfferStats(ctx, "pack_a")
	require.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestGlobalStatsExcludesSystemIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.ids.Upsert(ctx, 1, 1, "pack_a"))
	require.NoError(t, f.ids.Upsert(ctx, 2, 2, ""))
	require.NoError(t, f.ids.MarkJoined(ctx, 1))

	require.NoError(t, f.log.Record(ctx, 1, storage.EventStart, "pack_a"))
	_, err := f.log.Append(ctx, storage.Event{IdentityID: storage.SystemIdentity, Kind: storage.EventBroadcastSent, Target: 2})
	require.NoError(t, err)
	_, err = f.log.Append(ctx, storage.Event{IdentityID: 2, Kind: storage.EventStart, At: time.Now().Add(-48 * time.Hour)})
	require.NoError(t, err)

	g, err := f.stats.GlobalStats(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, GlobalStats{TotalIdentities: 2, JoinedCount: 1, ActiveWithin: 1, Window: 24 * time.Hour}, g)
	require.InDelta(t, 0.5, g.JoinRate(), 1e-9)
}
