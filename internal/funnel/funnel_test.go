package funnel

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"gatebot/internal/analytics"
	"gatebot/internal/catalog"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

type switchOracle struct{ member atomic.Bool }

func (o *switchOracle) IsMember(context.Context, int64, string) bool { return o.member.Load() }

type env struct {
	engine *Engine
	cat    *catalog.Catalog
	ids    *storage.Identities
	stats  *analytics.Stats
	oracle *switchOracle
	events *storage.Events
}

func newEnv(t *testing.T) env {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "f.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ids := storage.NewIdentities(db)
	offers := storage.NewOffers(db)
	events := storage.NewEvents(db)
	cat := catalog.New(offers, logx.Nop())
	oracle := &switchOracle{}
	log := analytics.NewEventLog(events, nil, logx.Nop())
	return env{
		engine: NewEngine(ids, cat, log, oracle, "@gate", logx.Nop()),
		cat:    cat,
		ids:    ids,
		stats:  analytics.NewStats(ids, offers, events),
		oracle: oracle,
		events: events,
	}
}

func countKind(t *testing.T, ev *storage.Events, identity int64, kind storage.EventKind) int {
	t.Helper()
	n := 0
	require.NoError(t, ev.Each(context.Background(), func(e storage.Event) error {
		if e.IdentityID == identity && e.Kind == kind {
			n++
		}
		return nil
	}))
	return n
}

func TestClassify(t *testing.T) {
	t.Parallel()

	active := &storage.Offer{Key: "pack_a", Active: true, AssetRef: "F"}
	inactive := &storage.Offer{Key: "pack_a", Active: false, AssetRef: "F"}
	other := &storage.Offer{Key: "pack_b", Active: true}

	cases := []struct {
		name      string
		id        *storage.Identity
		offer     *storage.Offer
		delivered bool
		want      State
	}{
		{"absent identity", nil, active, false, StateNoOffer},
		{"no selection", &storage.Identity{}, nil, false, StateNoOffer},
		{"no selection joined", &storage.Identity{JoinedOK: true}, active, true, StateNoOffer},
		{"selected offer missing", &storage.Identity{SelectedOffer: "pack_a"}, nil, false, StateOfferGone},
		{"selected offer inactive", &storage.Identity{SelectedOffer: "pack_a", JoinedOK: true}, inactive, false, StateOfferGone},
		{"offer mismatch", &storage.Identity{SelectedOffer: "pack_a"}, other, false, StateOfferGone},
		{"awaiting", &storage.Identity{SelectedOffer: "pack_a"}, active, false, StateAwaitingVerification},
		{"awaiting ignores delivery", &storage.Identity{SelectedOffer: "pack_a"}, active, true, StateAwaitingVerification},
		{"verified", &storage.Identity{SelectedOffer: "pack_a", JoinedOK: true}, active, false, StateVerified},
		{"delivered", &storage.Identity{SelectedOffer: "pack_a", JoinedOK: true}, active, true, StateDelivered},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tc.id, tc.offer, tc.delivered); got != tc.want {
				t.Fatalf("Classify=%s want %s", got, tc.want)
			}
		})
	}
}

func TestPackAScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.cat.Create(ctx, "pack_a", "Pack A", "FILE_A")
	require.NoError(t, err)

	res, err := e.engine.Enter(ctx, 42, 4200, "pack_a")
	require.NoError(t, err)
	require.False(t, res.Redirect)
	require.Equal(t, "Pack A", res.Label)
	id, err := e.ids.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "pack_a", id.SelectedOffer)
	require.Equal(t, 1, countKind(t, e.events, 42, storage.EventStart))

	e.oracle.member.Store(true)
	vr, err := e.engine.Verify(ctx, 42)
	require.NoError(t, err)
	require.True(t, vr.OK)
	id, err = e.ids.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, id.JoinedOK)

	d, err := e.engine.Deliver(ctx, 42, "pack_a", sendOK)
	require.NoError(t, err)
	require.Equal(t, "FILE_A", d.AssetRef)

	st, err := e.stats.OfferStats(ctx, "pack_a")
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Starts)
	require.Equal(t, int64(1), st.Verifies)
	require.Equal(t, int64(1), st.Sends)

	state, _, err := e.engine.State(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, StateDelivered, state)
}

func TestEnterRedirects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.cat.Create(ctx, "off_now", "Off", "F")
	require.NoError(t, err)
	require.NoError(t, e.cat.SetActive(ctx, "off_now", false))

	for _, key := range []string{"", "BAD KEY", "unknown_key", "off_now"} {
		res, err := e.engine.Enter(ctx, 7, 7, key)
		require.NoError(t, err)
		require.True(t, res.Redirect, key)
	}
	require.Zero(t, countKind(t, e.events, 7, storage.EventStart))

	id, err := e.ids.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "off_now", id.SelectedOffer)
}

func TestVerifyRequiresEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	e.oracle.member.Store(true)

	_, err := e.engine.Verify(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.engine.Enter(ctx, 1, 1, "")
	require.NoError(t, err)
	_, err = e.engine.Verify(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyIdempotentAndSticky(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.cat.Create(ctx, "pack_a", "Pack A", "F")
	require.NoError(t, err)
	_, err = e.engine.Enter(ctx, 5, 5, "pack_a")
	require.NoError(t, err)

	e.oracle.member.Store(true)
	for i := 0; i < 2; i++ {
		vr, err := e.engine.Verify(ctx, 5)
		require.NoError(t, err)
		require.True(t, vr.OK)
	}
	require.Equal(t, 2, countKind(t, e.events, 5, storage.EventVerifyOK))

	e.oracle.member.Store(false)
	first, err := e.engine.Verify(ctx, 5)
	require.NoError(t, err)
	require.False(t, first.OK)
	require.False(t, first.Repeated)

	second, err := e.engine.Verify(ctx, 5)
	require.NoError(t, err)
	require.True(t, second.Repeated)

	id, err := e.ids.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, id.JoinedOK, "joined_ok must stay set after a failed verify")
	require.Equal(t, 2, countKind(t, e.events, 5, storage.EventVerifyFail))
}

func TestVerifyOfferGone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.cat.Create(ctx, "pack_a", "Pack A", "F")
	require.NoError(t, err)
	_, err = e.engine.Enter(ctx, 9, 9, "pack_a")
	require.NoError(t, err)
	require.NoError(t, e.cat.Delete(ctx, "pack_a"))

	e.oracle.member.Store(true)
	_, err = e.engine.Verify(ctx, 9)
	require.ErrorIs(t, err, ErrOfferGone)

	state, _, err := e.engine.State(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, StateOfferGone, state)
}

func TestDeliverRechecksMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.cat.Create(ctx, "pack_a", "Pack A", "F")
	require.NoError(t, err)
	_, err = e.cat.Create(ctx, "no_file", "No file", "")
	require.NoError(t, err)
	_, err = e.engine.Enter(ctx, 3, 3, "pack_a")
	require.NoError(t, err)

	e.oracle.member.Store(true)
	_, err = e.engine.Verify(ctx, 3)
	require.NoError(t, err)

	e.oracle.member.Store(false)
	_, err = e.engine.Deliver(ctx, 3, "pack_a", sendOK)
	require.ErrorIs(t, err, ErrNotMember)

	e.oracle.member.Store(true)
	_, err = e.engine.Deliver(ctx, 3, "no_file", sendOK)
	require.ErrorIs(t, err, ErrOfferUnavailable)
	_, err = e.engine.Deliver(ctx, 3, "missing", sendOK)
	require.ErrorIs(t, err, ErrOfferUnavailable)

	boom := errors.New("blocked by user")
	_, err = e.engine.Deliver(ctx, 3, "pack_a", func(context.Context, Delivery) error { return boom })
	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, boom)
	require.Zero(t, countKind(t, e.events, 3, storage.EventFileSent))

	d, err := e.engine.PrepareDelivery(ctx, 3, "pack_a")
	require.NoError(t, err)
	require.Zero(t, countKind(t, e.events, 3, storage.EventFileSent))
	require.NoError(t, e.engine.RecordDelivery(ctx, d))
	require.Equal(t, 1, countKind(t, e.events, 3, storage.EventFileSent))
}

func sendOK(context.Context, Delivery) error { return nil }

func TestSetGroup(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	require.Equal(t, "@gate", e.engine.Group())
	e.engine.SetGroup("-1001")
	require.Equal(t, "-1001", e.engine.Group())
}
