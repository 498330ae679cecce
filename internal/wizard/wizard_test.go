package wizard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatebot/internal/catalog"
	"gatebot/internal/storage"
	"gatebot/internal/transport"
)

type fakeOffers struct {
	existing map[string]catalog.Offer
}

func newFakeOffers(keys ...string) *fakeOffers {
	f := &fakeOffers{existing: map[string]catalog.Offer{}}
	for _, k := range keys {
		f.existing[k] = catalog.Offer{Key: k, AssetRef: storage.AssetMissing, Active: true}
	}
	return f
}

func (f *fakeOffers) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.existing[key]
	return ok, nil
}

func (f *fakeOffers) Create(_ context.Context, key, label, asset string) (catalog.Offer, error) {
	if _, ok := f.existing[key]; ok {
		return catalog.Offer{}, catalog.ErrKeyTaken
	}
	o := catalog.Offer{Key: key, Label: label, AssetRef: asset, Active: true}
	f.existing[key] = o
	return o, nil
}

func (f *fakeOffers) SetAsset(_ context.Context, key, asset string) error {
	o, ok := f.existing[key]
	if !ok {
		return catalog.ErrNotFound
	}
	o.AssetRef = asset
	f.existing[key] = o
	return nil
}

func (f *fakeOffers) SetLabel(_ context.Context, key, label string) error {
	o, ok := f.existing[key]
	if !ok {
		return catalog.ErrNotFound
	}
	o.Label = label
	f.existing[key] = o
	return nil
}

func TestCreateFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	offers := newFakeOffers("taken")
	w := New(NewStore(time.Minute), offers)
	const admin = 1

	_, err := w.Handle(ctx, admin, Input{Text: "x"})
	require.ErrorIs(t, err, ErrNoSession)

	require.Equal(t, StepAwaitKey, w.BeginCreate(admin))

	steps := []struct {
		in      Input
		wantErr error
		want    Step
	}{
		{Input{Text: "Bad Key"}, ErrKeyFormat, StepAwaitKey},
		{Input{Text: "taken"}, ErrKeyTaken, StepAwaitKey},
		{Input{Text: " pack_a "}, nil, StepAwaitLabel},
		{Input{Text: "   "}, ErrLabelEmpty, StepAwaitLabel},
		{Input{Text: "Pack A"}, nil, StepAwaitAsset},
		{Input{Text: "just text"}, ErrAssetRequired, StepAwaitAsset},
	}
	for i, s := range steps {
		res, err := w.Handle(ctx, admin, s.in)
		if s.wantErr != nil {
			require.ErrorIs(t, err, s.wantErr, "step %d", i)
		} else {
			require.NoError(t, err, "step %d", i)
		}
		require.Equal(t, s.want, res.Step, "step %d", i)
	}

	sess, ok := w.Store().Get(admin)
	require.True(t, ok)
	require.Equal(t, "pack_a", sess.Key)
	require.Equal(t, "Pack A", sess.Label)

	res, err := w.Handle(ctx, admin, Input{AssetRef: "FILE1"})
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	require.True(t, res.Created.Active)
	require.Equal(t, "FILE1", offers.existing["pack_a"].AssetRef)
	require.Equal(t, StepNone, w.Current(admin))
}

func TestCancelFromAnyStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, advance := range []int{0, 1, 2} {
		w := New(NewStore(time.Minute), newFakeOffers())
		w.BeginCreate(7)
		inputs := []Input{{Text: "key_one"}, {Text: "Label"}}
		for i := 0; i < advance; i++ {
			_, err := w.Handle(ctx, 7, inputs[i])
			require.NoError(t, err)
		}
		require.True(t, w.Cancel(7))
		require.False(t, w.Cancel(7))
		_, err := w.Handle(ctx, 7, Input{AssetRef: "F"})
		require.ErrorIs(t, err, ErrNoSession)
	}
}

func TestSessionsExpire(t *testing.T) {
	t.Parallel()
	store := NewStore(time.Minute)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	w := New(store, newFakeOffers())
	w.BeginCreate(1)
	w.BeginBroadcast(2)

	now = now.Add(2 * time.Minute)
	require.Equal(t, StepNone, w.Current(1))
	require.Equal(t, 1, store.Sweep())
	require.Zero(t, store.Len())
}

func TestSetTTLAppliesToLiveSessions(t *testing.T) {
	t.Parallel()
	store := NewStore(time.Minute)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	w := New(store, newFakeOffers())
	w.BeginCreate(1)
	now = now.Add(2 * time.Minute)

	store.SetTTL(time.Hour)
	require.Equal(t, StepAwaitKey, w.Current(1))
	store.SetTTL(0)
	require.Equal(t, StepAwaitKey, w.Current(1))
}

func TestAssetChangeFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	offers := newFakeOffers("pack_a")
	w := New(NewStore(time.Minute), offers)

	w.BeginAssetChange(3, "pack_a")
	_, err := w.Handle(ctx, 3, Input{Text: "no file"})
	require.ErrorIs(t, err, ErrAssetRequired)

	res, err := w.Handle(ctx, 3, Input{AssetRef: "NEW"})
	require.NoError(t, err)
	require.Equal(t, "pack_a", res.AssetChanged)
	require.Equal(t, "NEW", offers.existing["pack_a"].AssetRef)
}

func TestRenameFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	offers := newFakeOffers("pack_a")
	w := New(NewStore(time.Minute), offers)

	w.BeginRename(3, "pack_a")
	_, err := w.Handle(ctx, 3, Input{Text: "   "})
	require.ErrorIs(t, err, ErrLabelEmpty)
	require.Equal(t, StepAwaitNewLabel, w.Current(3))

	res, err := w.Handle(ctx, 3, Input{Text: " Pack A v2 "})
	require.NoError(t, err)
	require.Equal(t, "pack_a", res.LabelChanged)
	require.Equal(t, "Pack A v2", offers.existing["pack_a"].Label)
	require.Equal(t, StepNone, w.Current(3))

	w.BeginRename(3, "gone")
	_, err = w.Handle(ctx, 3, Input{Text: "x"})
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Equal(t, StepNone, w.Current(3))
}

func TestBroadcastDraft(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := New(NewStore(time.Minute), newFakeOffers())

	_, err := w.TakeDraft(5)
	require.ErrorIs(t, err, ErrNoSession)

	w.BeginBroadcast(5)
	_, err = w.TakeDraft(5)
	require.ErrorIs(t, err, ErrWrongStep)

	src := transport.MessageRef{ChatID: 5, MessageID: 77}
	res, err := w.Handle(ctx, 5, Input{Text: "hello", Source: src})
	require.NoError(t, err)
	require.Equal(t, StepAwaitBroadcastConfirm, res.Step)

	_, err = w.Handle(ctx, 5, Input{Text: "more"})
	require.ErrorIs(t, err, ErrWrongStep)

	got, err := w.TakeDraft(5)
	require.NoError(t, err)
	require.Equal(t, src, got)
	require.Equal(t, StepNone, w.Current(5))
}
