package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gatebot/internal/guard"
	kit "gatebot/internal/transport"
	logx "gatebot/pkg/logx"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []string
	answers []string
	menus   map[int64][]kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}
func (f *fakeAdapter) SendDocument(context.Context, kit.ChatTarget, kit.Document, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) CopyMessage(context.Context, kit.ChatTarget, kit.MessageRef, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) ChatMemberStatus(context.Context, string, int64) (string, error) {
	return "member", nil
}
func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, scope kit.CommandScope, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.menus == nil {
		f.menus = map[int64][]kit.BotCommand{}
	}
	f.menus[scope.ChatID] = cmds
	return nil
}

func (f *fakeAdapter) snapshot() (texts, answers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...), append([]string(nil), f.answers...)
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func cb(from int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "q", ChatID: from, FromID: from, Data: data}}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start pack_a", "start", []string{"pack_a"}, true},
		{"/START@GateBot  x  y", "start", []string{"x", "y"}, true},
		{"/admin", "admin", []string{}, true},
		{"hello", "", nil, false},
		{"/", "", nil, false},
		{"/@bot", "", nil, false},
	}
	for _, tt := range tests {
		name, args, ok := splitCommand(tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
		require.Equal(t, tt.name, name, tt.in)
		if tt.ok {
			require.Equal(t, tt.args, args, tt.in)
		}
	}
}

func TestShardForIsStable(t *testing.T) {
	t.Parallel()

	for id := int64(-5); id < 500; id++ {
		s := shardFor(id, 8)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 8)
		require.Equal(t, s, shardFor(id, 8))
	}
	require.Equal(t, 0, shardFor(42, 1))
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	require.Equal(t, "offer_stats", sanitizeTelegramCommand(" Offer-Stats "))
	require.Equal(t, "a_b", sanitizeTelegramCommand("a  --  b"))
	require.Equal(t, "", sanitizeTelegramCommand("!!"))
	require.Len(t, sanitizeTelegramCommand("x123456789012345678901234567890123456"), 32)
}

func runRouter(t *testing.T, r *Router) chan<- kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan kit.Update)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, in)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return in
}

func TestSameIdentityIsSerialized(t *testing.T) {
	t.Parallel()

	r := New(logx.Nop(), &fakeAdapter{}, nil, Options{Shards: 4})
	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	wg.Add(3)
	r.SetRegistry([]Command{{Name: "echo", Handle: func(_ context.Context, req *Request) error {
		defer wg.Done()
		if req.Args[0] == "1" {
			time.Sleep(30 * time.Millisecond)
		}
		mu.Lock()
		order = append(order, req.Args[0])
		mu.Unlock()
		return nil
	}}}, nil, nil)

	in := runRouter(t, r)
	for _, s := range []string{"1", "2", "3"} {
		in <- msg(7, "/echo "+s)
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"1", "2", "3"}, order)
}

func TestAdminAccess(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	r := New(logx.Nop(), fa, []int64{1}, Options{})
	called := make(chan int64, 4)
	h := func(_ context.Context, req *Request) error {
		called <- req.FromID
		return nil
	}
	r.SetRegistry(
		[]Command{{Name: "admin", Access: AccessAdmin, Handle: h}},
		[]CallbackRoute{{Scope: "adm", Action: "home", Access: AccessAdmin, Handle: h}},
		nil,
	)
	ctx := context.Background()

	_, _, ok := r.resolve(ctx, msg(2, "/admin"))
	require.False(t, ok)
	_, _, ok = r.resolve(ctx, cb(2, "adm:home"))
	require.False(t, ok)
	_, answers := fa.snapshot()
	require.Equal(t, []string{"Not allowed."}, answers)

	req, handle, ok := r.resolve(ctx, msg(1, "/admin"))
	require.True(t, ok)
	require.True(t, req.IsAdmin)
	require.NoError(t, handle(ctx, req))
	require.Equal(t, int64(1), <-called)

	r.SetAdmins([]int64{2})
	require.False(t, r.IsAdmin(1))
	_, _, ok = r.resolve(ctx, msg(2, "/admin"))
	require.True(t, ok)
}

func TestUnknownCommandAndFallback(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	r := New(logx.Nop(), fa, nil, Options{})
	ctx := context.Background()

	_, _, ok := r.resolve(ctx, msg(3, "/nope"))
	require.False(t, ok)
	texts, _ := fa.snapshot()
	require.Equal(t, []string{"Unknown command."}, texts)

	_, _, ok = r.resolve(ctx, msg(3, "plain text"))
	require.False(t, ok)

	r.SetRegistry(nil, nil, &Command{Name: "text", Handle: func(context.Context, *Request) error { return nil }})
	req, _, ok := r.resolve(ctx, msg(3, "plain text"))
	require.True(t, ok)
	require.Equal(t, "text", req.Route)
}

func TestCallbackPayloadAndCooldown(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	g := guard.NewCooldown(time.Hour)
	r := New(logx.Nop(), fa, nil, Options{Cooldown: MWCooldown(g, "slow down")})
	var got []string
	r.SetRegistry(nil, []CallbackRoute{{Scope: "send", Action: "offer", Throttle: true, Handle: func(_ context.Context, req *Request) error {
		got = append(got, req.Payload)
		return nil
	}}}, nil)
	ctx := context.Background()

	req, h, ok := r.resolve(ctx, cb(5, "send:offer:pack_a"))
	require.True(t, ok)
	require.NoError(t, h(ctx, req))

	req, h, ok = r.resolve(ctx, cb(5, "send:offer:pack_a"))
	require.True(t, ok)
	require.ErrorIs(t, h(ctx, req), ErrThrottled)

	require.Equal(t, []string{"pack_a"}, got)
	_, answers := fa.snapshot()
	require.Equal(t, []string{"slow down"}, answers)

	// answered once only
	require.NoError(t, req.Answer(ctx, "again"))
	_, answers = fa.snapshot()
	require.Len(t, answers, 1)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	var results []string
	r := New(logx.Nop(), &fakeAdapter{}, nil, Options{Observe: func(_, result string) { results = append(results, result) }})
	r.SetRegistry([]Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("x") }}}, nil, nil)
	ctx := context.Background()

	req, h, ok := r.resolve(ctx, msg(1, "/boom"))
	require.True(t, ok)
	require.Error(t, h(ctx, req))
	require.Equal(t, []string{"error"}, results)
}

func TestUpdateMenus(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	r := New(logx.Nop(), fa, []int64{10}, Options{})
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "start", Description: "Start", Handle: noop},
		{Name: "cancel", Hidden: true, Handle: noop},
		{Name: "admin", Description: "Admin panel", Access: AccessAdmin, Handle: noop},
	}, nil, nil)

	r.UpdateMenus(context.Background())
	fa.mu.Lock()
	defer fa.mu.Unlock()
	require.Equal(t, []kit.BotCommand{{Command: "start", Description: "Start"}}, fa.menus[0])
	require.Len(t, fa.menus[10], 2)
}
