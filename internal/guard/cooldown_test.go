package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t atomic.Int64 }

func (c *clock) now() time.Time      { return time.Unix(0, c.t.Load()) }
func (c *clock) add(d time.Duration) { c.t.Add(int64(d)) }

func newTestCooldown(win time.Duration) (*Cooldown, *clock) {
	clk := &clock{}
	clk.t.Store(time.Unix(1000, 0).UnixNano())
	c := NewCooldown(win)
	c.now = clk.now
	return c, clk
}

func TestCooldownWindow(t *testing.T) {
	t.Parallel()
	c, clk := newTestCooldown(time.Second)

	if !c.Allow(1) {
		t.Fatal("first request must pass")
	}
	if c.Allow(1) {
		t.Fatal("second request inside window must be throttled")
	}
	if !c.Allow(2) {
		t.Fatal("other identity must not be affected")
	}
	clk.add(999 * time.Millisecond)
	if c.Allow(1) {
		t.Fatal("still inside window")
	}
	clk.add(time.Millisecond)
	if !c.Allow(1) {
		t.Fatal("window elapsed")
	}
}

func TestCooldownDisabled(t *testing.T) {
	t.Parallel()
	c, _ := newTestCooldown(0)
	for i := 0; i < 3; i++ {
		if !c.Allow(1) {
			t.Fatal("disabled guard throttled")
		}
	}
}

func TestCooldownConcurrentSameIdentity(t *testing.T) {
	t.Parallel()
	c, _ := newTestCooldown(time.Hour)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Allow(9) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 1 {
		t.Fatalf("allowed=%d want 1", got)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()
	c, clk := newTestCooldown(time.Second)
	c.Allow(1)
	clk.add(time.Minute)
	c.Allow(2)

	if n := c.Prune(30 * time.Second); n != 1 {
		t.Fatalf("pruned=%d want 1", n)
	}
	if c.Allow(2) {
		t.Fatal("recent identity must be kept")
	}
}

func TestRunPrunerStops(t *testing.T) {
	t.Parallel()
	c := NewCooldown(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunPruner(ctx, time.Millisecond, time.Second)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	<-done
}
