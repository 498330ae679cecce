// Package guard throttles interactive requests per identity.
package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cooldown admits at most one request per identity per window. Each identity
// owns one atomic timestamp; identities never contend with each other.
type Cooldown struct {
	window atomic.Int64 // nanoseconds
	last   sync.Map     // int64 -> *atomic.Int64 (unix nanos of last accepted)
	now    func() time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	c := &Cooldown{now: time.Now}
	c.SetWindow(window)
	return c
}

// SetWindow changes the cooldown; values <= 0 disable throttling.
func (c *Cooldown) SetWindow(d time.Duration) { c.window.Store(int64(d)) }

func (c *Cooldown) Window() time.Duration { return time.Duration(c.window.Load()) }

// Allow reports whether identityID may proceed now and, if so, records the
// request as the most recent accepted one.
func (c *Cooldown) Allow(identityID int64) bool {
	win := c.window.Load()
	if win <= 0 {
		return true
	}
	now := c.now().UnixNano()
	v, loaded := c.last.LoadOrStore(identityID, newStamp(now))
	if !loaded {
		return true
	}
	ts := v.(*atomic.Int64)
	for {
		prev := ts.Load()
		if now-prev < win {
			return false
		}
		if ts.CompareAndSwap(prev, now) {
			return true
		}
	}
}

func newStamp(v int64) *atomic.Int64 {
	a := new(atomic.Int64)
	a.Store(v)
	return a
}

// Prune drops identities idle for longer than maxIdle and returns how many.
func (c *Cooldown) Prune(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle).UnixNano()
	n := 0
	c.last.Range(func(k, v any) bool {
		if v.(*atomic.Int64).Load() < cutoff {
			c.last.Delete(k)
			n++
		}
		return true
	})
	return n
}

// RunPruner prunes every interval until ctx is done.
func (c *Cooldown) RunPruner(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Prune(maxIdle)
		}
	}
}
