package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	"gatebot/internal/transport"
)

func TestConsumeCountsFunnelSignals(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	m := New(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Consume(ctx, bus)
		close(done)
	}()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: "funnel.start", Data: storage.Event{Kind: storage.EventStart}})
		return value(t, m, "gatebot_funnel_events_total", "start") > 0
	}, time.Second, 5*time.Millisecond)

	bus.Publish(eventbus.Event{Type: "other.thing"})
	cancel()
	<-done

	require.Zero(t, value(t, m, "gatebot_funnel_events_total", "verify_ok"))
}

func TestObservers(t *testing.T) {
	t.Parallel()
	m := New(nil)

	m.ObserveBroadcast(transport.Delivered)
	m.ObserveBroadcast(transport.Delivered)
	m.ObserveBroadcast(transport.RecipientUnreachable)
	m.ObserveUpdate("callback", "throttled")
	m.SetShardDepth(3, 7)

	require.Equal(t, 2.0, value(t, m, "gatebot_broadcast_attempts_total", "delivered"))
	require.Equal(t, 1.0, value(t, m, "gatebot_broadcast_attempts_total", "unreachable"))
	require.Equal(t, 1.0, value(t, m, "gatebot_updates_handled_total", "callback", "throttled"))
	require.Equal(t, 7.0, value(t, m, "gatebot_router_shard_queue_depth", "3"))
}

// value returns the sample of family name whose label values equal labels
// (in label order), or 0 when absent.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			pairs := metric.GetLabel()
			if len(pairs) != len(labels) {
				continue
			}
			for i, lp := range pairs {
				if lp.GetValue() != labels[i] {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}
