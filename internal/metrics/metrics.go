// Package metrics defines gatebot's Prometheus metrics. Funnel counters are
// fed from the event bus; the broadcast and router counters are called
// directly by their owners.
package metrics

import (
	"context"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gatebot/internal/analytics"
	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	"gatebot/internal/transport"
)

const namespace = "gatebot"

type Metrics struct {
	reg *prometheus.Registry

	// FunnelEvents counts appended log entries.
	// Labels: kind ("start", "verify_ok", ...).
	FunnelEvents *prometheus.CounterVec

	// BroadcastAttempts counts dispatcher attempts.
	// Labels: outcome ("delivered", "unreachable", "transient").
	BroadcastAttempts *prometheus.CounterVec

	// UpdatesHandled counts routed updates.
	// Labels: kind ("message", "callback"), result ("ok", "error", "throttled").
	UpdatesHandled *prometheus.CounterVec

	// ShardQueueDepth is the pending updates per router worker.
	// Labels: shard.
	ShardQueueDepth *prometheus.GaugeVec

	// BusDropped mirrors eventbus.Bus.Dropped.
	BusDropped prometheus.GaugeFunc
}

// New registers every metric on a fresh registry (plus the Go and process
// collectors). bus may be nil.
func New(bus eventbus.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		FunnelEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funnel_events_total",
			Help:      "Event log entries appended, by kind.",
		}, []string{"kind"}),
		BroadcastAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_attempts_total",
			Help:      "Broadcast delivery attempts, by outcome.",
		}, []string{"outcome"}),
		UpdatesHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_handled_total",
			Help:      "Inbound updates routed to handlers.",
		}, []string{"kind", "result"}),
		ShardQueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "router_shard_queue_depth",
			Help:      "Updates waiting in each router shard.",
		}, []string{"shard"}),
	}
	if bus != nil {
		m.BusDropped = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped",
			Help:      "Bus events lost to full subscriber buffers.",
		}, func() float64 { return float64(bus.Dropped()) })
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveBroadcast is a broadcast.WithObserver callback.
func (m *Metrics) ObserveBroadcast(o transport.Outcome) {
	m.BroadcastAttempts.WithLabelValues(o.String()).Inc()
}

// ObserveUpdate records one routed update.
func (m *Metrics) ObserveUpdate(kind, result string) {
	m.UpdatesHandled.WithLabelValues(kind, result).Inc()
}

// SetShardDepth records the backlog of one router shard.
func (m *Metrics) SetShardDepth(shard, depth int) {
	m.ShardQueueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

// Consume counts funnel signals from bus until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(analytics.SignalPrefix, 256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			kind := strings.TrimPrefix(e.Type, analytics.SignalPrefix)
			if ev, ok := e.Data.(storage.Event); ok {
				kind = string(ev.Kind)
			}
			m.FunnelEvents.WithLabelValues(kind).Inc()
		}
	}
}
