// Package analytics holds the append side of the event log and the
// read-only stats computed from it.
package analytics

import (
	"context"
	"fmt"

	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	logx "gatebot/pkg/logx"
)

// SignalPrefix prefixes the bus type of every appended entry ("funnel.start").
const SignalPrefix = "funnel."

// EventLog is the single append path for events. Entries are durable when
// Append returns nil; the bus signal that follows is best-effort.
type EventLog struct {
	store *storage.Events
	bus   eventbus.Bus
	log   logx.Logger
}

func NewEventLog(store *storage.Events, bus eventbus.Bus, log logx.Logger) *EventLog {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &EventLog{store: store, bus: bus, log: log.With(logx.String("comp", "eventlog"))}
}

// Append stores one entry and then publishes it.
func (l *EventLog) Append(ctx context.Context, e storage.Event) (storage.Event, error) {
	saved, err := l.store.Append(ctx, e)
	if err != nil {
		return storage.Event{}, fmt.Errorf("append %s: %w", e.Kind, err)
	}
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: SignalPrefix + string(saved.Kind), Time: saved.At, Data: saved})
	}
	if l.log.Enabled(logx.LevelDebug) {
		l.log.Debug("event appended",
			logx.Int64("id", saved.ID),
			logx.String("kind", string(saved.Kind)),
			logx.Int64("identity", saved.IdentityID),
			logx.String("offer", saved.OfferKey),
		)
	}
	return saved, nil
}

// Record is Append for callers that only need the error.
func (l *EventLog) Record(ctx context.Context, identityID int64, kind storage.EventKind, offerKey string) error {
	_, err := l.Append(ctx, storage.Event{IdentityID: identityID, Kind: kind, OfferKey: offerKey})
	return err
}

// LastFunnelKind exposes the most recent funnel entry of an identity for offerKey.
func (l *EventLog) LastFunnelKind(ctx context.Context, identityID int64, offerKey string) (storage.EventKind, error) {
	return l.store.LastFunnelKind(ctx, identityID, offerKey)
}

// Delivered reports whether the identity ever received offerKey.
func (l *EventLog) Delivered(ctx context.Context, identityID int64, offerKey string) (bool, error) {
	return l.store.HasDelivery(ctx, identityID, offerKey)
}
