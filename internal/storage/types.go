package storage

import (
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps driver failures that mean the database cannot be
	// reached. Operations fail fast with it; nothing is retried here.
	ErrUnavailable = errors.New("persistence unavailable")
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate key")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): Path is the database file
//   - "postgres": DSN is a libpq/pgx connection string
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
	MaxConns    int           // postgres only; 0 means 10
}

// SystemIdentity is the identity used for events no user initiated.
const SystemIdentity int64 = 0

// Identity is one end user, keyed by platform user id.
type Identity struct {
	ID             int64
	ContactChannel int64
	SelectedOffer  string // "" when none
	JoinedOK       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssetMissing marks an offer whose asset was never attached.
const AssetMissing = "MISSING"

type Offer struct {
	Key       string
	Label     string
	AssetRef  string
	Active    bool
	CreatedAt time.Time
}

// HasAsset reports whether the offer carries a deliverable asset.
func (o Offer) HasAsset() bool {
	return o.AssetRef != "" && o.AssetRef != AssetMissing
}

// Deliverable reports whether the offer can be handed out right now.
func (o Offer) Deliverable() bool { return o.Active && o.HasAsset() }

type EventKind string

const (
	EventStart         EventKind = "start"
	EventVerifyOK      EventKind = "verify_ok"
	EventVerifyFail    EventKind = "verify_fail"
	EventFileSent      EventKind = "file_sent"
	EventBroadcastSent EventKind = "broadcast_sent"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventStart, EventVerifyOK, EventVerifyFail, EventFileSent, EventBroadcastSent:
		return true
	}
	return false
}

// Event is one immutable EventLog entry.
type Event struct {
	ID         int64
	IdentityID int64
	Kind       EventKind
	OfferKey   string // "" when untagged
	Target     int64  // recipient contact channel for broadcast_sent, else 0
	At         time.Time
}
