package config

import (
	"errors"
	"fmt"
	"time"

	"gatebot/internal/validate"
)

// Defaults applied by Resolve when a field is omitted.
const (
	DefaultPollTimeout       = 10 * time.Second
	DefaultCooldown          = time.Second
	DefaultRouterTimeout     = 30 * time.Second
	DefaultSessionTTL        = 15 * time.Minute
	DefaultActiveWindow      = 30 * 24 * time.Hour
	DefaultMembershipTimeout = 5 * time.Second
	DefaultDigestWindow      = 24 * time.Hour
	DefaultBroadcastRate     = 18
)

// Resolved holds parsed durations and effective defaults.
type Resolved struct {
	PollTimeout       time.Duration
	Cooldown          time.Duration
	RouterTimeout     time.Duration
	SessionTTL        time.Duration
	ActiveWindow      time.Duration
	MembershipTimeout time.Duration
	BusyTimeout       time.Duration
	OpsReadTimeout    time.Duration
	OpsWriteTimeout   time.Duration
	DigestWindow      time.Duration

	BroadcastRate float64
	Shards        int
	QueueSize     int
}

// Resolve parses the duration strings of cfg and fills defaults.
func (c *Config) Resolve() (Resolved, error) {
	var (
		r    Resolved
		errs []error
	)
	dur := func(dst *time.Duration, path, raw string, def time.Duration) {
		d, err := durationOr(path, raw, def)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = d
	}
	dur(&r.PollTimeout, "telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
	dur(&r.RouterTimeout, "router.timeout", c.Router.Timeout, DefaultRouterTimeout)
	dur(&r.SessionTTL, "wizard.session_ttl", c.Wizard.SessionTTL, DefaultSessionTTL)
	dur(&r.ActiveWindow, "stats.active_window", c.Stats.ActiveWindow, DefaultActiveWindow)
	dur(&r.MembershipTimeout, "membership.timeout", c.Membership.Timeout, DefaultMembershipTimeout)
	dur(&r.BusyTimeout, "storage.busy_timeout", c.Storage.BusyTimeout, 0)
	dur(&r.OpsReadTimeout, "ops.read_timeout", c.Ops.ReadTimeout, 0)
	dur(&r.OpsWriteTimeout, "ops.write_timeout", c.Ops.WriteTimeout, 0)
	dur(&r.DigestWindow, "digest.window", c.Digest.Window, DefaultDigestWindow)

	// An explicit "0s" disables the cooldown; only an omitted value defaults.
	if d, set, err := parseDuration("guard.cooldown", c.Guard.Cooldown); err != nil {
		errs = append(errs, err)
	} else if set {
		r.Cooldown = d
	} else {
		r.Cooldown = DefaultCooldown
	}

	r.BroadcastRate = c.Broadcast.RatePerSec
	if r.BroadcastRate <= 0 {
		r.BroadcastRate = DefaultBroadcastRate
	}
	r.Shards = c.Router.Shards
	r.QueueSize = c.Router.QueueSize
	return r, errors.Join(errs...)
}

// Validate checks field constraints and that every duration parses.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if _, err := cfg.Resolve(); err != nil {
		return fmt.Errorf("%w: %w", validate.ErrInvalid, err)
	}
	return nil
}
