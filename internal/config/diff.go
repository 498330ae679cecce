package config

import (
	"reflect"
	"sort"
	"strings"

	logx "gatebot/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe log
// fields describing the new values. Secrets (tokens, DSN) are never logged,
// only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)
	section := func(name string, o, n any, fields ...logx.Field) {
		if reflect.DeepEqual(o, n) {
			return
		}
		changed = append(changed, name)
		attrs = append(attrs, fields...)
	}

	section("telegram", oldCfg.Telegram, newCfg.Telegram,
		logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminIDs)),
		logx.Bool("telegram.webhook", newCfg.Telegram.Webhook.Enabled),
	)
	section("gate", oldCfg.Gate, newCfg.Gate,
		logx.String("gate.group", newCfg.Gate.Group),
	)
	section("broadcast", oldCfg.Broadcast, newCfg.Broadcast,
		logx.Float64("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
	)
	section("guard", oldCfg.Guard, newCfg.Guard,
		logx.String("guard.cooldown", newCfg.Guard.Cooldown),
	)
	section("router", oldCfg.Router, newCfg.Router,
		logx.Int("router.shards", newCfg.Router.Shards),
		logx.String("router.timeout", newCfg.Router.Timeout),
	)
	section("wizard", oldCfg.Wizard, newCfg.Wizard,
		logx.String("wizard.session_ttl", newCfg.Wizard.SessionTTL),
	)
	section("stats", oldCfg.Stats, newCfg.Stats)
	section("membership", oldCfg.Membership, newCfg.Membership)
	section("storage", oldCfg.Storage, newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
		logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
	)
	section("logging", oldCfg.Logging, newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
	)
	section("ops", oldCfg.Ops, newCfg.Ops,
		logx.Bool("ops.enabled", newCfg.Ops.Enabled),
		logx.String("ops.addr", newCfg.Ops.Addr),
		logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		logx.Bool("ops.pprof", newCfg.Ops.Pprof),
	)
	section("digest", oldCfg.Digest, newCfg.Digest,
		logx.Bool("digest.enabled", newCfg.Digest.Enabled),
		logx.String("digest.schedule", newCfg.Digest.Schedule),
	)

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changes a running process cannot apply in place.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		out = append(out, "telegram.token")
	}
	if !reflect.DeepEqual(oldCfg.Telegram.Webhook, newCfg.Telegram.Webhook) {
		out = append(out, "telegram.webhook")
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram.poll_timeout")
	}
	if oldCfg.Telegram.SendRate != newCfg.Telegram.SendRate {
		out = append(out, "telegram.send_rate")
	}
	if oldCfg.Membership.Timeout != newCfg.Membership.Timeout {
		out = append(out, "membership.timeout")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	if oldCfg.Router.Shards != newCfg.Router.Shards || oldCfg.Router.QueueSize != newCfg.Router.QueueSize {
		out = append(out, "router.shards")
	}
	return out
}
