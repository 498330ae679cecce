package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides are secrets and deployment values that may come from the
// environment instead of the file. Set values win over the file.
type envOverrides struct {
	Token         string  `env:"GATEBOT_TELEGRAM_TOKEN"`
	AdminIDs      []int64 `env:"GATEBOT_ADMIN_IDS" envSeparator:","`
	WebhookSecret string  `env:"GATEBOT_WEBHOOK_SECRET"`
	Group         string  `env:"GATEBOT_GATE_GROUP"`
	InviteURL     string  `env:"GATEBOT_GATE_INVITE_URL"`
	StorageDriver string  `env:"GATEBOT_STORAGE_DRIVER"`
	StorageDSN    string  `env:"GATEBOT_STORAGE_DSN"`
	OpsToken      string  `env:"GATEBOT_OPS_TOKEN"`
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, o.Token)
	set(&cfg.Telegram.Webhook.SecretToken, o.WebhookSecret)
	set(&cfg.Gate.Group, o.Group)
	set(&cfg.Gate.InviteURL, o.InviteURL)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.DSN, o.StorageDSN)
	set(&cfg.Ops.Token, o.OpsToken)
	if len(o.AdminIDs) > 0 {
		cfg.Telegram.AdminIDs = o.AdminIDs
	}
	return nil
}
