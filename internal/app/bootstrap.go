package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"gatebot/internal/bot"
	"gatebot/internal/config"
	"gatebot/internal/digest"
	"gatebot/internal/ops"
	telegram "gatebot/internal/transport/telegram/adapter"
	logx "gatebot/pkg/logx"
)

// ---- config -> component mapping ----

func mapAdapterConfig(cfg *config.Config, r config.Resolved) telegram.Config {
	wh := cfg.Telegram.Webhook
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: r.PollTimeout,
		SendRate:    cfg.Telegram.SendRate,
		Webhook: telegram.WebhookConfig{
			Enabled:     wh.Enabled,
			Listen:      wh.Listen,
			PublicURL:   wh.PublicURL,
			SecretToken: wh.SecretToken,
		},
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapOpsConfig(cfg *config.Config, r config.Resolved) ops.Config {
	oc := cfg.Ops
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   r.OpsReadTimeout,
		WriteTimeout:  r.OpsWriteTimeout,
	}
}

func mapDigestConfig(cfg *config.Config, r config.Resolved) digest.Config {
	return digest.Config{
		Enabled:  cfg.Digest.Enabled,
		Schedule: strings.TrimSpace(cfg.Digest.Schedule),
		Timezone: strings.TrimSpace(cfg.Digest.Timezone),
		Window:   r.DigestWindow,
	}
}

func mapSettings(cfg *config.Config, r config.Resolved, username string) bot.Settings {
	return bot.Settings{
		InviteURL:    cfg.Gate.InviteURL,
		ActiveWindow: r.ActiveWindow,
		Username:     username,
	}
}

// ---- reload validation ----

// validateRuntime rejects configs the running components cannot apply.
// Field-level rules live in config.Validate.
func validateRuntime(_ context.Context, cfg *config.Config) error {
	if cfg.Digest.Enabled {
		if err := digest.New(digest.Config{}, nil, nil, logx.Nop()).Validate(cfg.Digest.Schedule); err != nil {
			return fmt.Errorf("digest.schedule: %w", err)
		}
		if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
			}
		}
	}
	if oc := cfg.Ops; oc.Enabled && oc.Token == "" && !oc.AllowInsecure && oc.Addr != "" && !loopback(oc.Addr) {
		return fmt.Errorf("ops.addr %q is not loopback; set ops.token or ops.allow_insecure", oc.Addr)
	}
	if lt := cfg.Logging.Telegram; lt.Enabled && lt.ChatID == 0 {
		return fmt.Errorf("logging.telegram.chat_id is required when enabled")
	}
	return nil
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
