package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"

	"gatebot/internal/validate"
	logx "gatebot/pkg/logx"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  admin_ids: [42]
gate:
  group: "@my_group"
  invite_url: "https://t.me/+invite"
broadcast:
  rate_per_sec: 5
guard:
  cooldown: "0s"
storage:
  driver: sqlite
  path: ./gatebot.db
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLAndResolve(t *testing.T) {
	t.Parallel()

	cfg, err := decode("c.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	require.Equal(t, []int64{42}, cfg.Telegram.AdminIDs)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, 5.0, r.BroadcastRate)
	require.Equal(t, time.Duration(0), r.Cooldown)
	require.Equal(t, DefaultSessionTTL, r.SessionTTL)
	require.Equal(t, DefaultActiveWindow, r.ActiveWindow)
}

func TestRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()

	_, err := decode("c.json", []byte(`{"telegram":{"token":"x"},"nope":1}`))
	require.Error(t, err)
	_, err = decode("c.json", []byte(`{} {}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t"},
			Gate:     GateConfig{Group: "-100", InviteURL: "https://t.me/x"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"minimal", func(*Config) {}, true},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, false},
		{"bad invite", func(c *Config) { c.Gate.InviteURL = "not a url" }, false},
		{"bad duration", func(c *Config) { c.Guard.Cooldown = "soon" }, false},
		{"negative duration", func(c *Config) { c.Router.Timeout = "-1s" }, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, false},
		{"webhook without url", func(c *Config) { c.Telegram.Webhook.Enabled = true }, false},
		{"digest without schedule", func(c *Config) { c.Digest.Enabled = true }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, validate.ErrInvalid)
		})
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Parallel()

	cfg := &Config{Telegram: TelegramConfig{Token: "file", AdminIDs: []int64{1}}}
	err := applyEnv(cfg, env.Options{Environment: map[string]string{
		"GATEBOT_TELEGRAM_TOKEN": "from-env",
		"GATEBOT_ADMIN_IDS":      "7,8",
		"GATEBOT_STORAGE_DSN":    "postgres://x",
	}})
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Telegram.Token)
	require.Equal(t, []int64{7, 8}, cfg.Telegram.AdminIDs)
	require.Equal(t, "postgres://x", cfg.Storage.DSN)

	err = applyEnv(cfg, env.Options{Environment: map[string]string{"GATEBOT_ADMIN_IDS": "x"}})
	require.Error(t, err)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a, err := decode("c.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	b := *a
	b.Broadcast.RatePerSec = 9
	b.Storage.Path = "other.db"

	changed, _ := SummarizeConfigChange(a, &b)
	require.Equal(t, []string{"broadcast", "storage"}, changed)
	require.Equal(t, []string{"storage"}, RestartRequired(a, &b))

	changed, _ = SummarizeConfigChange(a, a)
	require.Empty(t, changed)
}

func TestManagerLoadAndSubscribe(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "gatebot.yaml", sampleYAML)
	m := NewManager(p, logx.Nop())
	cfg, err := m.Load(context.Background())
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())

	ch := m.Subscribe(1)
	next := *cfg
	m.publish(&next)
	m.publish(&next)
	require.Same(t, &next, <-ch)
	m.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "gatebot.yaml", sampleYAML)
	m := NewManager(p, logx.Nop())
	first, err := m.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("telegram: {token: ''}\n"), 0o600))
	m.reload(context.Background())
	require.Same(t, first, m.Get())
}
