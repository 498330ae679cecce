package config

// Config is the whole bot configuration. Durations are Go duration strings
// (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Gate       GateConfig       `json:"gate"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Guard      GuardConfig      `json:"guard"`
	Router     RouterConfig     `json:"router"`
	Wizard     WizardConfig     `json:"wizard"`
	Stats      StatsConfig      `json:"stats"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Ops        OpsConfig        `json:"ops"`
	Digest     DigestConfig     `json:"digest"`
	Membership MembershipConfig `json:"membership"`
}

type TelegramConfig struct {
	Token    string  `json:"token" validate:"required"`
	AdminIDs []int64 `json:"admin_ids"`
	// PollTimeout is ignored in webhook mode.
	PollTimeout string        `json:"poll_timeout" validate:"duration"`
	Webhook     WebhookConfig `json:"webhook"`
	// SendRate bounds outbound API calls per second. Default 25.
	SendRate float64 `json:"send_rate,omitempty" validate:"gte=0"`
}

type WebhookConfig struct {
	Enabled     bool   `json:"enabled"`
	Listen      string `json:"listen" validate:"required_if=Enabled true,omitempty,hostname_port"`
	PublicURL   string `json:"public_url" validate:"required_if=Enabled true,omitempty,url"`
	SecretToken string `json:"secret_token,omitempty"`
}

// GateConfig names the group users must join. Group is a numeric chat id or
// an @username.
type GateConfig struct {
	Group     string `json:"group" validate:"required"`
	InviteURL string `json:"invite_url" validate:"required,url"`
}

type BroadcastConfig struct {
	// RatePerSec bounds outbound broadcast attempts. Default 18.
	RatePerSec float64 `json:"rate_per_sec" validate:"gte=0"`
}

type GuardConfig struct {
	// Cooldown between accepted button presses per user. Default 1s; "0s" disables.
	Cooldown string `json:"cooldown" validate:"duration"`
}

type RouterConfig struct {
	Shards    int    `json:"shards" validate:"gte=0"`
	QueueSize int    `json:"queue_size" validate:"gte=0"`
	Timeout   string `json:"timeout" validate:"duration"`
}

type WizardConfig struct {
	SessionTTL string `json:"session_ttl" validate:"duration"`
}

type StatsConfig struct {
	// ActiveWindow is the "active users" window. Default 720h (30 days).
	ActiveWindow string `json:"active_window" validate:"duration"`
}

// StorageConfig selects the database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./gatebot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite postgres"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"duration"`
	MaxConns    int    `json:"max_conns,omitempty" validate:"gte=0"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required_if=Enabled true"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id" validate:"required_if=Enabled true"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level" validate:"omitempty,oneof=trace debug info warn error"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// OpsConfig controls the side HTTP server (/healthz, /metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - A non-loopback address needs a token or allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty" validate:"duration"`
	WriteTimeout string `json:"write_timeout,omitempty" validate:"duration"`
}

// DigestConfig schedules the stats digest sent to admins.
type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule" validate:"required_if=Enabled true"`
	Timezone string `json:"timezone,omitempty"`
	Window   string `json:"window,omitempty" validate:"duration"`
}

type MembershipConfig struct {
	// Timeout bounds one membership lookup. Default 5s.
	Timeout string `json:"timeout" validate:"duration"`
}
