// Package digest periodically sends a stats summary to the admins.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gatebot/internal/analytics"
	"gatebot/internal/transport"
	logx "gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

type Config struct {
	Enabled  bool
	Schedule string // 5-field cron spec or descriptor ("@daily")
	Timezone string // IANA name; "" means local
	Window   time.Duration
}

// StatsSource is the read side the digest renders.
type StatsSource interface {
	GlobalStats(ctx context.Context, window time.Duration) (analytics.GlobalStats, error)
	AllOfferStats(ctx context.Context) ([]analytics.OfferStats, error)
}

type TextSender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	admins []int64
	parser cron.Parser
	c      *cron.Cron

	stats  StatsSource
	sender TextSender
	log    logx.Logger
}

func New(cfg Config, stats StatsSource, sender TextSender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		stats:  stats,
		sender: sender,
		log:    log.With(logx.String("comp", "digest")),
	}
}

// Validate parses the schedule without starting anything.
func (s *Service) Validate(spec string) error {
	_, err := s.parser.Parse(spec)
	return err
}

// Apply swaps config and admins, restarting the schedule when running.
func (s *Service) Apply(ctx context.Context, cfg Config, admins []int64) {
	s.mu.Lock()
	running := s.c != nil
	changed := s.cfg != cfg
	s.cfg = cfg
	s.admins = append([]int64(nil), admins...)
	s.mu.Unlock()

	if running && changed {
		s.Stop()
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			s.log.Warn("digest timezone invalid, using local", logx.String("tz", tz), logx.Err(err))
		}
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runOnce(ctx) }); err != nil {
		s.log.Error("digest schedule rejected", logx.String("schedule", s.cfg.Schedule), logx.Err(err))
		return
	}
	s.c = c
	c.Start()
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", loc.String()))
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	admins := append([]int64(nil), s.admins...)
	window := s.cfg.Window
	s.mu.Unlock()

	if err := s.Send(ctx, admins, window); err != nil {
		s.log.Warn("digest failed", logx.Err(err))
	}
}

// Send renders the digest once and sends it to every admin. The first send
// error is returned after all admins were tried.
func (s *Service) Send(ctx context.Context, admins []int64, window time.Duration) error {
	if window <= 0 {
		window = 24 * time.Hour
	}
	g, err := s.stats.GlobalStats(ctx, window)
	if err != nil {
		return fmt.Errorf("digest stats: %w", err)
	}
	offers, err := s.stats.AllOfferStats(ctx)
	if err != nil {
		return fmt.Errorf("digest stats: %w", err)
	}
	text := Render(g, offers)

	var first error
	for _, id := range admins {
		_, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: id}, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Render is the digest body (HTML).
func Render(g analytics.GlobalStats, offers []analytics.OfferStats) string {
	var b strings.Builder
	b.WriteString("<b>🗓 Daily digest</b>\n\n")
	fmt.Fprintf(&b, "• Users: <b>%d</b>\n", g.TotalIdentities)
	fmt.Fprintf(&b, "• Verified: <b>%d</b> (%.1f%%)\n", g.JoinedCount, g.JoinRate()*100)
	fmt.Fprintf(&b, "• Active in last %s: <b>%d</b>\n", tgui.HumanDuration(g.Window), g.ActiveWithin)
	if len(offers) == 0 {
		return b.String()
	}
	b.WriteString("\n<b>Offers</b>\n")
	for _, o := range offers {
		fmt.Fprintf(&b, "• <code>%s</code>: %d → %d → %d (%.1f%%)\n",
			tgui.Esc(o.Key), o.Starts, o.Verifies, o.Sends, o.SendConversion()*100)
	}
	return b.String()
}
