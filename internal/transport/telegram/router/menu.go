package router

import (
	"context"
	"strings"
	"time"

	kit "gatebot/internal/transport"
	logx "gatebot/pkg/logx"
)

// sanitizeTelegramCommand converts a name into a Telegram-safe command.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == ' ':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	return out
}

// buildMenu lists the commands visible at the given access level, in
// registration order.
func buildMenu(cmds []Command, level Access) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	seen := map[string]bool{}
	for _, c := range cmds {
		if c.Hidden || c.Access > level {
			continue
		}
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
	}
	return out
}

// UpdateMenus publishes the public menu to all private chats and the admin
// menu to each admin's chat. Adapters without menu support are skipped.
func (r *Router) UpdateMenus(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	r.mu.RLock()
	cmds := r.cmdList
	admins := append([]int64(nil), r.admins...)
	r.mu.RUnlock()

	publish := func(scope kit.CommandScope, menu []kit.BotCommand) {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, scope, menu); err != nil {
			r.log.Warn("menu update failed", logx.Int64("scope_chat", scope.ChatID), logx.Err(err))
		}
	}
	publish(kit.CommandScope{}, buildMenu(cmds, AccessEveryone))
	adminMenu := buildMenu(cmds, AccessAdmin)
	for _, id := range admins {
		publish(kit.CommandScope{ChatID: id}, adminMenu)
	}
}
