package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
	logx "gatebot/pkg/logx"
)

// ChatMemberStatus looks up userID in group. group is a numeric chat id
// ("-100123...") or a public @username.
func (a *Adapter) ChatMemberStatus(ctx context.Context, group string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := a.resolveGroup(group)
	if err != nil {
		return "", err
	}
	member, err := a.bot.ChatMemberOf(chat, &tele.User{ID: userID})
	if err != nil {
		return "", err
	}
	return string(member.Role), nil
}

func (a *Adapter) resolveGroup(group string) (*tele.Chat, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, fmt.Errorf("group reference is empty")
	}
	if id, err := strconv.ParseInt(group, 10, 64); err == nil {
		return &tele.Chat{ID: id}, nil
	}

	a.groupMu.Lock()
	defer a.groupMu.Unlock()
	if c, ok := a.groups[group]; ok {
		return c, nil
	}
	name := group
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	c, err := a.bot.ChatByUsername(name)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", name, err)
	}
	a.groups[group] = c
	return c, nil
}

// UpdateMenuCommands sets the command menu for scope (setMyCommands).
// It only calls Telegram when the list for that scope changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, scope kit.CommandScope, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if prev, ok := a.menuHash[scope.ChatID]; ok && prev == sum {
		return nil
	}

	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	type scopeJSON struct {
		Type   string `json:"type"`
		ChatID int64  `json:"chat_id,omitempty"`
	}
	payload := struct {
		Commands []cmd     `json:"commands"`
		Scope    scopeJSON `json:"scope"`
	}{Commands: make([]cmd, 0, len(cmds)), Scope: scopeJSON{Type: "all_private_chats"}}
	if scope.ChatID != 0 {
		payload.Scope = scopeJSON{Type: "chat", ChatID: scope.ChatID}
	}

	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash[scope.ChatID] = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)), logx.String("scope", payload.Scope.Type), logx.Int64("chat_id", scope.ChatID))
	return nil
}
