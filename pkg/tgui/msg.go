package tgui

import (
	"context"
	"strings"

	kit "gatebot/internal/transport"
)

// Sender is the part of the transport a Message needs.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

// Message is rendered text plus the options to send it with.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, s Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.opt())
}

// Edit replaces the text (and keyboard) of ref.
func (m Message) Edit(ctx context.Context, s Sender, ref kit.MessageRef) error {
	return s.EditText(ctx, ref, m.Text, m.opt())
}

func (m Message) opt() *kit.SendOptions {
	if m.Opt == nil {
		return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	}
	return m.Opt
}

// Builder assembles an HTML message line by line. Text passed to Line, KV
// and Title is escaped; RawLine is not.
type Builder struct {
	disablePreview bool
	kb             *Inline
	lines          []string
}

func New() *Builder {
	return &Builder{disablePreview: true}
}

func (b *Builder) DisablePreview(v bool) *Builder {
	b.disablePreview = v
	return b
}

// Inline attaches a keyboard; nil removes it.
func (b *Builder) Inline(kb *Inline) *Builder {
	b.kb = kb
	return b
}

// Title adds a bold title, optionally led by an emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	t := strings.TrimSpace(title)
	if t == "" {
		return b
	}
	line := B(t).String()
	if e := strings.TrimSpace(emoji); e != "" {
		line = Esc(e).String() + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Section(title string) *Builder {
	if t := strings.TrimSpace(title); t != "" {
		b.lines = append(b.lines, B(t).String())
	}
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, Esc(s).String())
	return b
}

func (b *Builder) RawLine(s H) *Builder {
	b.lines = append(b.lines, s.String())
	return b
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// KV adds "• <b>key:</b> value".
func (b *Builder) KV(key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	b.lines = append(b.lines, "• "+B(key+":").String()+" "+Esc(strings.TrimSpace(value)).String())
	return b
}

func (b *Builder) Bullets(items ...string) *Builder {
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			b.Line("• " + it)
		}
	}
	return b
}

func (b *Builder) Build() Message {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: b.disablePreview}
	if b.kb != nil {
		opt.ReplyMarkupAdapter = b.kb.Markup()
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
