package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Button is one inline button.
type Button = tele.Btn

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row. Empty rows are skipped.
func (i *Inline) Row(btn ...Button) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Rows reports how many rows were added.
func (i *Inline) Rows() int { return len(i.rows) }

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback data.
func Btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

// URLBtn creates a URL button.
func URLBtn(text, url string) Button {
	return Button{Text: text, URL: url}
}
