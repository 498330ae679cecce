package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitTelegramText(s, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()

	s := "abcdefg<b>x</b>"
	got := splitTelegramText(s, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("first chunk %q split inside a tag", got[0])
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost data: %q", got)
	}
}

func TestWrapSendErrClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want kit.Outcome
	}{
		{"blocked", tele.ErrBlockedByUser, kit.RecipientUnreachable},
		{"deactivated", fmt.Errorf("send: %w", tele.ErrUserIsDeactivated), kit.RecipientUnreachable},
		{"forbidden code", &tele.Error{Code: 403, Description: "Forbidden: something new"}, kit.RecipientUnreachable},
		{"blocked text", errors.New("telegram: Forbidden: bot was blocked by the user (403)"), kit.RecipientUnreachable},
		{"flood", &tele.Error{Code: 429, Description: "Too Many Requests"}, kit.TransientError},
		{"network", errors.New("dial tcp: timeout"), kit.TransientError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := kit.Classify(wrapSendErr(tc.err)); got != tc.want {
				t.Fatalf("Classify=%v want %v", got, tc.want)
			}
		})
	}
	if wrapSendErr(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
