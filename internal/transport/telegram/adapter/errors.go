package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "gatebot/internal/transport"
)

var unreachableErrs = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
	tele.ErrChatNotFound,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
}

// wrapSendErr marks errors that mean the recipient is gone with
// kit.ErrUnreachable so callers can classify without importing telebot.
func wrapSendErr(err error) error {
	if err == nil || !isUnreachable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", kit.ErrUnreachable, err)
}

func isUnreachable(err error) bool {
	for _, target := range unreachableErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "bot was blocked by the user") ||
		strings.Contains(msg, "user is deactivated")
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
