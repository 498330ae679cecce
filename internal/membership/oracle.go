// Package membership answers "is this identity in the gating group".
package membership

import (
	"context"
	"time"

	logx "gatebot/pkg/logx"
)

// StatusSource looks up a chat member status string ("member", "left", ...).
type StatusSource interface {
	ChatMemberStatus(ctx context.Context, group string, userID int64) (string, error)
}

// Checker is what the funnel consumes.
type Checker interface {
	IsMember(ctx context.Context, identityID int64, group string) bool
}

// Oracle fails closed: any lookup error is "not a member".
type Oracle struct {
	src     StatusSource
	timeout time.Duration
	log     logx.Logger
}

func NewOracle(src StatusSource, timeout time.Duration, log logx.Logger) *Oracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Oracle{src: src, timeout: timeout, log: log.With(logx.String("comp", "membership"))}
}

func (o *Oracle) IsMember(ctx context.Context, identityID int64, group string) bool {
	if group == "" {
		o.log.Warn("membership check without group", logx.Int64("identity", identityID))
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	status, err := o.src.ChatMemberStatus(cctx, group, identityID)
	if err != nil {
		o.log.Warn("membership check failed",
			logx.Int64("identity", identityID),
			logx.String("group", group),
			logx.Err(err),
		)
		return false
	}
	return IsMemberStatus(status)
}

// IsMemberStatus reports whether status counts as joined.
func IsMemberStatus(status string) bool {
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}
