package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"gatebot/internal/guard"
	logx "gatebot/pkg/logx"
)

// ErrThrottled is returned by MWCooldown for rejected requests.
var ErrThrottled = errors.New("request throttled")

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.Logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.Stack(string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("route", req.Route),
				logx.Duration("dur", d),
			}
			switch {
			case errors.Is(err, ErrThrottled):
				req.Logger.Debug("request throttled", fields...)
			case err != nil:
				req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				req.Logger.Info("request ok (slow)", fields...)
			default:
				req.Logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWCooldown rejects requests arriving within the guard's window of the
// identity's last accepted one, answering callbacks with toast.
func MWCooldown(g *guard.Cooldown, toast string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if g == nil || g.Allow(req.FromID) {
				return next(ctx, req)
			}
			if req.Callback != nil {
				_ = req.Answer(ctx, toast)
			}
			return ErrThrottled
		}
	}
}

// MWObserve reports each finished request as ok, error or throttled.
func MWObserve(fn func(kind, result string)) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			if fn != nil {
				result := "ok"
				switch {
				case errors.Is(err, ErrThrottled):
					result = "throttled"
				case err != nil:
					result = "error"
				}
				fn(string(req.Update.Kind), result)
			}
			return err
		}
	}
}
