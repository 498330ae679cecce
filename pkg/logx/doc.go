// Package logx configures gatebot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - file output is one JSON object per line
//   - an optional Telegram sink forwards warnings to a log chat, rate limited
package logx
