// Package tgui provides the small Telegram UI helpers gatebot's handlers
// share:
//   - inline keyboard builders (rows, URL buttons, confirm pairs, pagers)
//   - callback data in the "scope:action:payload" form, with Telegram's
//     64 byte limit enforced
//   - an HTML message builder that escapes by default
package tgui
