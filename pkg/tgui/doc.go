// Package tgui provides small Telegram UI helpers:
//   - Safe HTML building blocks for ParseMode="HTML"
//   - Inline keyboard builders
//   - Callback data helpers (feature:action:payload)
package tgui
