// Package logx wraps zerolog behind a small Logger/Service pair.
//
// The Service owns the configured sinks (console, JSON file, Telegram) and
// can swap them at runtime via Apply(). Loggers handed out by the Service
// stay live across reconfiguration. The Telegram sink is rate limited and
// never blocks the caller.
package logx
