// Package router dispatches incoming Telegram updates to bot commands.
//
// Commands are a fixed set (this bot has no plugin surface); updates are
// handled on a small worker pool so one slow handler cannot stall the
// queue, and every handler runs under a bounded timeout.
package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "digestbot/internal/runtime/supervisor"
	"digestbot/internal/schedule"
	"digestbot/internal/storage"
	"digestbot/internal/task"
	kit "digestbot/internal/transport"
	logx "digestbot/pkg/logx"
	"digestbot/pkg/tgui"
)

const (
	handlerTimeout = 30 * time.Second
	dispatchQueue  = 256
	workers        = 4
)

// Scheduler is the trigger-management slice of the schedule service.
type Scheduler interface {
	Set(recipientID int64, spec string) (schedule.TimeOfDay, error)
	Clear(recipientID int64)
	Scheduled(recipientID int64) (schedule.TimeOfDay, bool)
}

// DigestRunner executes one digest run.
type DigestRunner interface {
	Run(ctx context.Context, recipientID int64) error
}

// Enqueuer submits background jobs; *task.Runner satisfies it.
type Enqueuer interface {
	Enqueue(job task.Job) error
}

// SourceChecker answers whether a source kind is usable and whether a
// channel location is worth registering.
type SourceChecker interface {
	Supports(kind string) bool
}

// ChannelValidator probes a channel handle before registration. Nil when
// the channel adapter is disabled.
type ChannelValidator interface {
	Validate(ctx context.Context, location string) bool
}

type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	// Callback fields; empty for message updates.
	CallbackID string
	Payload    string
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Router struct {
	adapter kit.Adapter
	store   storage.Store
	digest  DigestRunner
	sched   Scheduler
	runner  Enqueuer
	kinds   SourceChecker
	log     logx.Logger

	mu        sync.RWMutex
	validator ChannelValidator

	commands  map[string]HandlerFunc
	callbacks map[string]HandlerFunc

	jobs chan func()
}

func New(adapter kit.Adapter, store storage.Store, digest DigestRunner, sched Scheduler, runner Enqueuer, kinds SourceChecker, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		adapter: adapter,
		store:   store,
		digest:  digest,
		sched:   sched,
		runner:  runner,
		kinds:   kinds,
		log:     log,
		jobs:    make(chan func(), dispatchQueue),
	}
	r.commands = map[string]HandlerFunc{
		"start":       r.cmdStart,
		"help":        r.cmdHelp,
		"menu":        r.cmdMenu,
		"digest":      r.cmdDigest,
		"sources":     r.cmdSources,
		"addsource":   r.cmdAddSource,
		"delsource":   r.cmdDelSource,
		"interests":   r.cmdInterests,
		"addinterest": r.cmdAddInterest,
		"delinterest": r.cmdDelInterest,
		"schedule":    r.cmdSchedule,
	}
	r.callbacks = map[string]HandlerFunc{
		tgui.Data("digest", "run", ""):     r.cmdDigest,
		tgui.Data("menu", "help", ""):      r.cmdHelp,
		tgui.Data("menu", "sources", ""):   r.cmdSources,
		tgui.Data("menu", "interests", ""): r.cmdInterests,
		tgui.Data("menu", "schedule", ""):  r.cmdSchedule,
		tgui.Data("schedule", "set", ""):   r.cmdSchedule,
		tgui.Data("schedule", "off", ""):   r.clearSchedule,
	}
	return r
}

// SetChannelValidator swaps the channel probe; nil disables channel
// registration. Safe to call during hot-reload.
func (r *Router) SetChannelValidator(v ChannelValidator) {
	r.mu.Lock()
	r.validator = v
	r.mu.Unlock()
}

func (r *Router) channelValidator() ChannelValidator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validator
}

// DispatchLoop consumes updates until ctx is done. It blocks.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started",
		logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.Go0("command.worker."+strconv.Itoa(idx), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		})
	}

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go0("telegram.menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, menuCommands()); err != nil {
				r.log.Warn("menu command update failed", logx.Err(err))
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			_ = sup.WaitTimeout(3 * time.Second)
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				sup.Cancel()
				_ = sup.WaitTimeout(3 * time.Second)
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job",
				logx.Int("worker", worker),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	job()
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		req, handler := r.matchMessage(up.Message)
		if handler == nil {
			return
		}
		r.enqueue(ctx, req, handler)

	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		req, handler := r.matchCallback(up.Callback)
		if handler == nil {
			// Unknown button; ack so the client spinner stops.
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "")
			return
		}
		r.enqueue(ctx, req, handler)
	}
}

func (r *Router) matchMessage(m *kit.Message) (*Request, HandlerFunc) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return nil, nil
	}
	name := strings.ToLower(fields[0])
	// "/digest@MyBot" in group chats.
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	handler, ok := r.commands[name]
	if !ok {
		return nil, nil
	}
	return &Request{
		Chat:    kit.ChatTarget{ChatID: m.ChatID},
		FromID:  m.FromID,
		Command: name,
		Args:    fields[1:],
	}, handler
}

func (r *Router) matchCallback(cb *kit.Callback) (*Request, HandlerFunc) {
	feature, action, payload := tgui.SplitData(cb.Data)
	handler, ok := r.callbacks[tgui.Data(feature, action, "")]
	if !ok {
		return nil, nil
	}
	return &Request{
		Chat:       kit.ChatTarget{ChatID: cb.ChatID},
		FromID:     cb.FromID,
		Command:    feature + ":" + action,
		CallbackID: cb.ID,
		Payload:    payload,
	}, handler
}

func (r *Router) enqueue(ctx context.Context, req *Request, handler HandlerFunc) {
	job := func() {
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		defer cancel()

		if req.CallbackID != "" {
			_ = r.adapter.AnswerCallback(hctx, req.CallbackID, "")
		}
		if err := handler(hctx, req); err != nil {
			r.log.Warn("command failed",
				logx.String("command", req.Command),
				logx.Int64("from", req.FromID),
				logx.Err(err),
			)
			r.reply(hctx, req, tgui.Esc("Something went wrong. Please try again.").String())
		}
	}
	select {
	case r.jobs <- job:
	default:
		r.log.Warn("command queue full; dropping update",
			logx.String("command", req.Command), logx.Int64("from", req.FromID))
	}
}

func (r *Router) reply(ctx context.Context, req *Request, html string) {
	_, err := r.adapter.SendText(ctx, req.Chat, html, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", req.Chat.ChatID), logx.Err(err))
	}
}

func (r *Router) replyMarkup(ctx context.Context, req *Request, html string, markup any) {
	_, err := r.adapter.SendText(ctx, req.Chat, html, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup,
	})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", req.Chat.ChatID), logx.Err(err))
	}
}
