package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"digestbot/internal/storage"
	"digestbot/internal/task"
	kit "digestbot/internal/transport"
	logx "digestbot/pkg/logx"
	"digestbot/pkg/tgui"
)

func (r *Router) cmdStart(ctx context.Context, req *Request) error {
	if err := r.register(ctx, req); err != nil {
		return err
	}
	text := tgui.JoinH("\n",
		tgui.B("Welcome!"),
		tgui.Esc("I collect content from your sources, pick what matches your interests and deliver a daily digest."),
		"",
		tgui.Esc("Add a source with /addsource, describe your interests with /addinterest, then set a delivery time with /schedule."),
	)
	r.replyMarkup(ctx, req, text.String(), mainMenu())
	return nil
}

func (r *Router) cmdHelp(ctx context.Context, req *Request) error {
	r.reply(ctx, req, helpText())
	return nil
}

func (r *Router) cmdMenu(ctx context.Context, req *Request) error {
	r.replyMarkup(ctx, req, tgui.B("What would you like to do?").String(), mainMenu())
	return nil
}

// cmdDigest runs a digest on demand. The run goes through the task runner
// but without the singleton key, so a manual request is never refused just
// because the daily run is in flight.
func (r *Router) cmdDigest(ctx context.Context, req *Request) error {
	if err := r.register(ctx, req); err != nil {
		return err
	}

	recipientID := req.FromID
	chat := req.Chat
	job := task.Job{
		Name: fmt.Sprintf("digest-manual-%d", recipientID),
		Run: func(jctx context.Context) error {
			if err := r.digest.Run(jctx, recipientID); err != nil {
				_, _ = r.adapter.SendText(jctx, chat,
					tgui.Esc("Could not build your digest right now. Please try again later.").String(),
					&kit.SendOptions{ParseMode: "HTML"})
				return err
			}
			return nil
		},
	}
	if err := r.runner.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue manual digest: %w", err)
	}
	r.reply(ctx, req, tgui.Esc("Building your digest, this may take a minute...").String())
	return nil
}

func (r *Router) cmdSources(ctx context.Context, req *Request) error {
	sources, err := r.store.ListSources(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		r.reply(ctx, req, tgui.JoinH("\n",
			tgui.Esc("You have no sources yet."),
			tgui.Esc("Add one: /addsource <feed|page|channel> <location>"),
		).String())
		return nil
	}

	parts := make([]tgui.H, 0, len(sources)+2)
	parts = append(parts, tgui.B("Your sources"))
	for _, s := range sources {
		parts = append(parts, tgui.JoinH(" ",
			tgui.Code(strconv.FormatInt(s.ID, 10)),
			tgui.Esc("["+s.Kind+"]"),
			tgui.Esc(s.Location),
		))
	}
	parts = append(parts, "", tgui.Esc("Remove one with /delsource <id>"))
	r.reply(ctx, req, tgui.JoinH("\n", parts...).String())
	return nil
}

func (r *Router) cmdAddSource(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		r.reply(ctx, req, tgui.Esc("Usage: /addsource <feed|page|channel> <location>").String())
		return nil
	}
	kind := strings.ToLower(req.Args[0])
	location := strings.TrimSpace(strings.Join(req.Args[1:], " "))

	switch kind {
	case storage.KindFeed, storage.KindPage, storage.KindChannel:
	default:
		r.reply(ctx, req, tgui.Esc("Unknown source kind. Use feed, page or channel.").String())
		return nil
	}
	if !r.kinds.Supports(kind) {
		r.reply(ctx, req, tgui.Esc("This source kind is currently disabled.").String())
		return nil
	}

	// The location must be readable before it is registered; a dead source
	// would silently hollow out every future digest.
	switch kind {
	case storage.KindChannel:
		v := r.channelValidator()
		if v == nil {
			r.reply(ctx, req, tgui.Esc("Channel sources are currently disabled.").String())
			return nil
		}
		if !v.Validate(ctx, location) {
			r.reply(ctx, req, tgui.Esc("I can't read that channel. Make sure it is public and the handle is correct.").String())
			return nil
		}
	default:
		u, err := url.Parse(location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			r.reply(ctx, req, tgui.Esc("That doesn't look like a valid http(s) URL.").String())
			return nil
		}
	}

	if err := r.register(ctx, req); err != nil {
		return err
	}
	id, err := r.store.AddSource(ctx, storage.Source{
		OwnerID:  req.FromID,
		Kind:     kind,
		Location: location,
	})
	if err != nil {
		return err
	}

	r.log.Info("source added",
		logx.Int64("recipient", req.FromID),
		logx.String("kind", kind),
		logx.Int64("source", id),
	)
	r.reply(ctx, req, tgui.JoinH(" ",
		tgui.Esc("Source added:"), tgui.Code(strconv.FormatInt(id, 10)),
	).String())
	return nil
}

func (r *Router) cmdDelSource(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		r.reply(ctx, req, tgui.Esc("Usage: /delsource <id>").String())
		return nil
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		r.reply(ctx, req, tgui.Esc("The id must be a number; see /sources.").String())
		return nil
	}
	if err := r.store.DeleteSource(ctx, id, req.FromID); err != nil {
		return err
	}
	r.reply(ctx, req, tgui.Esc("Source removed.").String())
	return nil
}

func (r *Router) cmdInterests(ctx context.Context, req *Request) error {
	interests, err := r.store.ListInterests(ctx, req.FromID)
	if err != nil {
		return err
	}
	if len(interests) == 0 {
		r.reply(ctx, req, tgui.JoinH("\n",
			tgui.Esc("You have no interests yet, so digests will show the newest items unranked."),
			tgui.Esc("Add one: /addinterest <topic>"),
		).String())
		return nil
	}

	parts := make([]tgui.H, 0, len(interests)+2)
	parts = append(parts, tgui.B("Your interests"))
	for _, in := range interests {
		parts = append(parts, tgui.JoinH(" ",
			tgui.Code(strconv.FormatInt(in.ID, 10)),
			tgui.Esc(in.Text),
		))
	}
	parts = append(parts, "", tgui.Esc("Remove one with /delinterest <id>"))
	r.reply(ctx, req, tgui.JoinH("\n", parts...).String())
	return nil
}

func (r *Router) cmdAddInterest(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		r.reply(ctx, req, tgui.Esc("Usage: /addinterest <topic>").String())
		return nil
	}
	if err := r.register(ctx, req); err != nil {
		return err
	}

	id, err := r.store.AddInterest(ctx, storage.Interest{OwnerID: req.FromID, Text: text})
	if errors.Is(err, storage.ErrInterestTooLong) {
		r.reply(ctx, req, tgui.Esc(fmt.Sprintf(
			"That's too long; interests are capped at %d characters.", storage.MaxInterestLen)).String())
		return nil
	}
	if err != nil {
		return err
	}

	r.reply(ctx, req, tgui.JoinH(" ",
		tgui.Esc("Interest added:"), tgui.Code(strconv.FormatInt(id, 10)),
	).String())
	return nil
}

func (r *Router) cmdDelInterest(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		r.reply(ctx, req, tgui.Esc("Usage: /delinterest <id>").String())
		return nil
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		r.reply(ctx, req, tgui.Esc("The id must be a number; see /interests.").String())
		return nil
	}
	if err := r.store.DeleteInterest(ctx, id, req.FromID); err != nil {
		return err
	}
	r.reply(ctx, req, tgui.Esc("Interest removed.").String())
	return nil
}

// cmdSchedule handles "/schedule", "/schedule HH:MM" and "/schedule off",
// plus the schedule:* callbacks.
func (r *Router) cmdSchedule(ctx context.Context, req *Request) error {
	arg := strings.TrimSpace(strings.Join(req.Args, " "))
	if req.Payload != "" {
		arg = req.Payload
	}

	switch strings.ToLower(arg) {
	case "":
		return r.showSchedule(ctx, req)
	case "off":
		return r.clearSchedule(ctx, req)
	default:
		return r.setSchedule(ctx, req, arg)
	}
}

func (r *Router) showSchedule(ctx context.Context, req *Request) error {
	var status tgui.H
	if tod, ok := r.sched.Scheduled(req.FromID); ok {
		status = tgui.JoinH(" ", tgui.Esc("Your daily digest is scheduled at"), tgui.B(tod.String()))
	} else {
		status = tgui.Esc("You have no scheduled digest.")
	}
	text := tgui.JoinH("\n",
		status,
		tgui.Esc("Pick a preset below, or use /schedule HH:MM. /schedule off disables it."),
	)
	r.replyMarkup(ctx, req, text.String(), scheduleMenu())
	return nil
}

func (r *Router) setSchedule(ctx context.Context, req *Request, spec string) error {
	if err := r.register(ctx, req); err != nil {
		return err
	}
	tod, err := r.sched.Set(req.FromID, spec)
	if err != nil {
		r.reply(ctx, req, tgui.Esc("I need a time like 08:30 (24-hour clock).").String())
		return nil
	}
	if err := r.store.SetSchedule(ctx, req.FromID, tod.String()); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	r.reply(ctx, req, tgui.JoinH(" ",
		tgui.Esc("Daily digest scheduled at"), tgui.B(tod.String()),
	).String())
	return nil
}

func (r *Router) clearSchedule(ctx context.Context, req *Request) error {
	r.sched.Clear(req.FromID)
	if err := r.store.SetSchedule(ctx, req.FromID, ""); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	r.reply(ctx, req, tgui.Esc("Scheduled digest disabled.").String())
	return nil
}

// register upserts the recipient row; chat id may change when the user
// restarts the bot from a different chat.
func (r *Router) register(ctx context.Context, req *Request) error {
	return r.store.UpsertRecipient(ctx, storage.Recipient{
		ID:     req.FromID,
		ChatID: req.Chat.ChatID,
	})
}
