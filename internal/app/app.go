// Package app assembles the bot: config, logging, storage, ingestion,
// ranking, scheduling and the Telegram surface.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/digest"
	"digestbot/internal/ingest"
	"digestbot/internal/ingest/channel"
	"digestbot/internal/ingest/feed"
	"digestbot/internal/ingest/web"
	"digestbot/internal/rank"
	rtsup "digestbot/internal/runtime/supervisor"
	"digestbot/internal/schedule"
	"digestbot/internal/storage"
	"digestbot/internal/task"
	kit "digestbot/internal/transport"
	telegram "digestbot/internal/transport/telegram/adapter"
	"digestbot/internal/transport/telegram/router"
	logx "digestbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter   kit.Adapter
	collector *ingest.Orchestrator
	digest    *digest.Service
	runner    *task.Runner
	sched     *schedule.Service
	router    *router.Router

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// logx.New applies immediately. Bootstrap with Telegram logging off,
	// set the target chat, then Apply the real config to avoid a warning
	// about a missing target.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Telegram.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if chatID, ok := parseGroupLog(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(mapLoggingConfig(cfg))

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	// Ingestion adapters. Channel comes and goes with config; feed and
	// page are always on.
	collector := ingest.NewOrchestrator(log.With(logx.String("comp", "ingest")))

	pageTimeout, err := config.ParseDurationOrDefault("digest.page_timeout", cfg.Digest.PageTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	collector.Register(storage.KindFeed, feed.New(feed.Config{
		Limit:   cfg.Digest.FeedLimit,
		Timeout: pageTimeout,
	}, log.With(logx.String("comp", "ingest.feed"))))
	collector.Register(storage.KindPage, web.New(web.Config{
		Timeout: pageTimeout,
	}, log.With(logx.String("comp", "ingest.web"))))

	ranker := rank.New(log.With(logx.String("comp", "rank")))

	digestSvc := digest.NewService(store, collector, ranker, ad,
		log.With(logx.String("comp", "digest")))

	misfire, err := config.ParseDurationOrDefault("digest.misfire_grace", cfg.Digest.MisfireGrace, time.Minute)
	if err != nil {
		return nil, err
	}
	runner := task.NewRunner(task.Config{
		Workers:       cfg.Digest.Workers,
		QueueSize:     cfg.Digest.QueueSize,
		MaxQueueDelay: misfire,
	}, log.With(logx.String("comp", "task")))

	sched, err := schedule.New(schedule.Config{
		Timezone:     cfg.Digest.Timezone,
		MisfireGrace: misfire,
	}, runner, digestSvc.Run, log.With(logx.String("comp", "schedule")))
	if err != nil {
		return nil, err
	}

	rt := router.New(ad, store, digestSvc, sched, runner, collector,
		log.With(logx.String("comp", "commands")))

	app := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		store:     store,
		adapter:   ad,
		collector: collector,
		digest:    digestSvc,
		runner:    runner,
		sched:     sched,
		router:    rt,
		updates:   make(chan kit.Update, 256),
	}
	app.applyChannelConfig(cfg)
	return app, nil
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.runner.Start(a.sup.Context())

	// Persisted schedules come back before triggering starts, so a restart
	// never silently forgets anyone's delivery time.
	if err := a.sched.Rebuild(a.sup.Context(), a.store); err != nil {
		return err
	}
	a.sched.Start()

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	// Config hot-reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload applies the hot-reloadable config sections: logging and the
// channel adapter. Everything else (token, storage path, workers) needs a
// restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	if chatID, ok := parseGroupLog(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
	}
	a.applyChannelConfig(cfg)
	a.log.Info("config reloaded")
}

// applyChannelConfig installs or removes the channel adapter to match cfg.
func (a *App) applyChannelConfig(cfg *config.Config) {
	if cfg.Channel == nil || !cfg.Channel.Enabled {
		a.collector.Deregister(storage.KindChannel)
		a.router.SetChannelValidator(nil)
		return
	}

	timeout, err := config.ParseDurationOrDefault("channel.timeout", cfg.Channel.Timeout, 10*time.Second)
	if err != nil {
		// Validator rejects bad reloads; this is only reachable at boot.
		a.log.Error("invalid channel timeout; channel sources disabled", logx.Err(err))
		a.collector.Deregister(storage.KindChannel)
		a.router.SetChannelValidator(nil)
		return
	}

	ch := channel.New(channel.HTTPFactory{
		BaseURL:   cfg.Channel.BaseURL,
		UserAgent: cfg.Channel.UserAgent,
		Timeout:   timeout,
	}, channel.Config{
		MessageLimit: cfg.Channel.MessageLimit,
	}, a.log.With(logx.String("comp", "ingest.channel")))

	a.collector.Register(storage.KindChannel, ch)
	a.router.SetChannelValidator(ch)
}

// Stop shuts components down in reverse dependency order, each step under
// its own slice of the deadline.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.runner != nil {
		if err := a.runner.Stop(ctx); err != nil {
			a.log.Warn("task runner stop", logx.Err(err))
		}
	}
	if a.adapter != nil {
		if err := a.adapter.Stop(ctx); err != nil {
			a.log.Warn("adapter stop", logx.Err(err))
		}
	}

	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil {
			a.log.Warn("supervisor wait", logx.Err(err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./digestbot.db"
	}
	return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
}

func parseGroupLog(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return chatID, true
}

// validateConfig gates hot reloads: a config that fails here is never
// committed or published.
func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("digest.misfire_grace", cfg.Digest.MisfireGrace); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("digest.page_timeout", cfg.Digest.PageTimeout); err != nil {
		return err
	}
	if cfg.Digest.Workers < 0 {
		return fmt.Errorf("digest.workers must be >= 0")
	}
	if cfg.Digest.QueueSize < 0 {
		return fmt.Errorf("digest.queue_size must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Digest.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("digest.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Channel != nil {
		if _, err := config.ParseDurationField("channel.timeout", cfg.Channel.Timeout); err != nil {
			return err
		}
		if cfg.Channel.MessageLimit < 0 {
			return fmt.Errorf("channel.message_limit must be >= 0")
		}
	}
	return nil
}
