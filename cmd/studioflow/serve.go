package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/metrics"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
	"github.com/mtzanidakis/studioflow/internal/notify"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/provider"
	"github.com/mtzanidakis/studioflow/internal/registry"
	"github.com/mtzanidakis/studioflow/internal/router"
	"github.com/mtzanidakis/studioflow/internal/scheduler"
	"github.com/mtzanidakis/studioflow/internal/store"
	"github.com/mtzanidakis/studioflow/internal/telegram"
	"github.com/mtzanidakis/studioflow/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator with every enabled surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log)

	validation := cfg.Validate()
	for _, w := range validation.Warnings {
		slog.Warn("config warning", "warning", w)
	}
	if !validation.Valid {
		for _, e := range validation.Errors {
			slog.Error("config error", "error", e)
		}
		return fmt.Errorf("invalid configuration: %d errors", len(validation.Errors))
	}

	slog.Info("starting studioflow", "version", version, "integrations", validation.Integrations)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: postgres → sqlite → memory
	gw, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer gw.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(promReg)
	rec.SetStorageTier(gw.Tier())

	client := provider.NewFromConfig(cfg.AI, provider.WithObserver(rec))
	slog.Info("provider ready", "model", client.Model(), "fallback", cfg.AI.FallbackModel, "configured", client.Configured())

	mem, err := agent.NewMemory(cfg.Memory)
	if err != nil {
		return fmt.Errorf("init agent memory: %w", err)
	}
	defer mem.Close()

	reg, err := registry.New(agent.Catalog(client, mem)...)
	if err != nil {
		return fmt.Errorf("init agent registry: %w", err)
	}
	slog.Info("agents registered", "count", reg.Len())

	rtr := router.New(reg, client, cfg.Router)

	// Notifiers
	var notifiers notify.Multi
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlack(cfg.Slack))
	}
	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telegram.NewBot(cfg.Telegram, rtr)
		if err != nil {
			return fmt.Errorf("init telegram bot: %w", err)
		}
		if cfg.Telegram.NotifyChatID != 0 {
			notifiers = append(notifiers, bot.Notifier())
		}
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithTimeout(cfg.Orchestrator.Timeout),
		orchestrator.WithRecorder(rec),
	}
	if len(notifiers) > 0 {
		orchOpts = append(orchOpts, orchestrator.WithNotifier(notifiers, cfg.Orchestrator.NotifySuccess))
	}

	// Embedded NATS
	var events *natsbus.Client
	if cfg.NATS.Enabled {
		bus, err := natsbus.New(cfg.NATS)
		if err != nil {
			return fmt.Errorf("init nats: %w", err)
		}
		defer bus.Close()
		slog.Info("nats started", "port", bus.Port())

		events, err = natsbus.NewClient(bus)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer events.Close()
		orchOpts = append(orchOpts, orchestrator.WithPublisher(events))
	}

	orch := orchestrator.New(reg, client, gw, orchOpts...)
	defer orch.Wait()

	if events != nil {
		if err := orch.ServeNATS(ctx, events); err != nil {
			return fmt.Errorf("serve nats: %w", err)
		}
	}

	// Scheduler
	var schedOpts []scheduler.Option
	if events != nil {
		schedOpts = append(schedOpts, scheduler.WithPublisher(events))
	}
	sched := scheduler.New(cfg.Schedules, orch, cfg.Scheduler, schedOpts...)
	go sched.Start(ctx)

	// Telegram bot
	if bot != nil {
		bot.SetInvoker(orch)
		go func() {
			if err := bot.Start(ctx); err != nil {
				slog.Error("telegram bot error", "error", err)
			}
		}()
		slog.Info("telegram bot started")
	} else {
		slog.Warn("telegram token not set, bot disabled")
	}

	// Web API
	if cfg.Web.Enabled {
		webOpts := []web.Option{
			web.WithScheduler(sched),
			web.WithValidation(validation),
			web.WithGatherer(promReg),
			web.WithVersion(version),
		}
		if events != nil {
			webOpts = append(webOpts, web.WithEvents(events))
		}
		srv := web.NewServer(orch, gw, cfg.Web, webOpts...)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown, reloading on SIGHUP
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			cfg = reload(cfg, rtr, sched, events)
			continue
		}
		slog.Info("shutting down", "signal", sig)
		break
	}
	cancel()
	if bot != nil {
		bot.Stop()
	}
	return nil
}

// reload applies the reloadable parts of a changed config file and returns
// the config now in effect.
func reload(current *config.Config, rtr *router.Router, sched *scheduler.Scheduler, events *natsbus.Client) *config.Config {
	next, err := config.Load()
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return current
	}
	if v := next.Validate(); !v.Valid {
		slog.Error("config reload rejected", "errors", v.Errors)
		return current
	}

	d := config.Diff(current, next)
	for _, section := range d.NonReloadable {
		slog.Warn("config change requires restart", "section", section)
	}
	if !d.HasChanges() {
		slog.Info("config reloaded, nothing to apply")
		return current
	}

	if d.LogChanged {
		logLevel.Set(parseLevel(d.NewLog.Level))
	}
	if d.RouterChanged {
		rtr.Update(d.NewRouter)
	}
	if d.SchedulerChanged || len(d.SchedulesAdded)+len(d.SchedulesRemoved)+len(d.SchedulesChanged) > 0 {
		sched.Update(next.Schedules, next.Scheduler)
	}

	slog.Info("config reloaded",
		"schedules_added", d.SchedulesAdded,
		"schedules_removed", d.SchedulesRemoved,
		"schedules_changed", d.SchedulesChanged,
		"router_changed", d.RouterChanged,
		"log_changed", d.LogChanged)

	if events != nil {
		_ = events.PublishJSON(natsbus.TopicEventsConfig, map[string]any{
			"schedules_added":   d.SchedulesAdded,
			"schedules_removed": d.SchedulesRemoved,
			"schedules_changed": d.SchedulesChanged,
			"non_reloadable":    d.NonReloadable,
		})
	}

	// Non-reloadable sections keep their running values.
	applied := *next
	applied.AI = current.AI
	applied.Store = current.Store
	applied.Orchestrator = current.Orchestrator
	applied.Telegram = current.Telegram
	applied.Slack = current.Slack
	applied.Web = current.Web
	applied.NATS = current.NATS
	return &applied
}
