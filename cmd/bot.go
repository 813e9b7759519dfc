package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zapvendas/zapvendas/internal/bus"
	"github.com/zapvendas/zapvendas/internal/channels"
	"github.com/zapvendas/zapvendas/internal/channels/bridge"
	"github.com/zapvendas/zapvendas/internal/channels/whatsapp"
	"github.com/zapvendas/zapvendas/internal/config"
	"github.com/zapvendas/zapvendas/internal/gateway"
	"github.com/zapvendas/zapvendas/internal/handoff"
	"github.com/zapvendas/zapvendas/internal/notify"
	"github.com/zapvendas/zapvendas/internal/persona"
	"github.com/zapvendas/zapvendas/internal/report"
	"github.com/zapvendas/zapvendas/internal/responder"
	"github.com/zapvendas/zapvendas/internal/store"
)

// runBot wires every component and blocks until SIGINT/SIGTERM.
func runBot() {
	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Admin.Number == "" {
		fmt.Println("Nenhum número de administrador configurado. Rode o assistente:")
		fmt.Println()
		fmt.Println("  ./zapvendas onboard")
		os.Exit(1)
	}

	st, err := store.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	examples, err := persona.LoadExamples(config.ExpandHome(cfg.Business.Examples.Dir))
	if err != nil {
		slog.Warn("conversation examples unavailable", "error", err)
	}
	if examples != nil && cfg.Business.Examples.Watch {
		if err := examples.Watch(); err != nil {
			slog.Warn("examples watcher unavailable", "error", err)
		}
		defer examples.Close()
	}

	p := persona.New(cfg.Business, examples)

	resp, err := responder.New(cfg.Responder, cfg.Business, p)
	if err != nil {
		slog.Error("failed to build responder", "error", err)
		os.Exit(1)
	}

	msgBus := bus.New()
	defer msgBus.Close()

	channel, err := buildChannel(cfg.Channels.WhatsApp, msgBus)
	if err != nil {
		slog.Error("failed to build channel", "error", err)
		os.Exit(1)
	}

	sender := gateway.ChannelSender{Channel: channel}
	co := handoff.New(cfg.Admin.Number, sender, st)
	reports := report.NewService(st)
	commands := handoff.NewCommands(co, reports)
	notifier := notify.New(cfg.Admin.Number, sender)

	gw := gateway.New(msgBus, channel, co, commands, resp, st, notifier,
		cfg.Admin.Number, cfg.Responder.HistoryLimit)

	sched, err := report.NewScheduler(reports, notifier, cfg.Reports.DailyAt, cfg.Reports.Weekly)
	if err != nil {
		slog.Error("invalid report schedule", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel startup is the one unrecoverable failure: without WhatsApp
	// there is nothing to serve.
	if err := channel.Start(ctx); err != nil {
		slog.Error("failed to start channel", "error", err)
		os.Exit(1)
	}

	go sched.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		if err := channel.Stop(context.Background()); err != nil {
			slog.Warn("channel stop failed", "error", err)
		}
		cancel()
	}()

	slog.Info("zapvendas starting",
		"version", Version,
		"business", cfg.Business.Name,
		"provider", resp.Name(),
		"driver", cfg.Channels.WhatsApp.Driver,
	)

	if err := gw.Run(ctx); err != nil {
		slog.Error("dispatcher stopped", "error", err)
		os.Exit(1)
	}
}

// buildChannel selects the WhatsApp transport from config.
func buildChannel(cfg config.WhatsAppConfig, msgBus *bus.MessageBus) (channels.Channel, error) {
	switch cfg.Driver {
	case "", "whatsmeow":
		return whatsapp.New(cfg, msgBus), nil
	case "bridge":
		return bridge.New(cfg, msgBus)
	default:
		return nil, fmt.Errorf("unknown whatsapp driver %q", cfg.Driver)
	}
}
