package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/larkbridge/internal/bus"
	"github.com/nextlevelbuilder/larkbridge/internal/config"
	"github.com/nextlevelbuilder/larkbridge/internal/dedup"
	"github.com/nextlevelbuilder/larkbridge/internal/feishu"
	"github.com/nextlevelbuilder/larkbridge/internal/gateway"
	"github.com/nextlevelbuilder/larkbridge/internal/imagegen"
	"github.com/nextlevelbuilder/larkbridge/internal/linkparse"
	"github.com/nextlevelbuilder/larkbridge/internal/orchestrator"
	"github.com/nextlevelbuilder/larkbridge/internal/stt"
	"github.com/nextlevelbuilder/larkbridge/internal/tracing"
)

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Protocol: cfg.Tracing.Protocol,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	msgBus := bus.New(256)

	channel, err := feishu.NewChannel(cfg.Feishu, msgBus)
	if err != nil {
		slog.Error("failed to create feishu channel", "error", err)
		os.Exit(1)
	}

	gw := gateway.New(gateway.Config{
		URL:       cfg.Gateway.URL,
		Token:     cfg.Gateway.Token,
		Locale:    cfg.Gateway.Locale,
		UserAgent: "larkbridge/" + Version,
	}, slog.Default())

	links := linkparse.New(linkparse.Config{
		Command:  cfg.LinkParse.Command,
		MaxChars: cfg.LinkParse.MaxChars,
		Timeout:  time.Duration(cfg.LinkParse.TimeoutSec) * time.Second,
	}, slog.Default())

	orch := orchestrator.New(
		cfg,
		dedup.NewLedger(),
		channel,
		gw,
		links,
		imagegen.New(imagegen.Config{
			Endpoint: cfg.ImageGen.Endpoint,
			APIKey:   cfg.ImageGen.APIKey,
			Model:    cfg.ImageGen.Model,
		}),
		stt.New(stt.Config{
			Endpoint: cfg.STT.Endpoint,
			APIKey:   cfg.STT.APIKey,
			Model:    cfg.STT.Model,
		}),
		channel.BotOpenID,
	)

	if err := channel.Start(ctx); err != nil {
		slog.Error("failed to start feishu channel", "error", err)
		os.Exit(1)
	}

	if err := config.Watch(ctx, cfgPath, orch.UpdateConfig); err != nil {
		slog.Warn("config watch unavailable, dynamic reload disabled", "error", err)
	}

	slog.Info("larkbridge started",
		"version", Version,
		"gateway", cfg.Gateway.URL,
		"mode", cfg.Feishu.ConnectionMode,
	)

	// Blocks until the signal context is cancelled.
	orch.Run(ctx, msgBus)

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := channel.Stop(shutdownCtx); err != nil {
		slog.Warn("channel shutdown error", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "error", err)
		}
	}
}
