package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"theta_watcher/internal/api"
	"theta_watcher/internal/config"
	"theta_watcher/internal/logger"
	"theta_watcher/internal/market"
	"theta_watcher/internal/market/alpaca"
	"theta_watcher/internal/metrics"
	"theta_watcher/internal/storage"
	"theta_watcher/internal/telegram"
	"theta_watcher/internal/watcher"
)

const (
	envFile     = ".env"
	versionFile = "version.latest"
	streamAge   = 30 * time.Second
)

func main() {
	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	if err := logger.Setup(logger.Options{
		Level:      cfg.App.LogLevel,
		Env:        cfg.App.Env,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, using stdout only: %v\n", err)
	}
	defer func() { _ = logger.Sync() }()
	config.LogEnvFile(envFile)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := market.NewSimulated(time.Now().UnixNano())
	var source market.DataSource = sim
	var broker market.Broker
	if cfg.Alpaca.KeyID != "" && cfg.Alpaca.SecretKey != "" {
		provider := alpaca.NewProvider(alpaca.Options{
			KeyID:     cfg.Alpaca.KeyID,
			SecretKey: cfg.Alpaca.SecretKey,
			BaseURL:   cfg.Alpaca.BaseURL,
			Timeout:   cfg.Timeout(),
		})
		broker = provider
		if cfg.Engine.UseLive {
			var live market.DataSource = market.NewLimited(provider, cfg.Engine.MarketRate)
			if cfg.Alpaca.LiveStream {
				cache := market.NewStreamCache(live, market.NewAlpacaTradeStream(cfg.Alpaca.KeyID, cfg.Alpaca.SecretKey), streamAge)
				if err := cache.Start(ctx, cfg.Engine.Watchlist); err != nil {
					logger.Warnf("trade stream unavailable, using REST quotes: %v", err)
				} else {
					live = cache
				}
			}
			source = market.Fallback{Live: live, Sim: sim}
		}
	}

	settings, err := config.LoadSettings(cfg.Paper.SettingsPath, cfg.DefaultSettings())
	if err != nil {
		logger.Warnf("settings: %v; using defaults", err)
	}

	var bot *telegram.Bot
	var notifier watcher.Notifier
	if cfg.Telegram.Enabled() {
		bot, err = telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Timeout())
		if err != nil {
			logger.Errorf("telegram disabled: %v", err)
		} else {
			notifier = bot
		}
	}

	w, err := watcher.New(watcher.Options{
		Config:   cfg,
		Settings: settings,
		Store:    storage.New(cfg.Storage.StatePath, cfg.Storage.BackupDir),
		Source:   source,
		Sim:      sim,
		Broker:   broker,
		Notifier: notifier,
	})
	if err != nil {
		logger.Fatalf("watcher: %v", err)
	}

	sw, err := config.NewSettingsWatcher(cfg.Paper.SettingsPath, cfg.DefaultSettings(), w.ApplySettings)
	if err != nil {
		logger.Warnf("settings hot reload disabled: %v", err)
	} else if err := sw.Start(ctx); err != nil {
		logger.Warnf("settings hot reload disabled: %v", err)
	} else {
		defer func() { _ = sw.Stop() }()
	}

	if bot != nil {
		bot.Start(ctx)
		go bot.Listen(ctx, w.HandleCommand)
	}

	if cfg.HTTP.Addr != "" {
		api.New(cfg.HTTP.Addr, cfg.App.LogLevel, w).Start(ctx)
	}

	logger.Infof("Theta Watcher %s initialized (%s)", readVersion(), cfg.Mode())
	logger.Infof("Polling every %s, IVR every %s", cfg.PollInterval(), cfg.IVRPollInterval())
	if bot != nil {
		bot.Notify("🟢 Theta Watcher online (" + cfg.Mode() + ")")
	}

	poll := func() {
		if err := w.Poll(ctx); err != nil {
			logger.Errorf("poll: %v", err)
		}
	}
	poll()
	logger.Infof("%s", w.PollIVR(ctx))

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()
	ivrTicker := time.NewTicker(cfg.IVRPollInterval())
	defer ivrTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("shutting down")
			w.Save()
			return
		case <-ticker.C:
			poll()
		case <-ivrTicker.C:
			logger.Debugf("%s", w.PollIVR(ctx))
		}
	}
}

func readVersion() string {
	version, err := os.ReadFile(versionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return strings.TrimSpace(string(version))
}
