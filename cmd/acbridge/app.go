package main

import (
	"acbridge/config"
	"acbridge/internal/auth"
	"acbridge/internal/clock"
	"acbridge/internal/control"
	"acbridge/internal/devices"
	"acbridge/internal/drivers/electrolux"
	"acbridge/internal/logging"
	"acbridge/internal/notify"
	"acbridge/internal/storage"
	"acbridge/internal/storage/envfile"
	"fmt"
	"log/slog"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Storage
	manager  *auth.Manager
	registry *devices.Registry
	client   *electrolux.Client
	service  control.ApplianceService
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(storage.Options{
		Backend:  cfg.Tokens.Store,
		FilePath: cfg.Tokens.FilePath,
		DBPath:   cfg.Tokens.DBPath,
	})
	if err != nil {
		return nil, err
	}

	endpoint := electrolux.NewTokenEndpoint(cfg.Vendor.BaseURL, cfg.Vendor.RequestTimeout)
	manager := auth.NewManager(store, endpoint, clock.Real{}, auth.Config{
		RefreshBuffer:       cfg.Tokens.RefreshBuffer,
		RefreshWait:         cfg.Tokens.RefreshWait,
		InitialAccessToken:  cfg.Vendor.AccessToken,
		InitialRefreshToken: cfg.Vendor.RefreshToken,
	}, logger)

	if cfg.Tokens.SyncEnv {
		manager.Subscribe(envfile.NewSyncer(cfg.Tokens.EnvFile, logger))
	}

	if cfg.Notify.Enabled() {
		notifier, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			// Alerts are optional; the bridge works without them.
			logger.Warn("Telegram alerts disabled", "error", err)
		} else {
			manager.SubscribeFailures(notifier)
		}
	}

	registry, err := buildRegistry(cfg.Control)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := electrolux.NewClient(electrolux.Config{
		BaseURL:           cfg.Vendor.BaseURL,
		APIKey:            cfg.Vendor.APIKey,
		Timeout:           cfg.Vendor.RequestTimeout,
		RequestsPerSecond: cfg.Vendor.RequestsPerSecond,
		Burst:             cfg.Vendor.Burst,
	}, manager, registry, logger)

	dispatcher := control.NewDispatcher(client, registry, clock.Real{}, control.Config{
		PollInterval:   cfg.Control.PollInterval,
		Timeouts:       cfg.Control.ConfirmTimeouts.PerField(),
		DefaultTimeout: cfg.Control.ConfirmTimeouts.Default,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  manager,
		registry: registry,
		client:   client,
		service:  logging.NewApplianceServiceLogger(control.NewService(client, dispatcher), logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func buildRegistry(cfg config.ControlConfig) (*devices.Registry, error) {
	registry := devices.NewRegistry()

	profiles, err := cfg.BuildProfiles()
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if err := registry.RegisterProfile(p); err != nil {
			return nil, fmt.Errorf("failed to register profile: %w", err)
		}
	}

	if cfg.DefaultProfile != "" {
		if err := registry.SetDefault(cfg.DefaultProfile); err != nil {
			return nil, err
		}
	}

	for _, a := range cfg.Appliances {
		if err := registry.Assign(a.ID, a.Profile); err != nil {
			return nil, fmt.Errorf("appliance %s: %w", a.ID, err)
		}
	}

	return registry, nil
}
