package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"farmbeats-agent/internal/cloud"
	"farmbeats-agent/internal/config"
	"farmbeats-agent/internal/discovery"
	"farmbeats-agent/internal/httpapi"
	"farmbeats-agent/internal/logging"
	"farmbeats-agent/internal/mqtt"
	"farmbeats-agent/internal/sysinfo"
)

// Run wires the production collaborators and runs the agent until ctx is done or a
// Restart command has completed. The latter returns ErrRestartRequested.
func Run(ctx context.Context, cfg config.Config, version, appName string) error {
	slog.Info("initializing agent",
		"discovery_url", cfg.DiscoveryURL,
		"i2c_bus", cfg.I2CBus,
		"camera_device", cfg.CameraDevice,
	)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	logger := slog.Default()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	directory := discovery.NewClient(httpClient, cfg.DiscoveryURL)
	hardware := NewHardware(cfg, httpClient, logging.Component(logger, "hardware"))
	restarter := &Restarter{Command: cfg.RestartCommand, Cancel: cancel, Logger: logger}

	seq := NewSequencer(Options{
		Identify: func() (string, error) { return discovery.DeviceID(cfg.DeviceID) },
		Lookup:   directory.Lookup,
		Dial: func(ctx context.Context, id discovery.Identity) (cloud.Session, error) {
			session, err := mqtt.NewSession(id.Descriptor, id.DeviceID, mqtt.Options{
				ConnectTimeout: cfg.MQTTConnectTimeout,
				TwinTimeout:    cfg.TwinTimeout,
			}, logging.Component(logger, "mqtt"))
			if err != nil {
				return nil, err
			}
			if err := session.Connect(ctx); err != nil {
				_ = session.Close()
				return nil, err
			}
			return session, nil
		},
		Hardware: hardware,
		Properties: func(ctx context.Context) (map[string]any, error) {
			return sysinfo.Collect(ctx, appName, version)
		},
		Restart:      restarter.Restart,
		RetryDelay:   cfg.DiscoveryRetryDelay,
		RestartDelay: cfg.RestartDelay,
		Logger:       logger,
	})

	if cfg.HealthAddr != "" {
		healthLogger := logging.Component(logger, "httpapi")
		srv := httpapi.NewServer(cfg.HealthAddr, httpapi.NewMux(seq), healthLogger)
		go func() {
			if err := httpapi.Serve(ctx, srv, healthLogger); err != nil {
				logger.Error("health endpoint failed", "error", err)
			}
		}()
	}

	if err := seq.Run(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrRestartRequested) {
		return cause
	}
	return nil
}
