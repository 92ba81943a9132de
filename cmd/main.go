package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"farmbeats-agent/internal/app"
	"farmbeats-agent/internal/config"
	"farmbeats-agent/internal/logging"
)

var version = "dev"
var appName = "farmbeats-agent"

// restartExitCode tells the service manager the agent exited on a Restart command.
const restartExitCode = 3

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(appName, version)
		return
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, cfg, version, appName)
	switch {
	case errors.Is(err, app.ErrRestartRequested):
		slog.Info("restarting")
		stop()
		os.Exit(restartExitCode)
	case err != nil && !errors.Is(err, context.Canceled):
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
