package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gsagostini/urban-graphlets/internal/config"
	"github.com/gsagostini/urban-graphlets/internal/daemon"
	"github.com/gsagostini/urban-graphlets/internal/logger"
	"github.com/gsagostini/urban-graphlets/pkg/version"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, daemon.ErrDaemonRunning) {
			fmt.Fprintf(os.Stderr, "orcastr-daemon: %v\n", err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "orcastr-daemon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	logger.Init(logger.Config{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	lm := daemon.NewLifecycleManager(cfg.LockFile, cfg.PidFile, cfg.SocketPath)
	if err := lm.Acquire(); err != nil {
		return err
	}
	defer lm.Cleanup()

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("orcastr daemon starting", "version", version.Version, "pid", os.Getpid())
	return d.Run(ctx)
}
