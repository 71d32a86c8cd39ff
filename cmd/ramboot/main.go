// Command ramboot drives a single early-boot transition from a
// disk-backed root filesystem to a RAM-resident one. It takes no
// subcommands and no flags: everything it needs, including log
// verbosity and format, comes from its config file and the live system
// it is running on.
package main

import (
	"context"
	"os"

	"go.ramboot.dev/ramboot/config"
	"go.ramboot.dev/ramboot/logger"
	"go.ramboot.dev/ramboot/runner"
	"go.ramboot.dev/ramboot/sysexec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init(logger.Config{Level: logger.LevelInfo, Format: "text"})
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: logLevel(cfg.LogLevel), Format: cfg.LogFormat})

	exec := sysexec.NewExecutor()
	if err := runner.Run(context.Background(), cfg, exec); err != nil {
		logger.Error("ramboot transition failed", "error", err)
		os.Exit(1)
	}

	logger.Info("ramboot transition complete")
}

func logLevel(name string) logger.Level {
	switch name {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
