// Package main is the entry point for the EOL sync service.
package main

import (
	"log/slog"
	"os"

	"github.com/stacklok/eol-sync/cmd/eol-sync/app"
)

func main() {
	level, levelErr := logLevelFromEnv()
	// stderr keeps stdout for command output such as run --format json
	slog.SetDefault(newLogger(os.Stderr, level))
	if levelErr != nil {
		slog.Warn("Ignoring configured log level", "error", levelErr, "level", level)
	}

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
