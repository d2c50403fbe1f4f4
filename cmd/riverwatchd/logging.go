package main

import (
	"log/slog"
	"os"

	"github.com/riverwatch/riverwatch/config"
)

// telemetrySlogLogger builds the slog.Logger the health/metrics HTTP
// surface uses, leveled per config.GeneralConfig.LogLevel.
func telemetrySlogLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
