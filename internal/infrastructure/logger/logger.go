// internal/infrastructure/logger/logger.go
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/LavaJover/shvark-rates-service/internal/config"
)

// Setup собирает slog.Logger по секции log_config. Возвращенный логгер
// раздаем зависимостям явно, глобальный default выставляет main.
func Setup(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	output := os.Stdout
	if strings.EqualFold(cfg.LogOutput, "stderr") {
		output = os.Stderr
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
