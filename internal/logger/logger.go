// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/StratForge/internal/config"
)

const (
	asyncBufferSize = 4096
	asyncWorkers    = 2
)

// New creates a JSON logger on stdout tagged with the service name. Request
// and run IDs carried by the context are added to every record logged with
// a *Context call. With cfg.Async the returned Closer must be called on
// shutdown to flush.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(h, asyncBufferSize, asyncWorkers)
		h, closer = ah, ah
	}
	return slog.New(contextHandler{h}).With("service", cfg.Service), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
