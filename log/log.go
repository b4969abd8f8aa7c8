package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so callers depend on one logging entry point.
type Logger struct {
	zerolog.Logger
}

// New builds the process root logger. Level falls back to info when the
// supplied string does not parse.
func New(level string, pretty bool) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(writer)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	logger = logger.Level(lvl).With().Timestamp().Logger()
	return Logger{logger}
}
