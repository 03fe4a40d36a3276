package log

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт настроенный zerolog. Явный level имеет приоритет над APP_ENV.
func NewLogger(appEnv, level string, w io.Writer) zerolog.Logger {
	lvl := zerolog.WarnLevel
	if appEnv == "dev" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
