// +build !logless

package logger

import (
	"os"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

var Log = logger.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// Component returns a logger tagged with the subsystem name, used by the
// training command (cmd/train) to keep log lines attributable without
// reaching into zerolog directly.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}
