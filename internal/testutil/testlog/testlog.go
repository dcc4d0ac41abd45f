package testlog

import (
	"testing"

	"github.com/Leonezz/serialport-api-mgr-sub005/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}

// Logger returns a logger scoped to the running test.
func Logger(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	return log.Logger.With().Str("test", t.Name()).Logger()
}
