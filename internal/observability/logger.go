package observability

import "github.com/rs/zerolog"

// PortLogger scopes logger to one connection.
func PortLogger(logger zerolog.Logger, port string) zerolog.Logger {
	return logger.With().Str("port", port).Logger()
}
