package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger.
// Development gets pretty console output; everything else logs JSON.
func Setup(appEnv, level string) {
	SetupWriter(os.Stdout, appEnv, level)
}

// SetupWriter is Setup with an explicit destination
func SetupWriter(out io.Writer, appEnv, level string) {
	if appEnv == "development" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)

	log.Info().
		Str("level", lvl.String()).
		Msg("Logger initialized")
}
