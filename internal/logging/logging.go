// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup routes the global logger to stderr: human readable in development,
// JSON otherwise. Unknown levels fall back to info.
func Setup(environment, level string) {
	Configure(os.Stderr, environment, level)
}

// Configure is Setup with an explicit writer.
func Configure(out io.Writer, environment, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if environment != "production" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
