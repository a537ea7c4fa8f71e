package logger

import (
	"fmt"
	"os"

	"github.com/promptdeck/bastion/bastionlib"
	"github.com/rs/zerolog"
)

// NewZeroLogger builds a bastionlib.Logger on top of zerolog writing
// human-readable output to stderr.
func NewZeroLogger(debug bool) bastionlib.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return zeroLogger{log: log}
}

type zeroLogger struct {
	log zerolog.Logger
}

func (z zeroLogger) Named(name string) bastionlib.Logger {
	return zeroLogger{log: z.log.With().Str("logger", name).Logger()}
}

func (z zeroLogger) BindStr(key, value string) bastionlib.Logger {
	return zeroLogger{log: z.log.With().Str(key, value).Logger()}
}

func (z zeroLogger) BindInt(key string, value int) bastionlib.Logger {
	return zeroLogger{log: z.log.With().Int(key, value).Logger()}
}

func (z zeroLogger) BindFloat(key string, value float64) bastionlib.Logger {
	return zeroLogger{log: z.log.With().Float64(key, value).Logger()}
}

func (z zeroLogger) Printf(format string, args ...interface{}) {
	z.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (z zeroLogger) Info(msg string)    { z.log.Info().Msg(msg) }
func (z zeroLogger) Warning(msg string) { z.log.Warn().Msg(msg) }
func (z zeroLogger) Debug(msg string)   { z.log.Debug().Msg(msg) }

func (z zeroLogger) InfoError(msg string, err error) {
	z.log.Info().Err(err).Msg(msg)
}

func (z zeroLogger) WarningError(msg string, err error) {
	z.log.Warn().Err(err).Msg(msg)
}

func (z zeroLogger) DebugError(msg string, err error) {
	z.log.Debug().Err(err).Msg(msg)
}
