// Package logx configures the process-wide zerolog logger. Importing
// pkg/logger/autoload applies the LOG_* environment at startup.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Init replaces the global logger. Output is JSON on stdout; pretty
// console output is meant for local runs only.
func Init(cfg Config) {
	out := io.Writer(os.Stdout)
	if cfg.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Stack().
		Logger()
}
