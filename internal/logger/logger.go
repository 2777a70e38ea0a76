package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level       string // trace | debug | info | warn | error (default info)
	Environment string // "development" switches to console output
	ServiceName string
	Version     string
}

// Logger wraps zerolog.Logger so services share one construction path.
// The embedded Logger field is exported for middleware that needs the
// raw zerolog instance.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger with service metadata on every line. Development
// environments get human-readable console output, everything else JSON.
func New(cfg Config) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if cfg.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	logger = logger.Level(level).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}
