package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nomadaapp/nomada/internal/pkg/env"
)

var (
	logger = zerolog.Nop()
	mu     sync.RWMutex
)

// SetupLogger configures the process-wide logger from LOG_LEVEL and APP_ENV.
// Development gets a human readable console writer, everything else JSON lines.
func SetupLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(env.GetEnv("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if env.IsDev() {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	l = l.Level(level).With().Timestamp().Str("service", "nomada").Logger()

	mu.Lock()
	logger = l
	mu.Unlock()

	return l
}

// GetLogger returns the configured logger, or a no-op logger before SetupLogger ran.
func GetLogger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns the process logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}
