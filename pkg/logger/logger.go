// Package logger builds the zerolog loggers used by the engine, the HTTP
// server and the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Name is attached to every log line as the "service" field.
const Name = "epadoc"

var (
	mu            sync.RWMutex
	defaultLogger = New(os.Stderr, zerolog.InfoLevel, false)
)

// New creates a logger writing to output with a timestamp. pretty selects
// zerolog's console format.
func New(output io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", Name).
		Logger()
}

// ParseLevel parses a level name. The empty string is info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "none", "off":
		return zerolog.Disabled, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Default returns the process logger. Engines built without WithLogger
// use it.
func Default() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process logger.
func SetDefault(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}
