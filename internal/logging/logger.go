// Package logging builds the zerolog logger handed to every component.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/spotter-data-pull/internal/common"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	redacted = "[REDACTED]"
)

// sensitiveKeys are matched case-insensitively as substrings of option keys.
var sensitiveKeys = []string{"token", "authorization", "api-key", "apikey", "api_key", "secret", "password"}

// Options controls the logger built by New.
type Options struct {
	// Verbose enables info and debug lines. Without it only errors are shown.
	Verbose bool
	// Format is FormatConsole or FormatJSON.
	Format string
}

// New constructs a zerolog.Logger writing to w.
func New(w io.Writer, opts Options) zerolog.Logger {
	level := zerolog.ErrorLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	if opts.Format == FormatJSON {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}

	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.DateTime,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i any) string {
			return fmt.Sprintf(": %s :", strings.ToUpper(fmt.Sprint(i)))
		},
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Redact returns a copy of kv with sensitive values masked.
func Redact(kv map[string]string) map[string]string {
	if kv == nil {
		return nil
	}
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		if common.HasAnyFold(k, sensitiveKeys...) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

// RestyLogger adapts a zerolog.Logger to resty's Logger interface.
type RestyLogger struct {
	Log zerolog.Logger
}

func (l RestyLogger) Errorf(format string, v ...any) {
	l.Log.Error().Str("component", "resty").Msgf(strings.TrimSpace(format), v...)
}

func (l RestyLogger) Warnf(format string, v ...any) {
	l.Log.Warn().Str("component", "resty").Msgf(strings.TrimSpace(format), v...)
}

func (l RestyLogger) Debugf(format string, v ...any) {
	l.Log.Debug().Str("component", "resty").Msgf(strings.TrimSpace(format), v...)
}
