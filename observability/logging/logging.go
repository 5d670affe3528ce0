package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the process-wide structured logger. Records are emitted as
// JSON with timestamp, severity and message keys, tagged with the service and
// environment, and masked per the redaction rules. The minimum level comes
// from SYNAPSE_LOG_LEVEL. The standard library log package is bridged into
// the same handler so third-party output lands in the structured stream too.
func Setup(service, env string) *slog.Logger {
	handler := newHandler(os.Stdout, levelFromEnv())

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// newHandler builds the JSON handler with key remapping and field masking
// applied to every record. Tests supply their own writer and level.
func newHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) == 0 {
				switch attr.Key {
				case slog.TimeKey:
					return slog.Attr{Key: "timestamp", Value: attr.Value}
				case slog.LevelKey:
					return slog.String("severity", strings.ToUpper(attr.Value.String()))
				case slog.MessageKey:
					return slog.Attr{Key: "message", Value: attr.Value}
				}
			}
			return maskAttr(attr)
		},
		Level: level,
	})
}

// levelFromEnv reads SYNAPSE_LOG_LEVEL. Unset or unrecognized values fall
// back to info.
func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("SYNAPSE_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
