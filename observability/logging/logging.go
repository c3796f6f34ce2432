package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Field names expected by the log pipeline. The slog defaults (time, level,
// msg) are rewritten so simulator and node output share one schema.
const (
	timestampKey = "timestamp"
	severityKey  = "severity"
	messageKey   = "message"
)

func newHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = timestampKey
			case slog.LevelKey:
				return slog.String(severityKey, strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = messageKey
			}
			return attr
		},
	})
}

// Setup installs a JSON slog logger on stdout tagged with the service name
// and, when non-empty, the environment. It also rewires the standard library
// logger so stray log.Printf calls land in the same stream. The returned
// logger becomes the slog default.
func Setup(service, env string) *slog.Logger {
	handler := newHandler(os.Stdout)

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
