package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/eol-sync/internal/config"
)

const logLevelKey = "log.level"

// logLevelFromEnv reads EOL_SYNC_LOG_LEVEL, or LOG_LEVEL when that is unset.
// An unusable value yields info together with the parse error.
func logLevelFromEnv() (slog.Level, error) {
	v := viper.New()
	_ = v.BindEnv(logLevelKey, config.EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	return parseLogLevel(v.GetString(logLevelKey))
}

// parseLogLevel accepts the slog level names in any case, "warning", and
// offsets such as "debug+2". Empty means info.
func parseLogLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger returns a JSON logger on w that tags records with the active span
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(spanHandler{next: slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})})
}

// spanHandler adds trace_id and span_id of the span in the record's context
type spanHandler struct {
	next slog.Handler
}

func (h spanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h spanHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r = r.Clone()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanHandler{next: h.next.WithAttrs(attrs)}
}

func (h spanHandler) WithGroup(name string) slog.Handler {
	return spanHandler{next: h.next.WithGroup(name)}
}
