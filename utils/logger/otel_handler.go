package logger

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

const bridgeName = "crm-hub/slog"

// OTelHandler exports slog records through the global OTel logger provider.
type OTelHandler struct {
	logger log.Logger
	level  slog.Level
	attrs  []log.KeyValue
	prefix string
}

// NewOTelHandler creates a handler emitting records at or above level.
func NewOTelHandler(level slog.Level) *OTelHandler {
	return &OTelHandler{
		logger: global.GetLoggerProvider().Logger(bridgeName),
		level:  level,
	}
}

func (h *OTelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *OTelHandler) Handle(ctx context.Context, r slog.Record) error {
	var rec log.Record
	rec.SetTimestamp(r.Time)
	rec.SetBody(log.StringValue(r.Message))
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(r.Level.String())

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		rec.AddAttributes(
			log.String("trace_id", sc.TraceID().String()),
			log.String("span_id", sc.SpanID().String()),
		)
	}
	rec.AddAttributes(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttributes(convertAttr(h.prefix, a)...)
		return true
	})

	h.logger.Emit(ctx, rec)
	return nil
}

func (h *OTelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]log.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, convertAttr(h.prefix, a)...)
	}
	return &next
}

func (h *OTelHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func severity(level slog.Level) log.Severity {
	switch {
	case level >= slog.LevelError:
		return log.SeverityError
	case level >= slog.LevelWarn:
		return log.SeverityWarn
	case level >= slog.LevelInfo:
		return log.SeverityInfo
	default:
		return log.SeverityDebug
	}
}

// convertAttr flattens groups into dotted keys.
func convertAttr(prefix string, a slog.Attr) []log.KeyValue {
	v := a.Value.Resolve()
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		if a.Key != "" {
			prefix = key + "."
		}
		kvs := make([]log.KeyValue, 0, len(group))
		for _, ga := range group {
			kvs = append(kvs, convertAttr(prefix, ga)...)
		}
		return kvs
	case slog.KindString:
		return []log.KeyValue{log.String(key, v.String())}
	case slog.KindInt64:
		return []log.KeyValue{log.Int64(key, v.Int64())}
	case slog.KindUint64:
		return []log.KeyValue{log.Int64(key, int64(v.Uint64()))}
	case slog.KindFloat64:
		return []log.KeyValue{log.Float64(key, v.Float64())}
	case slog.KindBool:
		return []log.KeyValue{log.Bool(key, v.Bool())}
	case slog.KindDuration:
		return []log.KeyValue{log.Int64(key+"_ms", v.Duration().Milliseconds())}
	default:
		return []log.KeyValue{log.String(key, strings.TrimSpace(v.String()))}
	}
}
