package logger

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON object per event. Every entry names the service and
// the action being performed; extra fields are passed as a map.
type Logger struct {
	z       *zap.Logger
	service string
}

func New(service string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return FromZap(z, service)
}

// FromZap wraps an existing zap logger, mostly useful with zaptest/observer.
func FromZap(z *zap.Logger, service string) *Logger {
	return &Logger{
		z:       z.With(zap.String("service", service), zap.String("hostname", hostname())),
		service: service,
	}
}

func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{z: l.z.With(toZap(fields)...), service: l.service}
}

func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{z: l.z.With(zap.String("request_id", id)), service: l.service}
}

func (l *Logger) Info(action string, fields map[string]any) {
	l.z.Info(action, append(toZap(fields), zap.String("action", action))...)
}

func (l *Logger) Debug(action string, fields map[string]any) {
	l.z.Debug(action, append(toZap(fields), zap.String("action", action))...)
}

func (l *Logger) Warn(action string, fields map[string]any) {
	l.z.Warn(action, append(toZap(fields), zap.String("action", action))...)
}

func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.z.Error(action, append(toZap(fields), zap.String("action", action), zap.Error(err))...)
}

func (l *Logger) Sync() { _ = l.z.Sync() }

type ctxKey struct{}

func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by IntoContext, or fallback.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return fallback
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(fields)+2)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func hostname() string { h, _ := os.Hostname(); return h }
