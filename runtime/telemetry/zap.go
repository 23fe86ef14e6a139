package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger wraps a *zap.Logger for runtime logging. Keyvals are converted to
// zap.Field via zap.Any, so callers can pass structured values, not just
// strings, through the keyval-based Logger interface.
type ZapLogger struct {
	base *zap.Logger
}

// NewZapLogger constructs a Logger backed by the provided zap logger. Passing
// nil falls back to zap.NewNop() so callers never need a nil check.
func NewZapLogger(base *zap.Logger) Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return ZapLogger{base: base}
}

func (l ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.base.Debug(msg, keyvalsToFields(keyvals)...)
}

func (l ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.base.Info(msg, keyvalsToFields(keyvals)...)
}

func (l ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.base.Warn(msg, keyvalsToFields(keyvals)...)
}

func (l ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.base.Error(msg, keyvalsToFields(keyvals)...)
}

// keyvalsToFields converts an alternating key/value slice into zap fields.
// A trailing unpaired key is logged under "extra" rather than dropped, so a
// caller mistake never silently loses data.
func keyvalsToFields(keyvals []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2+1)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	if len(keyvals)%2 == 1 {
		fields = append(fields, zap.Any("extra", keyvals[len(keyvals)-1]))
	}
	return fields
}
