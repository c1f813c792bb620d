package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger, level: config.Level}, nil
}

// SetLevel changes the level of this logger and every logger derived from
// it.
func (l *Logger) SetLevel(level string) error {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	l.level.SetLevel(zapLevel)
	return nil
}

func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// ContextWithRequestID stores a request id on ctx for WithRequestID lookups.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (l *Logger) WithRequestID(ctx context.Context) *zap.Logger {
	if reqID := RequestID(ctx); reqID != "" {
		return l.With(zap.String("request_id", reqID))
	}
	return l.Logger
}
