package server

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestIDKey struct{}

// Logger wraps zap with request-ID awareness.
type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger}, nil
}

// WithRequestID returns a logger tagged with the request ID carried in
// ctx, if any.
func (l *Logger) WithRequestID(ctx context.Context) *zap.Logger {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return l.With(zap.String("request_id", reqID))
	}
	return l.Logger
}
