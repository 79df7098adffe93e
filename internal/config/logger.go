package config

import (
	"go.uber.org/zap"
)

// Logger is the narrow, Printf-shaped logging contract engine-internal code
// depends on, matching the Logger / DefaultLogger() contract the rule-chain
// engine's Config.Logger field anticipates.
type Logger interface {
	Printf(format string, v ...interface{})
}

// zapLogger adapts a zap.SugaredLogger to Logger, the structured-logging
// adapter the rule-chain engine's WithLogger option doc already anticipates
// swapping in.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapLogger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// DefaultLogger builds the engine's default Logger: a production zap config
// wrapped to satisfy the Printf-shaped interface.
func DefaultLogger() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{sugar: z.Sugar()}
}

// NewZapLogger wraps an already-constructed zap logger, for callers (such
// as cmd/engine) that want control over zap's own configuration.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}
