// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"context"
	"log/slog"

	"github.com/luxfi/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapcoreLevel maps an slog.Level onto the nearest zapcore.Level.
func zapcoreLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// zapLogger wraps a *zap.Logger to satisfy the luxfi/log.Logger
// interface, the production counterpart to NoLog.
type zapLogger struct {
	z *zap.Logger
}

// New returns a production logger backed by zap, at the given level
// ("debug", "info", "warn", "error"; defaults to "info" on parse failure).
func New(level string) (log.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

func fields(ctx []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, ctx[i+1]))
	}
	return out
}

func (l *zapLogger) With(ctx ...interface{}) log.Logger { return &zapLogger{z: l.z.With(fields(ctx)...)} }
func (l *zapLogger) New(ctx ...interface{}) log.Logger  { return l.With(ctx...) }

func (l *zapLogger) Log(level slog.Level, msg string, ctx ...interface{}) {
	switch {
	case level >= slog.LevelError:
		l.Error(msg, ctx...)
	case level >= slog.LevelWarn:
		l.Warn(msg, ctx...)
	case level >= slog.LevelInfo:
		l.Info(msg, ctx...)
	default:
		l.Debug(msg, ctx...)
	}
}

func (l *zapLogger) Trace(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *zapLogger) Debug(msg string, ctx ...interface{}) { l.z.Debug(msg, fields(ctx)...) }
func (l *zapLogger) Info(msg string, ctx ...interface{})  { l.z.Info(msg, fields(ctx)...) }
func (l *zapLogger) Warn(msg string, ctx ...interface{})  { l.z.Warn(msg, fields(ctx)...) }
func (l *zapLogger) Error(msg string, ctx ...interface{}) { l.z.Error(msg, fields(ctx)...) }
func (l *zapLogger) Crit(msg string, ctx ...interface{})  { l.z.Error(msg, fields(ctx)...) }

func (l *zapLogger) WriteLog(level slog.Level, msg string, attrs ...any) { l.Log(level, msg, attrs...) }

func (l *zapLogger) Enabled(_ context.Context, level slog.Level) bool {
	return l.z.Core().Enabled(zapcoreLevel(level))
}

func (l *zapLogger) Handler() slog.Handler { return nil }

func (l *zapLogger) Fatal(msg string, f ...zap.Field) { l.z.Fatal(msg, f...) }
func (l *zapLogger) Verbo(msg string, f ...zap.Field)  { l.z.Debug(msg, f...) }

func (l *zapLogger) WithFields(f ...zap.Field) log.Logger  { return &zapLogger{z: l.z.With(f...)} }
func (l *zapLogger) WithOptions(o ...zap.Option) log.Logger { return &zapLogger{z: l.z.WithOptions(o...)} }

func (l *zapLogger) SetLevel(level slog.Level)      {}
func (l *zapLogger) GetLevel() slog.Level           { return slog.LevelInfo }
func (l *zapLogger) EnabledLevel(lvl slog.Level) bool { return true }

func (l *zapLogger) StopOnPanic() {}
func (l *zapLogger) RecoverAndPanic(f func()) { f() }
func (l *zapLogger) RecoverAndExit(f, exit func()) { f() }
func (l *zapLogger) Stop() { _ = l.z.Sync() }

func (l *zapLogger) Write(p []byte) (int, error) {
	l.z.Info(string(p))
	return len(p), nil
}
