package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/filex"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapOptions configures NewZapLogger.
type ZapOptions struct {
	Level string
	// Path enables a rolling JSON file sink next to stdout when non-empty.
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ZapLogger adapts a sugared zap logger to Logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

func NewZapLoggerFrom(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

// NewZapLogger builds a JSON zap logger writing to stdout and, when
// opts.Path is set, to a lumberjack-rotated file.
func NewZapLogger(opts ZapOptions) (*ZapLogger, error) {
	level := zapLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stdout), level),
	}

	if opts.Path != "" {
		if _, err := filex.EnsureDir(filepath.Dir(opts.Path)); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 7),
			Compress:   opts.Compress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(lj), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return NewZapLoggerFrom(l), nil
}

func zapLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (z *ZapLogger) Debug(_ context.Context, msg string, args ...any) { z.s.Debugw(msg, args...) }
func (z *ZapLogger) Info(_ context.Context, msg string, args ...any)  { z.s.Infow(msg, args...) }
func (z *ZapLogger) Warn(_ context.Context, msg string, args ...any)  { z.s.Warnw(msg, args...) }
func (z *ZapLogger) Error(_ context.Context, msg string, args ...any) { z.s.Errorw(msg, args...) }

func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{s: z.s.With(args...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.s.Sync()
}
