package logging

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the process logger.
type Config struct {
	Level string
	// File, when set, also receives JSON logs through a size-rotated writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a production zap logger and, when a file is configured, tees it into a rotating
// log file. The returned close function flushes and releases the file.
func New(cfg Config) (*zap.Logger, func() error, error) {
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(Level(cfg.Level))
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	file := strings.TrimSpace(cfg.File)
	if file == "" {
		return logger, func() error { return Sync(logger) }, nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(loggerConfig.EncoderConfig),
		zapcore.AddSync(rotator),
		loggerConfig.Level,
	)
	teed := logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	return teed, func() error {
		return errors.Join(Sync(teed), rotator.Close())
	}, nil
}

// Level maps a configured level name to a zap level, defaulting to info.
func Level(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// Sync flushes logger, ignoring the errors stderr returns when it is a terminal or pipe.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !ShouldIgnoreSyncError(err) {
		return err
	}
	return nil
}

// ShouldIgnoreSyncError reports whether a Sync error is the harmless EINVAL/ENOTTY from stderr.
func ShouldIgnoreSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
