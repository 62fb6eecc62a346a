// Package logging builds the refbatch logger: console output on stderr so
// stdout stays clean for piping, plus a persistent file log in the report
// directory. The file core always records debug-level detail; --verbose only
// raises the console level.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the dual-core logger. The returned cleanup function flushes
// buffers and closes the log file.
func New(logPath string, verbose bool) (*zap.Logger, func(), error) {
	consoleLevel := zapcore.InfoLevel
	if verbose {
		consoleLevel = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		consoleLevel,
	)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(logFile),
		zapcore.DebugLevel,
	)

	logger := zap.New(zapcore.NewTee(consoleCore, fileCore)).Named("refbatch")

	cleanup := func() {
		_ = logger.Sync()
		_ = logFile.Close()
	}

	return logger, cleanup, nil
}

// NewConsole creates a stderr-only logger for commands that run before the
// report directory exists.
func NewConsole(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core).Named("refbatch")
}
