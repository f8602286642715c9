package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger logs to stdout and, when dir can be created, to a JSON file in
// dir. The returned directory is empty when file logging is disabled.
func newLogger(stdout, stderr io.Writer, dir, stamp string, verbose bool) (*zap.Logger, string, func()) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		level.SetLevel(zapcore.DebugLevel)
	}

	consoleCfg := zap.NewProductionEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(stdout), level),
	}
	cleanup := func() {}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(stderr, "WARNING: Could not create log directory '%s'. File logging disabled. Error: %v\n", dir, err)
		dir = ""
	} else {
		path := filepath.Join(dir, fmt.Sprintf("sqlexec_%s.log", stamp))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "WARNING: Could not open log file '%s'. File logging disabled. Error: %v\n", path, err)
		} else {
			fileCfg := zap.NewProductionEncoderConfig()
			fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), level))
			cleanup = func() { _ = f.Close() }
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, dir, func() {
		_ = logger.Sync()
		cleanup()
	}
}
