// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used across rigchat.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures a logger.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Debug forces the debug level regardless of Level.
	Debug bool

	// Writer receives the output. Nil means stderr.
	Writer io.Writer

	// Color enables colored level names. Leave off for files.
	Color bool
}

// ParseLevel maps a config level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zap.InfoLevel, nil
	case "debug":
		return zap.DebugLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a console-encoded logger.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if opts.Color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, zap.AddCaller()), nil
}

// OpenFile opens path for appending log output, creating its directory.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewFile returns a logger writing to path and a func that flushes and
// closes it. With tee set, output also goes to stderr in color.
func NewFile(path string, opts Options, tee bool) (*zap.Logger, func(), error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	opts.Writer = f
	opts.Color = false
	logger, err := New(opts)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if tee {
		stderrOpts := opts
		stderrOpts.Writer = os.Stderr
		stderrOpts.Color = true
		console, err := New(stderrOpts)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		logger = zap.New(zapcore.NewTee(logger.Core(), console.Core()), zap.AddCaller())
	}
	closer := func() {
		_ = logger.Sync()
		_ = f.Close()
	}
	return logger, closer, nil
}
