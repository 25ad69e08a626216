// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zap.InfoLevel, false},
		{"info", zap.InfoLevel, false},
		{"DEBUG", zap.DebugLevel, false},
		{"warning", zap.WarnLevel, false},
		{" error ", zap.ErrorLevel, false},
		{"trace", zap.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("turn", "t1"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, `"turn": "t1"`)
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "error", Debug: true, Writer: &buf})
	require.NoError(t, err)

	logger.Debug("details")
	assert.Contains(t, buf.String(), "details")
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFile_WritesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rigchat.log")
	logger, closeFn, err := NewFile(path, Options{Level: "info"}, false)
	require.NoError(t, err)

	logger.Info("session started")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session started")
	assert.NotContains(t, string(data), "\x1b[", "file output must not be colored")
}
