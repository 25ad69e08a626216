// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestNewTheme_ForcedBackground(t *testing.T) {
	dark := NewTheme("dark")
	assert.True(t, dark.IsDark)

	light := NewTheme("LIGHT")
	assert.False(t, light.IsDark)
}

func TestGlamourStyle(t *testing.T) {
	tests := []struct {
		name  string
		theme Theme
		want  string
	}{
		{"ascii terminal", Theme{ColorProfile: termenv.Ascii, IsDark: true}, "notty"},
		{"dark", Theme{ColorProfile: termenv.TrueColor, IsDark: true}, "dark"},
		{"light", Theme{ColorProfile: termenv.ANSI256, IsDark: false}, "light"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.theme.GlamourStyle())
		})
	}
}

func TestLayoutMode(t *testing.T) {
	th := NewTheme("dark")
	th.SetSize(40, 20)
	assert.Equal(t, LayoutNarrow, th.GetLayoutMode())
	th.SetSize(80, 20)
	assert.Equal(t, LayoutMedium, th.GetLayoutMode())
	th.SetSize(140, 20)
	assert.Equal(t, LayoutWide, th.GetLayoutMode())
}

func TestSpinnersHaveFrames(t *testing.T) {
	for _, s := range []struct {
		frames []string
	}{{ThinkingSpinner.Frames}, {DotsSpinner.Frames}} {
		assert.NotEmpty(t, s.frames)
	}
	assert.Greater(t, int64(ThinkingSpinner.FPS), int64(0))
}

func TestIndicatorsDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range []string{Indicators.Idle, Indicators.Streaming, Indicators.Error, Indicators.Image, Indicators.Locked} {
		assert.False(t, seen[s], "duplicate indicator %q", s)
		seen[s] = true
	}
}
