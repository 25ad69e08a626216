// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const defaultMaxFPS = 30

// =============================================================================
// LIVE BUFFER
// =============================================================================

// LiveBuffer holds the latest accumulated reply text between redraws.
// The session goroutine writes it on every fragment; the Bubble Tea loop
// reads it at most maxFPS times a second, so a fast stream costs one
// render per frame instead of one per fragment.
type LiveBuffer struct {
	mu        sync.Mutex
	text      string
	dirty     bool
	lastFlush time.Time
	minFlush  time.Duration
	maxFPS    int
}

// NewLiveBuffer creates a buffer capped at maxFPS flushes per second.
// Out-of-range values fall back to 30.
func NewLiveBuffer(maxFPS int) *LiveBuffer {
	lb := &LiveBuffer{}
	lb.SetMaxFPS(maxFPS)
	return lb
}

// Set replaces the buffered text. Safe to call from any goroutine.
func (lb *LiveBuffer) Set(text string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if text == lb.text {
		return
	}
	lb.text = text
	lb.dirty = true
}

// Flush returns the text if it changed and the frame interval has passed.
func (lb *LiveBuffer) Flush() (string, bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if !lb.dirty || time.Since(lb.lastFlush) < lb.minFlush {
		return "", false
	}
	return lb.takeLocked(), true
}

// ForceFlush returns the text if it changed, ignoring the frame interval.
func (lb *LiveBuffer) ForceFlush() (string, bool) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if !lb.dirty {
		return "", false
	}
	return lb.takeLocked(), true
}

func (lb *LiveBuffer) takeLocked() string {
	lb.dirty = false
	lb.lastFlush = time.Now()
	return lb.text
}

// Text returns the buffered text without marking it flushed.
func (lb *LiveBuffer) Text() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.text
}

// Reset clears the buffer. Use when a turn ends or the conversation resets.
func (lb *LiveBuffer) Reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.text = ""
	lb.dirty = false
	lb.lastFlush = time.Time{}
}

// SetMaxFPS updates the frame cap.
func (lb *LiveBuffer) SetMaxFPS(fps int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if fps <= 0 || fps > 120 {
		fps = defaultMaxFPS
	}
	lb.maxFPS = fps
	lb.minFlush = time.Second / time.Duration(fps)
}

// Interval returns the time between frames.
func (lb *LiveBuffer) Interval() time.Duration {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.minFlush
}

// liveTickCmd schedules the next redraw of the streaming reply.
func liveTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return LiveTickMsg{Time: t}
	})
}
