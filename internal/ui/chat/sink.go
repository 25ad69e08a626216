// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/model"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards session display calls into the Bubble Tea event loop.
// Live text is not sent per fragment; it is parked in the LiveBuffer and
// picked up by the model's redraw tick.
type Sink struct {
	mu     sync.RWMutex
	sender Sender
	live   *LiveBuffer
}

// NewSink creates a sink with its own live buffer.
func NewSink() *Sink {
	return &Sink{live: NewLiveBuffer(defaultMaxFPS)}
}

// Attach sets the program that receives display messages. Calls made
// before Attach are dropped.
func (s *Sink) Attach(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sender = sender
}

// Live returns the buffer holding the in-progress reply.
func (s *Sink) Live() *LiveBuffer {
	return s.live
}

func (s *Sink) send(msg tea.Msg) {
	s.mu.RLock()
	sender := s.sender
	s.mu.RUnlock()
	if sender != nil {
		sender.Send(msg)
	}
}

// DisplayHistory implements session.Sink.
func (s *Sink) DisplayHistory(snapshot []model.Message) {
	s.send(HistoryMsg{Messages: snapshot})
}

// DisplayLive implements session.Sink.
func (s *Sink) DisplayLive(partial string) {
	s.live.Set(partial)
}

// DisplayError implements session.Sink.
func (s *Sink) DisplayError(err error) {
	s.send(ErrorMsg{Err: err})
}

// NotifyReset implements session.Sink.
func (s *Sink) NotifyReset() {
	s.live.Reset()
	s.send(ResetMsg{})
}
