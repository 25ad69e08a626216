// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// SESSION
// =============================================================================

// Authorizer reports whether the access gate has been passed.
type Authorizer interface {
	Authorized() bool
}

// Config holds configuration for a session.
type Config struct {
	// Gate is consulted once before a controller may run. Nil means open.
	Gate Authorizer

	// Logger receives lifecycle events. Nil disables logging.
	Logger *zap.Logger
}

// Session owns the conversation of one chat session.
type Session struct {
	mu sync.Mutex

	sessionID    string
	startTime    time.Time
	lastActivity time.Time

	conv   *model.Conversation
	gate   Authorizer
	logger *zap.Logger
	closed bool

	turns    int
	failures int
	resets   int
}

// New initializes a session with an empty conversation.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	s := &Session{
		sessionID:    generateSessionID(),
		startTime:    now,
		lastActivity: now,
		conv:         model.NewConversation(),
		gate:         cfg.Gate,
	}
	s.logger = logger.With(zap.String("session", s.sessionID))
	s.logger.Info("session started")
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Conversation returns the session's conversation.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Authorized reports whether the session may run.
func (s *Session) Authorized() bool {
	if s.gate == nil {
		return true
	}
	return s.gate.Authorized()
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.conv.Reset()
	s.mu.Lock()
	s.resets++
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.logger.Info("conversation reset")
}

// Close tears the session down and drops its history. Safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	turns, failures := s.turns, s.failures
	s.mu.Unlock()

	s.conv.Reset()
	s.logger.Info("session closed",
		zap.Int("turns", turns),
		zap.Int("failures", failures),
		zap.Duration("duration", s.Duration()))
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp.
func (s *Session) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Duration returns how long the session has been active.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// IdleTime returns how long since last activity.
func (s *Session) IdleTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) recordTurn(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	if !ok {
		s.failures++
	}
	s.lastActivity = time.Now()
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status is a point-in-time view of the session.
type Status struct {
	SessionID string
	StartTime time.Time
	Duration  time.Duration
	IdleTime  time.Duration
	Messages  int
	Turns     int
	Failures  int
	Resets    int
}

// GetStatus returns the current session status.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	return Status{
		SessionID: s.sessionID,
		StartTime: s.startTime,
		Duration:  now.Sub(s.startTime),
		IdleTime:  now.Sub(s.lastActivity),
		Messages:  s.conv.Len(),
		Turns:     s.turns,
		Failures:  s.failures,
		Resets:    s.resets,
	}
}

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()[:8]
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return util.IntToString(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
