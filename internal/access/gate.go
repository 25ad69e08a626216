// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package access implements the gate a user passes once before a chat
// session may run.
//
// Three modes are supported:
//   - none: the gate is always open
//   - key:  the user types a shared secret, checked against a bcrypt hash
//   - totp: the user types a current one-time code
//
// Failed attempts are throttled and, after a limit, lock the gate for a
// fixed period.
package access

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Mode selects how the gate verifies a secret.
type Mode string

const (
	ModeNone Mode = "none"
	ModeKey  Mode = "key"
	ModeTOTP Mode = "totp"
)

// ParseMode parses a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeNone:
		return ModeNone, nil
	case ModeKey, ModeTOTP:
		return m, nil
	default:
		return "", fmt.Errorf("unknown access mode %q", s)
	}
}

const (
	// DefaultMaxAttempts is the number of failures before lockout.
	DefaultMaxAttempts = 5

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

var (
	// ErrInvalidSecret is returned for a wrong key or code.
	ErrInvalidSecret = errors.New("invalid access secret")

	// ErrLockedOut is returned while the gate is locked after repeated failures.
	ErrLockedOut = errors.New("access locked after repeated failures")

	// ErrThrottled is returned when attempts arrive faster than allowed.
	ErrThrottled = errors.New("too many attempts, slow down")

	// ErrNotConfigured is returned when the mode needs a secret that is missing.
	ErrNotConfigured = errors.New("access secret not configured")
)

// LockoutError carries the time left on a lockout. It matches ErrLockedOut.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%v (try again in %s)", ErrLockedOut, e.Remaining.Round(time.Second))
}

func (e *LockoutError) Is(target error) bool { return target == ErrLockedOut }

// =============================================================================
// GATE
// =============================================================================

// Gate verifies the user once per session. It is safe for concurrent use.
type Gate struct {
	mode       Mode
	keyHash    []byte
	totpSecret string

	maxAttempts     int
	lockoutDuration time.Duration
	limiter         *rate.Limiter
	now             func() time.Time
	logger          *zap.Logger

	mu          sync.Mutex
	authorized  bool
	failures    int
	lockedUntil time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithKeyHash sets the bcrypt hash checked in key mode.
func WithKeyHash(hash string) Option {
	return func(g *Gate) { g.keyHash = []byte(hash) }
}

// WithTOTPSecret sets the base32 secret checked in totp mode.
func WithTOTPSecret(secret string) Option {
	return func(g *Gate) { g.totpSecret = strings.TrimSpace(secret) }
}

// WithMaxAttempts sets the number of failures before lockout.
func WithMaxAttempts(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets how long a lockout lasts.
func WithLockoutDuration(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.lockoutDuration = d
		}
	}
}

// WithRateLimit replaces the attempt limiter.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(g *Gate) { g.limiter = rate.NewLimiter(limit, burst) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithLogger sets the logger for attempt events.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate builds a gate. A key or totp gate without its secret is an error.
func NewGate(mode Mode, opts ...Option) (*Gate, error) {
	g := &Gate{
		mode:            mode,
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
		limiter:         rate.NewLimiter(rate.Every(time.Second), 3),
		now:             time.Now,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	switch mode {
	case ModeNone:
		g.authorized = true
	case ModeKey:
		if len(g.keyHash) == 0 {
			return nil, fmt.Errorf("%w: key mode needs a key hash", ErrNotConfigured)
		}
		if _, err := bcrypt.Cost(g.keyHash); err != nil {
			return nil, fmt.Errorf("invalid key hash: %w", err)
		}
	case ModeTOTP:
		if g.totpSecret == "" {
			return nil, fmt.Errorf("%w: totp mode needs a secret", ErrNotConfigured)
		}
	default:
		return nil, fmt.Errorf("unknown access mode %q", mode)
	}
	g.logger = g.logger.With(zap.String("mode", string(mode)))
	return g, nil
}

// Mode returns the gate's mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Required reports whether the user must present a secret.
func (g *Gate) Required() bool {
	return g.mode != ModeNone
}

// Authorized reports whether the gate has been passed.
func (g *Gate) Authorized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorized
}

// Authorize checks a secret. Once it succeeds the gate stays open.
func (g *Gate) Authorize(secret string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.authorized {
		return nil
	}

	now := g.now()
	if now.Before(g.lockedUntil) {
		return &LockoutError{Remaining: g.lockedUntil.Sub(now)}
	}
	if !g.limiter.AllowN(now, 1) {
		g.logger.Warn("access attempt throttled")
		return ErrThrottled
	}

	if g.verify(strings.TrimSpace(secret), now) {
		g.authorized = true
		g.failures = 0
		g.lockedUntil = time.Time{}
		g.logger.Info("access granted")
		return nil
	}

	g.failures++
	g.logger.Warn("access denied", zap.Int("failures", g.failures))
	if g.failures >= g.maxAttempts {
		g.failures = 0
		g.lockedUntil = now.Add(g.lockoutDuration)
		g.logger.Warn("access locked", zap.Duration("duration", g.lockoutDuration))
		return &LockoutError{Remaining: g.lockoutDuration}
	}
	return ErrInvalidSecret
}

// AttemptsLeft returns the failures remaining before lockout.
func (g *Gate) AttemptsLeft() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxAttempts - g.failures
}

func (g *Gate) verify(secret string, now time.Time) bool {
	if secret == "" {
		return false
	}
	switch g.mode {
	case ModeKey:
		return bcrypt.CompareHashAndPassword(g.keyHash, []byte(secret)) == nil
	case ModeTOTP:
		ok, err := totp.ValidateCustom(secret, g.totpSecret, now.UTC(), totp.ValidateOpts{
			Period: 30,
			Skew:   1,
			Digits: 6,
		})
		return err == nil && ok
	}
	return false
}
