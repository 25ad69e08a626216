// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package access

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newKeyGate(t *testing.T, key string, opts ...Option) *Gate {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	g, err := NewGate(ModeKey, append([]Option{WithKeyHash(string(hash))}, opts...)...)
	require.NoError(t, err)
	return g
}

// =============================================================================
// MODE TESTS
// =============================================================================

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeNone, false},
		{"none", ModeNone, false},
		{"KEY", ModeKey, false},
		{" totp ", ModeTOTP, false},
		{"password", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewGate_Validation(t *testing.T) {
	_, err := NewGate(ModeKey)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGate(ModeTOTP)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewGate(ModeKey, WithKeyHash("not-a-bcrypt-hash"))
	assert.Error(t, err)

	_, err = NewGate(Mode("other"))
	assert.Error(t, err)
}

func TestGate_NoneIsOpen(t *testing.T) {
	g, err := NewGate(ModeNone)
	require.NoError(t, err)
	assert.True(t, g.Authorized())
	assert.False(t, g.Required())
	assert.NoError(t, g.Authorize(""))
}

// =============================================================================
// KEY MODE TESTS
// =============================================================================

func TestGate_KeyMode(t *testing.T) {
	g := newKeyGate(t, "correct horse")
	assert.True(t, g.Required())
	assert.False(t, g.Authorized())

	assert.ErrorIs(t, g.Authorize("wrong"), ErrInvalidSecret)
	assert.False(t, g.Authorized())

	require.NoError(t, g.Authorize("  correct horse \n"))
	assert.True(t, g.Authorized())

	// Stays open.
	assert.NoError(t, g.Authorize("anything"))
}

func TestGate_LockoutAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	g := newKeyGate(t, "correct horse",
		WithMaxAttempts(3),
		WithLockoutDuration(10*time.Minute),
		WithRateLimit(rate.Inf, 1),
		WithClock(clock.Now))

	assert.ErrorIs(t, g.Authorize("a"), ErrInvalidSecret)
	assert.Equal(t, 2, g.AttemptsLeft())
	assert.ErrorIs(t, g.Authorize("b"), ErrInvalidSecret)

	err := g.Authorize("c")
	require.ErrorIs(t, err, ErrLockedOut)
	var lerr *LockoutError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 10*time.Minute, lerr.Remaining)

	// Even the right key is refused while locked.
	clock.Advance(5 * time.Minute)
	err = g.Authorize("correct horse")
	require.ErrorIs(t, err, ErrLockedOut)
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 5*time.Minute, lerr.Remaining)

	clock.Advance(6 * time.Minute)
	require.NoError(t, g.Authorize("correct horse"))
	assert.True(t, g.Authorized())
}

func TestGate_Throttle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	g := newKeyGate(t, "correct horse",
		WithMaxAttempts(100),
		WithRateLimit(rate.Every(time.Second), 2),
		WithClock(clock.Now))

	assert.ErrorIs(t, g.Authorize("a"), ErrInvalidSecret)
	assert.ErrorIs(t, g.Authorize("b"), ErrInvalidSecret)
	assert.ErrorIs(t, g.Authorize("c"), ErrThrottled)

	clock.Advance(time.Second)
	assert.NoError(t, g.Authorize("correct horse"))
}

// =============================================================================
// TOTP MODE TESTS
// =============================================================================

func TestGate_TOTPMode(t *testing.T) {
	key, err := NewTOTPKey("tester")
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	g, err := NewGate(ModeTOTP, WithTOTPSecret(key.Secret()), WithClock(clock.Now), WithRateLimit(rate.Inf, 1))
	require.NoError(t, err)

	stale, err := totp.GenerateCode(key.Secret(), clock.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	current, err := totp.GenerateCode(key.Secret(), clock.Now())
	require.NoError(t, err)

	if stale != current {
		assert.ErrorIs(t, g.Authorize(stale), ErrInvalidSecret)
	}
	require.NoError(t, g.Authorize(current))
	assert.True(t, g.Authorized())
}

func TestGate_ConcurrentAuthorize(t *testing.T) {
	g := newKeyGate(t, "correct horse", WithRateLimit(rate.Inf, 1), WithMaxAttempts(1000))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = g.Authorize("correct horse")
			} else {
				_ = g.Authorized()
			}
		}(i)
	}
	wg.Wait()
	assert.True(t, g.Authorized())
}

// =============================================================================
// SECRET HELPERS
// =============================================================================

func TestHashKey(t *testing.T) {
	_, err := HashKey("short")
	assert.Error(t, err)

	hash, err := HashKey("long enough key")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("long enough key")))

	g, err := NewGate(ModeKey, WithKeyHash(hash))
	require.NoError(t, err)
	assert.NoError(t, g.Authorize("long enough key"))
}

func TestNewTOTPKey(t *testing.T) {
	_, err := NewTOTPKey("")
	assert.Error(t, err)

	key, err := NewTOTPKey("alice@host")
	require.NoError(t, err)
	assert.Equal(t, "rigchat", key.Issuer())
	assert.Equal(t, "alice@host", key.AccountName())
	assert.NotEmpty(t, key.Secret())
	assert.Contains(t, key.URL(), "otpauth://totp/")
}
