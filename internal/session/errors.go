// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInFlight is returned when input arrives while a turn is active.
	ErrTurnInFlight = errors.New("a reply is still in progress")

	// ErrNotAuthorized is returned when the access gate has not been passed.
	ErrNotAuthorized = errors.New("session not authorized")

	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrStreamStalled is the cancellation cause when no fragment arrives
	// within the idle timeout.
	ErrStreamStalled = errors.New("stream stalled: no data within idle timeout")

	// ErrTurnCancelled is the cancellation cause for a user abort.
	ErrTurnCancelled = errors.New("turn cancelled")
)

// RemoteCallError reports a failure of the remote model call during
// dispatch or streaming. The session remains usable.
type RemoteCallError struct {
	Op  string
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote call failed during %s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
