// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// InvariantViolation reports an operation that would break a conversation
// invariant. The operation is rejected and state is left unchanged.
type InvariantViolation struct {
	Op     string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Reason)
}
