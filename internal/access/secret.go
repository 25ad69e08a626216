// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package access

import (
	"errors"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// MinKeyLength is the shortest shared secret HashKey accepts.
const MinKeyLength = 8

// HashKey returns the bcrypt hash to store as access.key_hash.
func HashKey(key string) (string, error) {
	if len(key) < MinKeyLength {
		return "", fmt.Errorf("key must be at least %d characters", MinKeyLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash key: %w", err)
	}
	return string(hash), nil
}

// NewTOTPKey generates a TOTP secret for an authenticator app.
func NewTOTPKey(account string) (*otp.Key, error) {
	if account == "" {
		return nil, errors.New("account name required")
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      "rigchat",
		AccountName: account,
	})
}
