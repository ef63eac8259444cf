// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"crypto/hkdf"
	"crypto/sha256"
	"errors"
	"fmt"
)

// Purposes for keys derived from the cookie-encryption key. Each signer gets
// its own key so that a state value can never verify as an approval cookie.
const (
	keyPurposeState    = "mcp-authrelay state v1"
	keyPurposeApproval = "mcp-authrelay approval v1"
)

const derivedKeyLength = 32

func deriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("cookie key must not be empty")
	}
	key, err := hkdf.Key(sha256.New, secret, nil, purpose, derivedKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %q key: %w", purpose, err)
	}
	return key, nil
}
