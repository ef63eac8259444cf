// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// ErrInvalidState is wrapped by every StateCodec.Decode failure.
var ErrInvalidState = errors.New("invalid state")

// DefaultStateTTL bounds how long an upstream round trip may take.
const DefaultStateTTL = 10 * time.Minute

const headerExpiry jose.HeaderKey = "exp"

// StateCodec turns an AuthRequest into the opaque state parameter and back.
//
// The state is a compact HS256 JWS. Its payload segment is the base64url
// encoding of the AuthRequest JSON, and the protected header carries an
// expiry, so a value that was altered, forged or replayed late is rejected
// before it is parsed.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateCodec derives the signing key from secret.
func NewStateCodec(secret []byte, ttl time.Duration) (*StateCodec, error) {
	key, err := deriveKey(secret, keyPurposeState)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateCodec{key: key, ttl: ttl, now: time.Now}, nil
}

// Encode serializes and signs req.
func (c *StateCodec) Encode(req *AuthRequest) (string, error) {
	if req == nil {
		return "", errors.New("cannot encode nil auth request")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth request: %w", err)
	}

	opts := (&jose.SignerOptions{}).WithHeader(headerExpiry, c.now().Add(c.ttl).Unix())
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: c.key}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create state signer: %w", err)
	}
	signed, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed.CompactSerialize()
}

// Decode verifies state and returns the AuthRequest it carries. Every
// failure, including a request without a client ID, wraps ErrInvalidState.
func (c *StateCodec) Decode(state string) (*AuthRequest, error) {
	if state == "" {
		return nil, fmt.Errorf("%w: missing", ErrInvalidState)
	}

	signed, err := jose.ParseSigned(state, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	payload, err := signed.Verify(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	exp, ok := signed.Signatures[0].Protected.ExtraHeaders[headerExpiry].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: no expiry", ErrInvalidState)
	}
	if c.now().After(time.Unix(int64(exp), 0)) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidState)
	}

	var req AuthRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if req.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client id", ErrInvalidState)
	}
	return &req, nil
}
