// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ory/fosite"
)

// timedEntry wraps a value with its expiry for the cleanup sweep.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// sweep removes expired entries from m and returns how many were removed.
func sweep[T any](m map[string]*timedEntry[T], now time.Time) int {
	removed := 0
	for k, v := range m {
		if v.expired(now) {
			delete(m, k)
			removed++
		}
	}
	return removed
}

// MemoryStorage keeps all grants in process memory. It is the default
// backend and loses every token on restart.
//
// Requesters are stored live, keyed by token signature. Revocation takes a
// request ID and therefore scans.
type MemoryStorage struct {
	mu sync.RWMutex

	clients          map[string]fosite.Client
	authCodes        map[string]*timedEntry[fosite.Requester]
	invalidatedCodes map[string]*timedEntry[struct{}]
	accessTokens     map[string]*timedEntry[fosite.Requester]
	refreshTokens    map[string]*timedEntry[fosite.Requester]
	pkceRequests     map[string]*timedEntry[fosite.Requester]
	assertionJWTs    map[string]time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStorage creates an empty store and starts its cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		clients:          make(map[string]fosite.Client),
		authCodes:        make(map[string]*timedEntry[fosite.Requester]),
		invalidatedCodes: make(map[string]*timedEntry[struct{}]),
		accessTokens:     make(map[string]*timedEntry[fosite.Requester]),
		refreshTokens:    make(map[string]*timedEntry[fosite.Requester]),
		pkceRequests:     make(map[string]*timedEntry[fosite.Requester]),
		assertionJWTs:    make(map[string]time.Time),
		cleanupInterval:  DefaultCleanupInterval,
		stopCleanup:      make(chan struct{}),
		cleanupDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Health always succeeds.
func (*MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		}
	}
}

func (s *MemoryStorage) cleanupExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, entry := range s.authCodes {
		if entry.expired(now) {
			delete(s.authCodes, code)
			delete(s.invalidatedCodes, code)
		}
	}
	removed := sweep(s.invalidatedCodes, now) +
		sweep(s.accessTokens, now) +
		sweep(s.refreshTokens, now) +
		sweep(s.pkceRequests, now)

	for jti, exp := range s.assertionJWTs {
		if now.After(exp) {
			delete(s.assertionJWTs, jti)
		}
	}

	if removed > 0 {
		slog.Debug("swept expired grants", "removed", removed)
	}
}

// RegisterClient adds or replaces a client.
func (s *MemoryStorage) RegisterClient(_ context.Context, client fosite.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.GetID()] = client
	return nil
}

// GetClient loads a client by ID.
func (s *MemoryStorage) GetClient(_ context.Context, id string) (fosite.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		slog.Debug("client not found", "client_id", id)
		return nil, notFound("Client")
	}
	return client, nil
}

// ClientAssertionJWTValid returns fosite.ErrJTIKnown for a JTI that is
// still remembered.
func (s *MemoryStorage) ClientAssertionJWTValid(_ context.Context, jti string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if exp, ok := s.assertionJWTs[jti]; ok && time.Now().Before(exp) {
		return fosite.ErrJTIKnown
	}
	return nil
}

// SetClientAssertionJWT remembers jti until exp.
func (s *MemoryStorage) SetClientAssertionJWT(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertionJWTs[jti] = exp
	return nil
}

// CreateAuthorizeCodeSession stores the request behind an authorization code.
func (s *MemoryStorage) CreateAuthorizeCodeSession(_ context.Context, code string, request fosite.Requester) error {
	if err := validateCreate(code, request, "authorization code"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authCodes[code] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expiresAt(request, fosite.AuthorizeCode, DefaultAuthCodeTTL),
	}
	return nil
}

// GetAuthorizeCodeSession returns the request for code. A used code returns
// the request together with fosite.ErrInvalidatedAuthorizeCode.
func (s *MemoryStorage) GetAuthorizeCodeSession(_ context.Context, code string, _ fosite.Session) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.authCodes[code]
	if !ok {
		return nil, notFound("Authorization code")
	}
	if _, used := s.invalidatedCodes[code]; used {
		return entry.value, fosite.ErrInvalidatedAuthorizeCode
	}
	return entry.value, nil
}

// InvalidateAuthorizeCodeSession marks code as used.
func (s *MemoryStorage) InvalidateAuthorizeCodeSession(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authCodes[code]; !ok {
		return notFound("Authorization code")
	}
	s.invalidatedCodes[code] = &timedEntry[struct{}]{
		expiresAt: time.Now().Add(DefaultInvalidatedCodeTTL),
	}
	return nil
}

// CreateAccessTokenSession stores the request behind an access token signature.
func (s *MemoryStorage) CreateAccessTokenSession(_ context.Context, signature string, request fosite.Requester) error {
	if err := validateCreate(signature, request, "access token signature"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expiresAt(request, fosite.AccessToken, DefaultAccessTokenTTL),
	}
	return nil
}

// GetAccessTokenSession returns the request behind an access token signature.
func (s *MemoryStorage) GetAccessTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.get(s.accessTokens, signature, "Access token")
}

// DeleteAccessTokenSession removes an access token.
func (s *MemoryStorage) DeleteAccessTokenSession(_ context.Context, signature string) error {
	return s.remove(s.accessTokens, signature, "Access token")
}

// CreateRefreshTokenSession stores the request behind a refresh token signature.
func (s *MemoryStorage) CreateRefreshTokenSession(_ context.Context, signature string, _ string, request fosite.Requester) error {
	if err := validateCreate(signature, request, "refresh token signature"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expiresAt(request, fosite.RefreshToken, DefaultRefreshTokenTTL),
	}
	return nil
}

// GetRefreshTokenSession returns the request behind a refresh token signature.
func (s *MemoryStorage) GetRefreshTokenSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.get(s.refreshTokens, signature, "Refresh token")
}

// DeleteRefreshTokenSession removes a refresh token.
func (s *MemoryStorage) DeleteRefreshTokenSession(_ context.Context, signature string) error {
	return s.remove(s.refreshTokens, signature, "Refresh token")
}

// RotateRefreshToken drops the presented refresh token and every access
// token issued under the same grant.
func (s *MemoryStorage) RotateRefreshToken(_ context.Context, requestID string, refreshTokenSignature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.refreshTokens, refreshTokenSignature)
	deleteByRequestID(s.accessTokens, requestID)
	return nil
}

// RevokeAccessToken removes every access token issued under requestID.
func (s *MemoryStorage) RevokeAccessToken(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleteByRequestID(s.accessTokens, requestID)
	return nil
}

// RevokeRefreshToken removes every refresh token issued under requestID.
func (s *MemoryStorage) RevokeRefreshToken(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleteByRequestID(s.refreshTokens, requestID)
	return nil
}

// RevokeRefreshTokenMaybeGracePeriod revokes immediately; there is no grace period.
func (s *MemoryStorage) RevokeRefreshTokenMaybeGracePeriod(ctx context.Context, requestID string, _ string) error {
	return s.RevokeRefreshToken(ctx, requestID)
}

// CreatePKCERequestSession stores the PKCE challenge request.
func (s *MemoryStorage) CreatePKCERequestSession(_ context.Context, signature string, request fosite.Requester) error {
	if err := validateCreate(signature, request, "PKCE signature"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkceRequests[signature] = &timedEntry[fosite.Requester]{
		value:     request,
		expiresAt: expiresAt(request, fosite.AuthorizeCode, DefaultAuthCodeTTL),
	}
	return nil
}

// GetPKCERequestSession returns the PKCE challenge request.
func (s *MemoryStorage) GetPKCERequestSession(_ context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.get(s.pkceRequests, signature, "PKCE request")
}

// DeletePKCERequestSession removes the PKCE challenge request.
func (s *MemoryStorage) DeletePKCERequestSession(_ context.Context, signature string) error {
	return s.remove(s.pkceRequests, signature, "PKCE request")
}

func (s *MemoryStorage) get(m map[string]*timedEntry[fosite.Requester], key, what string) (fosite.Requester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := m[key]
	if !ok {
		return nil, notFound(what)
	}
	return entry.value, nil
}

func (s *MemoryStorage) remove(m map[string]*timedEntry[fosite.Requester], key, what string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := m[key]; !ok {
		return notFound(what)
	}
	delete(m, key)
	return nil
}

func deleteByRequestID(m map[string]*timedEntry[fosite.Requester], requestID string) {
	for sig, entry := range m {
		if entry.value.GetID() == requestID {
			delete(m, sig)
		}
	}
}

// MemoryStats counts live entries.
type MemoryStats struct {
	Clients       int
	AuthCodes     int
	AccessTokens  int
	RefreshTokens int
	PKCERequests  int
}

// Stats returns the number of stored entries per kind.
func (s *MemoryStorage) Stats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return MemoryStats{
		Clients:       len(s.clients),
		AuthCodes:     len(s.authCodes),
		AccessTokens:  len(s.accessTokens),
		RefreshTokens: len(s.refreshTokens),
		PKCERequests:  len(s.pkceRequests),
	}
}

var _ Storage = (*MemoryStorage)(nil)
