// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ory/fosite"
	"github.com/redis/go-redis/v9"
)

// Key types used to namespace Redis keys.
const (
	KeyTypeClient       = "client"
	KeyTypeJWT          = "jwt"
	KeyTypeAuthCode     = "authcode"
	KeyTypeInvalidated  = "invalidated"
	KeyTypeAccess       = "access"
	KeyTypeRefresh      = "refresh"
	KeyTypePKCE         = "pkce"
	KeyTypeReqIDAccess  = "reqid:access"
	KeyTypeReqIDRefresh = "reqid:refresh"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

func redisKey(prefix, keyType, id string) string {
	return prefix + keyType + ":" + id
}

// RedisStorage keeps grants in Redis so several relay replicas can serve
// the same clients. Entries expire with the token they describe.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisOptions configures NewRedisStorage.
type RedisOptions struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStorage connects to a single Redis node and verifies the
// connection with PING.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	if opts.Address == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, opts.KeyPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Health pings Redis.
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) key(keyType, id string) string {
	return redisKey(s.keyPrefix, keyType, id)
}

// RegisterClient stores a client. Public clients created through dynamic
// registration expire after DefaultPublicClientTTL.
func (s *RedisStorage) RegisterClient(ctx context.Context, client fosite.Client) error {
	data, err := json.Marshal(newStoredClient(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	ttl := time.Duration(0)
	if client.IsPublic() {
		ttl = DefaultPublicClientTTL
	}
	return s.client.Set(ctx, s.key(KeyTypeClient, client.GetID()), data, ttl).Err()
}

// GetClient loads a client by ID.
func (s *RedisStorage) GetClient(ctx context.Context, id string) (fosite.Client, error) {
	data, err := s.client.Get(ctx, s.key(KeyTypeClient, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound("Client")
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var stored storedClient
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return stored.client(), nil
}

// ClientAssertionJWTValid returns fosite.ErrJTIKnown for a remembered JTI.
func (s *RedisStorage) ClientAssertionJWTValid(ctx context.Context, jti string) error {
	exists, err := s.client.Exists(ctx, s.key(KeyTypeJWT, jti)).Result()
	if err != nil {
		return fmt.Errorf("failed to check JWT: %w", err)
	}
	if exists > 0 {
		return fosite.ErrJTIKnown
	}
	return nil
}

// SetClientAssertionJWT remembers jti until exp.
func (s *RedisStorage) SetClientAssertionJWT(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(KeyTypeJWT, jti), "1", ttl).Err()
}

// CreateAuthorizeCodeSession stores the request behind an authorization code.
func (s *RedisStorage) CreateAuthorizeCodeSession(ctx context.Context, code string, request fosite.Requester) error {
	if err := validateCreate(code, request, "authorization code"); err != nil {
		return err
	}
	return s.setRequester(ctx, s.key(KeyTypeAuthCode, code), request,
		ttlFor(request, fosite.AuthorizeCode, DefaultAuthCodeTTL))
}

// GetAuthorizeCodeSession returns the request for code. A used code returns
// the request together with fosite.ErrInvalidatedAuthorizeCode.
func (s *RedisStorage) GetAuthorizeCodeSession(ctx context.Context, code string, _ fosite.Session) (fosite.Requester, error) {
	invalidated, err := s.client.Exists(ctx, s.key(KeyTypeInvalidated, code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check invalidation status: %w", err)
	}

	request, err := s.getRequester(ctx, s.key(KeyTypeAuthCode, code), "Authorization code")
	if err != nil {
		return nil, err
	}
	if invalidated > 0 {
		return request, fosite.ErrInvalidatedAuthorizeCode
	}
	return request, nil
}

// InvalidateAuthorizeCodeSession marks code as used.
func (s *RedisStorage) InvalidateAuthorizeCodeSession(ctx context.Context, code string) error {
	exists, err := s.client.Exists(ctx, s.key(KeyTypeAuthCode, code)).Result()
	if err != nil {
		return fmt.Errorf("failed to check authorization code: %w", err)
	}
	if exists == 0 {
		return notFound("Authorization code")
	}
	return s.client.Set(ctx, s.key(KeyTypeInvalidated, code), "1", DefaultInvalidatedCodeTTL).Err()
}

// CreateAccessTokenSession stores an access token and indexes it by request ID.
func (s *RedisStorage) CreateAccessTokenSession(ctx context.Context, signature string, request fosite.Requester) error {
	if err := validateCreate(signature, request, "access token signature"); err != nil {
		return err
	}
	return s.setIndexedRequester(ctx, KeyTypeAccess, KeyTypeReqIDAccess, signature, request,
		ttlFor(request, fosite.AccessToken, DefaultAccessTokenTTL))
}

// GetAccessTokenSession returns the request behind an access token signature.
func (s *RedisStorage) GetAccessTokenSession(ctx context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.getRequester(ctx, s.key(KeyTypeAccess, signature), "Access token")
}

// DeleteAccessTokenSession removes an access token.
func (s *RedisStorage) DeleteAccessTokenSession(ctx context.Context, signature string) error {
	return s.deleteIndexedRequester(ctx, KeyTypeAccess, KeyTypeReqIDAccess, signature, "Access token")
}

// CreateRefreshTokenSession stores a refresh token and indexes it by request ID.
func (s *RedisStorage) CreateRefreshTokenSession(
	ctx context.Context, signature string, _ string, request fosite.Requester,
) error {
	if err := validateCreate(signature, request, "refresh token signature"); err != nil {
		return err
	}
	return s.setIndexedRequester(ctx, KeyTypeRefresh, KeyTypeReqIDRefresh, signature, request,
		ttlFor(request, fosite.RefreshToken, DefaultRefreshTokenTTL))
}

// GetRefreshTokenSession returns the request behind a refresh token signature.
func (s *RedisStorage) GetRefreshTokenSession(ctx context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.getRequester(ctx, s.key(KeyTypeRefresh, signature), "Refresh token")
}

// DeleteRefreshTokenSession removes a refresh token.
func (s *RedisStorage) DeleteRefreshTokenSession(ctx context.Context, signature string) error {
	return s.deleteIndexedRequester(ctx, KeyTypeRefresh, KeyTypeReqIDRefresh, signature, "Refresh token")
}

// RotateRefreshToken drops the presented refresh token and every access
// token issued under the same grant.
func (s *RedisStorage) RotateRefreshToken(ctx context.Context, requestID string, refreshTokenSignature string) error {
	_ = s.client.Del(ctx, s.key(KeyTypeRefresh, refreshTokenSignature)).Err()
	_ = s.client.SRem(ctx, s.key(KeyTypeReqIDRefresh, requestID), refreshTokenSignature).Err()
	return s.revokeByRequestID(ctx, KeyTypeAccess, KeyTypeReqIDAccess, requestID)
}

// RevokeAccessToken removes every access token issued under requestID.
func (s *RedisStorage) RevokeAccessToken(ctx context.Context, requestID string) error {
	return s.revokeByRequestID(ctx, KeyTypeAccess, KeyTypeReqIDAccess, requestID)
}

// RevokeRefreshToken removes every refresh token issued under requestID.
func (s *RedisStorage) RevokeRefreshToken(ctx context.Context, requestID string) error {
	return s.revokeByRequestID(ctx, KeyTypeRefresh, KeyTypeReqIDRefresh, requestID)
}

// RevokeRefreshTokenMaybeGracePeriod revokes immediately; there is no grace period.
func (s *RedisStorage) RevokeRefreshTokenMaybeGracePeriod(ctx context.Context, requestID string, _ string) error {
	return s.RevokeRefreshToken(ctx, requestID)
}

// CreatePKCERequestSession stores the PKCE challenge request.
func (s *RedisStorage) CreatePKCERequestSession(ctx context.Context, signature string, request fosite.Requester) error {
	if err := validateCreate(signature, request, "PKCE signature"); err != nil {
		return err
	}
	return s.setRequester(ctx, s.key(KeyTypePKCE, signature), request,
		ttlFor(request, fosite.AuthorizeCode, DefaultAuthCodeTTL))
}

// GetPKCERequestSession returns the PKCE challenge request.
func (s *RedisStorage) GetPKCERequestSession(ctx context.Context, signature string, _ fosite.Session) (fosite.Requester, error) {
	return s.getRequester(ctx, s.key(KeyTypePKCE, signature), "PKCE request")
}

// DeletePKCERequestSession removes the PKCE challenge request.
func (s *RedisStorage) DeletePKCERequestSession(ctx context.Context, signature string) error {
	deleted, err := s.client.Del(ctx, s.key(KeyTypePKCE, signature)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete PKCE request: %w", err)
	}
	if deleted == 0 {
		return notFound("PKCE request")
	}
	return nil
}

func (s *RedisStorage) setRequester(ctx context.Context, key string, request fosite.Requester, ttl time.Duration) error {
	data, err := marshalRequester(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// setIndexedRequester stores the token and adds its signature to the
// request-ID set used for revocation. If the index cannot be written the
// token is deleted again so that no unrevocable token is left behind.
func (s *RedisStorage) setIndexedRequester(
	ctx context.Context, keyType, indexType, signature string, request fosite.Requester, ttl time.Duration,
) error {
	key := s.key(keyType, signature)
	if err := s.setRequester(ctx, key, request, ttl); err != nil {
		return err
	}

	indexKey := s.key(indexType, request.GetID())
	if err := s.client.SAdd(ctx, indexKey, signature).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		return err
	}
	if err := s.client.Expire(ctx, indexKey, ttl).Err(); err != nil {
		_ = s.client.Del(ctx, key).Err()
		_ = s.client.SRem(ctx, indexKey, signature).Err()
		return err
	}
	return nil
}

func (s *RedisStorage) getRequester(ctx context.Context, key, what string) (fosite.Requester, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(what)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return unmarshalRequester(ctx, data, s)
}

func (s *RedisStorage) deleteIndexedRequester(ctx context.Context, keyType, indexType, signature, what string) error {
	key := s.key(keyType, signature)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound(what)
		}
		return fmt.Errorf("failed to get %s: %w", what, err)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}

	var stored storedRequest
	if err := json.Unmarshal(data, &stored); err == nil && stored.RequestID != "" {
		_ = s.client.SRem(ctx, s.key(indexType, stored.RequestID), signature).Err()
	}
	return nil
}

func (s *RedisStorage) revokeByRequestID(ctx context.Context, keyType, indexType, requestID string) error {
	indexKey := s.key(indexType, requestID)
	signatures, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read %s index: %w", keyType, err)
	}

	keys := make([]string, 0, len(signatures)+1)
	for _, sig := range signatures {
		keys = append(keys, s.key(keyType, sig))
	}
	keys = append(keys, indexKey)
	return s.client.Del(ctx, keys...).Err()
}

var _ Storage = (*RedisStorage)(nil)
