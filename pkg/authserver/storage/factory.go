// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/mcp-authrelay/pkg/config"
)

// New creates the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", config.StorageTypeMemory:
		slog.Debug("using in-memory token storage")
		return NewMemoryStorage(), nil
	case config.StorageTypeRedis:
		slog.Debug("using redis token storage", "address", cfg.Redis.Address, "db", cfg.Redis.DB)
		return NewRedisStorage(ctx, RedisOptions{
			Address:   cfg.Redis.Address,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
