// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package cache implements the pipeline's two-tier read-through cache:
// a short-lived in-process tier in front of a shared Redis tier.
package cache

import (
	"context"
	"time"
)

// Store is the shared cache tier. Implementations must treat a miss as
// (nil, false, nil), reserving the error for transport failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
