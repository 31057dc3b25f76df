// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// MemoryStore is an in-process Store. It stands in for the shared tier
// in tests and in single-instance deployments without Redis.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New(ttlcache.Options[string, []byte]{}.
			SetDefaultTTL(defaultTTL)),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Close()
	return nil
}
