// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// defaultLocalTTL keeps the in-process tier hot just long enough to
// absorb request bursts without letting replicas drift apart.
const defaultLocalTTL = 30 * time.Second

// GetOptions control a single read-through lookup.
type GetOptions struct {
	// TTL is the shared-tier lifetime of a freshly computed value.
	TTL time.Duration
	// BypassShared skips the shared tier both ways. Discovery scans use
	// it so one replica's paging never feeds stale listings to another.
	BypassShared bool
}

// Manager is the read-through front of the cache. Reads consult the
// local tier, then the shared tier, then collapse concurrent computes
// for the same key into a single upstream call.
type Manager struct {
	local  *ttlcache.Cache[string, []byte]
	shared Store
	group  singleflight.Group
}

// NewManager builds a manager over the given shared tier. A nil shared
// store degrades to local-only caching.
func NewManager(shared Store, localTTL time.Duration) *Manager {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &Manager{
		local: ttlcache.New(ttlcache.Options[string, []byte]{}.
			SetDefaultTTL(localTTL)),
		shared: shared,
	}
}

// Get reads key through both tiers without computing anything.
func (m *Manager) Get(ctx context.Context, key string, bypassShared bool) ([]byte, bool) {
	if val, ok := m.local.Get(key); ok {
		return val, true
	}

	if m.shared == nil || bypassShared {
		return nil, false
	}

	val, ok, err := m.shared.Get(ctx, key)
	if err != nil {
		// A broken shared tier must not fail lookups, only slow them.
		log.Warn().Err(err).Str("key", key).Msg("shared cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	m.local.Set(key, val, ttlcache.DefaultTTL)
	return val, true
}

// Set writes through both tiers.
func (m *Manager) Set(ctx context.Context, key string, value []byte, opts GetOptions) {
	m.local.Set(key, value, ttlcache.DefaultTTL)

	if m.shared == nil || opts.BypassShared {
		return
	}
	if err := m.shared.Set(ctx, key, value, opts.TTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("shared cache write failed")
	}
}

// Delete removes key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.local.Delete(key)
	if m.shared == nil {
		return
	}
	if err := m.shared.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("shared cache delete failed")
	}
}

// GetOrCompute reads key through the tiers and, on a full miss, runs
// compute exactly once per key regardless of how many callers arrive
// concurrently. A successful compute is written through both tiers; a
// positive ttl from compute overrides opts.TTL, so one call site can
// store positive and negative answers with different lifetimes.
func (m *Manager) GetOrCompute(ctx context.Context, key string, opts GetOptions, compute func(ctx context.Context) ([]byte, time.Duration, error)) ([]byte, error) {
	if val, ok := m.Get(ctx, key, opts.BypassShared); ok {
		return val, nil
	}

	val, err, _ := m.group.Do(key, func() (any, error) {
		// A concurrent caller may have already filled the key between
		// our miss and winning the flight.
		if val, ok := m.Get(ctx, key, opts.BypassShared); ok {
			return val, nil
		}

		val, ttl, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 {
			opts.TTL = ttl
		}
		m.Set(ctx, key, val, opts)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// Close releases the local tier. The shared store is owned by the
// caller and closed separately.
func (m *Manager) Close() {
	m.local.Close()
}
