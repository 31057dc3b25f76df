// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package breaker

import "sync"

// Registry hands out one breaker per dependency key, creating them
// lazily with a shared config.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a registry. Zero-value config fields fall back to
// defaults.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for key, creating it on first use. Breakers
// for distinct keys degrade independently.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = newBreaker(key, r.cfg)
		r.breakers[key] = b
	}
	return b
}

// States snapshots every known breaker's state, keyed by dependency.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for key, b := range r.breakers {
		out[key] = b.State()
	}
	return out
}
