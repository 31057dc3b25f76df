// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package breaker guards calls to external dependencies with per-key
// circuit breakers. A key is one dependency endpoint, for example a
// tracker host or the metadata service base URL.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/domain"
)

// State is the breaker lifecycle position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a breaker.
type Config struct {
	// FailureThreshold is the number of consecutive transient failures
	// that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before allowing a
	// single probe call.
	Cooldown time.Duration
	// IsFailure classifies an error. Only errors it reports true for
	// count against the threshold; everything else, including definitive
	// negative answers, is treated as a success.
	IsFailure func(error) bool
	// OnStateChange fires on every transition.
	OnStateChange func(key string, from, to State)
}

// DefaultConfig matches the pipeline's production settings.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
		IsFailure:        domain.IsTransient,
	}
}

// Breaker is a single circuit. Use a Registry to get one per dependency
// key.
type Breaker struct {
	key string
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeActive bool
}

func newBreaker(key string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = domain.IsTransient
	}
	return &Breaker{key: key, cfg: cfg, state: StateClosed}
}

// Do runs fn under the breaker. When the circuit is open and the
// cooldown has not elapsed, or another probe is already in flight, Do
// fails fast with ErrUpstreamUnavailable without invoking fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probing, err := b.beforeCall()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.afterCall(probing, err)
	return err
}

// beforeCall decides admission. The returned bool marks the caller as
// the half-open probe so afterCall can release the probe slot.
func (b *Breaker) beforeCall() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false, errors.Wrapf(domain.ErrUpstreamUnavailable, "circuit open for %s", b.key)
		}
		b.transitionTo(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probeActive {
			return false, errors.Wrapf(domain.ErrUpstreamUnavailable, "probe in flight for %s", b.key)
		}
		b.probeActive = true
		return true, nil
	default:
		return false, errors.Wrapf(domain.ErrUpstreamUnavailable, "circuit in unknown state for %s", b.key)
	}
}

func (b *Breaker) afterCall(probing bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probing {
		b.probeActive = false
	}

	if err != nil && b.cfg.IsFailure(err) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			b.transitionTo(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.transitionTo(StateClosed)
	}
}

func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	if next != StateHalfOpen {
		b.failures = 0
	}

	log.Debug().
		Str("key", b.key).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("circuit breaker state change")

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.key, prev, next)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeActive = false
	b.transitionTo(StateClosed)
}
