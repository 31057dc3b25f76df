// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "github.com/pkg/errors"

var (
	// ErrUpstreamUnavailable marks a transient dependency failure,
	// including requests short-circuited by an open breaker.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound marks a definitive negative answer from a dependency.
	// It is an answer, not a failure, and never trips a breaker.
	ErrNotFound = errors.New("not found")

	// ErrMalformedResponse marks a dependency reply that failed
	// structural validation and was discarded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidMagnet marks a magnet link that does not carry a
	// decodable btih info-hash.
	ErrInvalidMagnet = errors.New("invalid magnet link")
)

// IsTransient reports whether err represents a failure worth retrying or
// counting against a circuit breaker.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrMalformedResponse)
}

// IsNotFound reports whether err is a definitive negative answer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
