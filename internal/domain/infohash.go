// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"encoding/base32"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInfoHash is returned when an info-hash cannot be decoded from
// its hex or base32 transit encoding. It is a local input error and must
// never be counted against a circuit breaker.
var ErrInvalidInfoHash = errors.New("invalid info hash")

// InfoHash is the 20-byte identifier of a torrent's content. It is the
// primary key for metadata and tracker lookups.
type InfoHash [20]byte

// ParseInfoHash decodes an info-hash from its 40-character hex or
// 32-character base32 form. Equality is case-insensitive.
func ParseInfoHash(s string) (InfoHash, error) {
	var ih InfoHash

	s = strings.TrimSpace(s)
	switch len(s) {
	case 40:
		raw, err := hex.DecodeString(strings.ToLower(s))
		if err != nil {
			return ih, errors.Wrapf(ErrInvalidInfoHash, "hex decode %q", s)
		}
		copy(ih[:], raw)
		return ih, nil
	case 32:
		raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
		if err != nil || len(raw) != 20 {
			return ih, errors.Wrapf(ErrInvalidInfoHash, "base32 decode %q", s)
		}
		copy(ih[:], raw)
		return ih, nil
	default:
		return ih, errors.Wrapf(ErrInvalidInfoHash, "length %d", len(s))
	}
}

// String returns the canonical lowercase hex encoding.
func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// Bytes returns the raw 20-byte value.
func (ih InfoHash) Bytes() []byte {
	b := make([]byte, 20)
	copy(b, ih[:])
	return b
}

// IsZero reports whether the hash is the zero value.
func (ih InfoHash) IsZero() bool {
	return ih == InfoHash{}
}
