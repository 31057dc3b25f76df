// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"context"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/domain"
)

const (
	defaultTimeout = time.Second
	defaultRetries = 2

	// connIDWindow is how long a connection id from a connect exchange
	// stays valid for follow-up scrapes against the same endpoint.
	connIDWindow = 60 * time.Second
)

type connEntry struct {
	id        uint64
	expiresAt time.Time
}

// Client scrapes single info-hashes from UDP trackers, reusing
// connection ids per endpoint within their validity window.
type Client struct {
	timeout time.Duration
	retries uint

	mu    sync.Mutex
	conns map[string]connEntry
}

// NewClient builds a client. Zero timeout or retries fall back to the
// defaults of 1s and 2 extra attempts.
func NewClient(timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if retries < 0 {
		retries = defaultRetries
	}
	return &Client{
		timeout: timeout,
		retries: uint(retries),
		conns:   make(map[string]connEntry),
	}
}

// ParseEndpoint extracts the host:port a udp:// tracker URL points at.
// A missing port defaults to 80 to match common tracker lists.
func ParseEndpoint(trackerURL string) (string, error) {
	stripped := strings.TrimSpace(trackerURL)
	if !strings.HasPrefix(strings.ToLower(stripped), "udp://") {
		return "", errors.Wrapf(domain.ErrUpstreamUnavailable, "not a udp tracker: %s", trackerURL)
	}

	rest := stripped[len("udp://"):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", errors.Wrapf(domain.ErrUpstreamUnavailable, "empty tracker host: %s", trackerURL)
	}
	if !strings.Contains(rest, ":") {
		rest += ":80"
	}
	return rest, nil
}

// Scrape asks one tracker for the swarm stats of one info-hash.
func (c *Client) Scrape(ctx context.Context, trackerURL string, ih domain.InfoHash) (domain.TrackerStats, error) {
	var stats domain.TrackerStats

	endpoint, err := ParseEndpoint(trackerURL)
	if err != nil {
		return stats, err
	}

	err = retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(domain.ErrUpstreamUnavailable, err.Error())
			}
			var exchangeErr error
			stats, exchangeErr = c.exchange(ctx, endpoint, ih)
			return exchangeErr
		},
		retry.RetryIf(func(err error) bool { return ctx.Err() == nil }),
		retry.Attempts(c.retries+1),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Debug().Err(err).Str("tracker", endpoint).Str("hash", ih.String()).Msg("tracker scrape failed")
		return domain.TrackerStats{}, err
	}
	return stats, nil
}

// exchange performs one connect-if-needed plus scrape round trip.
func (c *Client) exchange(ctx context.Context, endpoint string, ih domain.InfoHash) (domain.TrackerStats, error) {
	var stats domain.TrackerStats

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", endpoint)
	if err != nil {
		return stats, errors.Wrapf(domain.ErrUpstreamUnavailable, "dial %s: %v", endpoint, err)
	}
	defer conn.Close()

	connID, fresh, err := c.connectionID(ctx, conn, endpoint)
	if err != nil {
		return stats, err
	}

	stats, err = c.scrape(ctx, conn, connID, ih)
	if err != nil && !fresh {
		// A stale cached connection id is the likely culprit. Drop it
		// and redo the full handshake once within this attempt.
		c.dropConnectionID(endpoint)
		connID, _, cerr := c.connectionID(ctx, conn, endpoint)
		if cerr != nil {
			return stats, cerr
		}
		return c.scrape(ctx, conn, connID, ih)
	}
	return stats, err
}

// connectionID returns a valid connection id for endpoint, performing
// the connect exchange when no unexpired one is cached. The bool marks
// an id obtained in this call.
func (c *Client) connectionID(ctx context.Context, conn net.Conn, endpoint string) (uint64, bool, error) {
	c.mu.Lock()
	entry, ok := c.conns[endpoint]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.id, false, nil
	}

	tid := rand.Uint32()
	if err := c.roundTrip(ctx, conn, encodeConnectRequest(tid)); err != nil {
		return 0, false, err
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, false, errors.Wrapf(domain.ErrUpstreamUnavailable, "connect read %s: %v", endpoint, err)
	}

	id, err := decodeConnectResponse(buf[:n], tid)
	if err != nil {
		return 0, false, err
	}

	c.mu.Lock()
	c.conns[endpoint] = connEntry{id: id, expiresAt: time.Now().Add(connIDWindow)}
	c.mu.Unlock()

	return id, true, nil
}

func (c *Client) dropConnectionID(endpoint string) {
	c.mu.Lock()
	delete(c.conns, endpoint)
	c.mu.Unlock()
}

func (c *Client) scrape(ctx context.Context, conn net.Conn, connID uint64, ih domain.InfoHash) (domain.TrackerStats, error) {
	var stats domain.TrackerStats

	tid := rand.Uint32()
	if err := c.roundTrip(ctx, conn, encodeScrapeRequest(connID, tid, ih)); err != nil {
		return stats, err
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return stats, errors.Wrapf(domain.ErrUpstreamUnavailable, "scrape read: %v", err)
	}
	return decodeScrapeResponse(buf[:n], tid)
}

// roundTrip writes one datagram and arms the read deadline for its
// reply, honoring an earlier context deadline when one is set.
func (c *Client) roundTrip(ctx context.Context, conn net.Conn, packet []byte) error {
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return errors.Wrap(domain.ErrUpstreamUnavailable, err.Error())
	}
	if _, err := conn.Write(packet); err != nil {
		return errors.Wrapf(domain.ErrUpstreamUnavailable, "send: %v", err)
	}
	return nil
}
