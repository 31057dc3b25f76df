// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"context"
	"encoding/binary"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflexy/dfindexer/internal/domain"
)

// fakeTracker is a loopback UDP server speaking just enough BEP 15 to
// exercise the client.
type fakeTracker struct {
	conn     net.PacketConn
	stats    domain.TrackerStats
	connID   uint64
	connects atomic.Int32
	scrapes  atomic.Int32
	// mangleTID makes every reply carry a wrong transaction id.
	mangleTID bool
	// silent drops every request on the floor.
	silent bool
}

func newFakeTracker(t *testing.T, stats domain.TrackerStats) *fakeTracker {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ft := &fakeTracker{conn: conn, stats: stats, connID: 0x1122334455667788}
	go ft.serve()
	t.Cleanup(func() { _ = conn.Close() })
	return ft
}

func (ft *fakeTracker) url() string {
	return "udp://" + ft.conn.LocalAddr().String() + "/announce"
}

func (ft *fakeTracker) serve() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := ft.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		if ft.silent || n < 16 {
			continue
		}

		action := binary.BigEndian.Uint32(buf[8:12])
		tid := binary.BigEndian.Uint32(buf[12:16])
		if ft.mangleTID {
			tid++
		}

		switch action {
		case actionConnect:
			ft.connects.Add(1)
			resp := make([]byte, connectResponseLen)
			binary.BigEndian.PutUint32(resp[0:4], actionConnect)
			binary.BigEndian.PutUint32(resp[4:8], tid)
			binary.BigEndian.PutUint64(resp[8:16], ft.connID)
			_, _ = ft.conn.WriteTo(resp, addr)
		case actionScrape:
			ft.scrapes.Add(1)
			resp := make([]byte, scrapeResponseLen)
			binary.BigEndian.PutUint32(resp[0:4], actionScrape)
			binary.BigEndian.PutUint32(resp[4:8], tid)
			binary.BigEndian.PutUint32(resp[8:12], uint32(ft.stats.Seeders))
			binary.BigEndian.PutUint32(resp[12:16], uint32(ft.stats.Completed))
			binary.BigEndian.PutUint32(resp[16:20], uint32(ft.stats.Leechers))
			_, _ = ft.conn.WriteTo(resp, addr)
		}
	}
}

func testInfoHash(t *testing.T) domain.InfoHash {
	t.Helper()
	ih, err := domain.ParseInfoHash("0123456789abcdef0123456789abcdef01234567")
	require.NoError(t, err)
	return ih
}

func TestClientScrape(t *testing.T) {
	t.Parallel()

	want := domain.TrackerStats{Seeders: 120, Completed: 33, Leechers: 45}
	ft := newFakeTracker(t, want)

	c := NewClient(time.Second, 0)
	stats, err := c.Scrape(context.Background(), ft.url(), testInfoHash(t))
	require.NoError(t, err)
	assert.Equal(t, want, stats)
}

func TestClientReusesConnectionID(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{Seeders: 1})
	c := NewClient(time.Second, 0)
	ih := testInfoHash(t)

	for i := 0; i < 3; i++ {
		_, err := c.Scrape(context.Background(), ft.url(), ih)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), ft.connects.Load())
	assert.Equal(t, int32(3), ft.scrapes.Load())
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{})
	ft.silent = true

	c := NewClient(50*time.Millisecond, 1)
	_, err := c.Scrape(context.Background(), ft.url(), testInfoHash(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClientRejectsMangledTransactionID(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{})
	ft.mangleTID = true

	c := NewClient(200*time.Millisecond, 0)
	_, err := c.Scrape(context.Background(), ft.url(), testInfoHash(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestClientCanceledContext(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(time.Second, 2)
	_, err := c.Scrape(ctx, ft.url(), testInfoHash(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "with port and path",
			input: "udp://tracker.example.com:6969/announce",
			want:  "tracker.example.com:6969",
		},
		{
			name:  "default port",
			input: "udp://tracker.example.com/announce",
			want:  "tracker.example.com:80",
		},
		{
			name:  "no path",
			input: "udp://tracker.example.com:1337",
			want:  "tracker.example.com:1337",
		},
		{
			name:  "uppercase scheme",
			input: "UDP://tracker.example.com:6969",
			want:  "tracker.example.com:6969",
		},
		{
			name:    "http tracker",
			input:   "http://tracker.example.com/announce",
			wantErr: true,
		},
		{
			name:    "empty host",
			input:   "udp:///announce",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
