package httptracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/driftd/drift/internal/tracker"
)

func newTestTracker(t *testing.T, handler http.HandlerFunc) *HTTPTracker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/announce")
	require.NoError(t, err)
	return New(u.String(), u, 5*time.Second, "test/1.0")
}

func testRequest() tracker.AnnounceRequest {
	return tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			InfoHash: [20]byte{1},
			PeerID:   [20]byte{2},
			Port:     6881,
		},
		Event:   tracker.EventStarted,
		NumWant: 50,
	}
}

func TestAnnounceCompactPeers(t *testing.T) {
	trk := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("compact"))
		assert.Equal(t, "started", q.Get("event"))
		assert.Equal(t, "50", q.Get("numwant"))

		peers := []byte{1, 2, 3, 4, 0x1a, 0xe1} // 1.2.3.4:6881
		resp := map[string]any{
			"interval": int64(120),
			"complete": int64(1),
			"incomplete": int64(2),
			"peers":    peers,
		}
		b, _ := bencode.EncodeBytes(resp)
		_, _ = w.Write(b)
	})

	resp, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, resp.Interval)
	assert.Equal(t, int32(1), resp.Seeders)
	assert.Equal(t, int32(2), resp.Leechers)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "1.2.3.4:6881", resp.Peers[0].String())
}

func TestAnnounceFailureReason(t *testing.T) {
	trk := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := bencode.EncodeBytes(map[string]any{"failure reason": "unregistered torrent"})
		_, _ = w.Write(b)
	})

	_, err := trk.Announce(context.Background(), testRequest())
	require.Error(t, err)
	terr, ok := err.(*tracker.Error)
	require.True(t, ok)
	assert.Equal(t, "unregistered torrent", terr.FailureReason)
}

func TestAnnounceHTTPError(t *testing.T) {
	trk := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := trk.Announce(context.Background(), testRequest())
	require.Error(t, err)
	serr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, serr.Code)
}

func TestAnnounceInvalidBody(t *testing.T) {
	trk := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not bencode"))
	})

	_, err := trk.Announce(context.Background(), testRequest())
	assert.Equal(t, tracker.ErrDecode, err)
}
