// Package httptracker announces swarms to HTTP(S) trackers.
package httptracker

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zeebo/bencode"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/tracker"
)

// Response bodies larger than this are assumed to be garbage.
const responseSizeLimit = 1 << 20

// HTTPTracker speaks the original HTTP announce protocol with the compact
// peer list extension. It implements tracker.Tracker.
type HTTPTracker struct {
	rawURL    string
	client    *http.Client
	userAgent string
	trackerID string
	log       logger.Logger
}

var _ tracker.Tracker = (*HTTPTracker)(nil)

// New returns an HTTPTracker announcing to the given URL.
// u must be the parsed form of rawURL.
func New(rawURL string, u *url.URL, timeout time.Duration, userAgent string) *HTTPTracker {
	return &HTTPTracker{
		rawURL:    rawURL,
		userAgent: userAgent,
		log:       logger.New("tracker " + u.Scheme + "://" + u.Host + u.Path),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout: timeout,
				DisableKeepAlives:   true,
			},
		},
	}
}

// URL returns the announce URL as it was given.
func (t *HTTPTracker) URL() string {
	return t.rawURL
}

// announceReply is the bencoded body of a tracker announce response.
type announceReply struct {
	FailureReason string             `bencode:"failure reason"`
	RetryIn       string             `bencode:"retry in"`
	Warning       string             `bencode:"warning message"`
	Interval      int32              `bencode:"interval"`
	MinInterval   int32              `bencode:"min interval"`
	TrackerID     string             `bencode:"tracker id"`
	Seeders       int32              `bencode:"complete"`
	Leechers      int32              `bencode:"incomplete"`
	Peers         bencode.RawMessage `bencode:"peers"`
	ExternalIP    []byte             `bencode:"external ip"`
}

// Announce sends one announce request and parses the reply.
func (t *HTTPTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	u, err := t.announceURL(req)
	if err != nil {
		return nil, err
	}
	t.log.Debugf("announcing to %q", u)

	body, err := t.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var reply announceReply
	if err = bencode.DecodeBytes(body, &reply); err != nil {
		return nil, tracker.ErrDecode
	}
	if reply.Warning != "" {
		t.log.Warning(reply.Warning)
	}
	if reply.FailureReason != "" {
		retryIn, _ := strconv.Atoi(reply.RetryIn)
		return nil, &tracker.Error{
			FailureReason: reply.FailureReason,
			RetryIn:       time.Duration(retryIn) * time.Minute,
		}
	}
	if reply.TrackerID != "" {
		t.trackerID = reply.TrackerID
	}

	peers, err := reply.peerList()
	if err != nil {
		return nil, err
	}
	peers = dropEchoedAddress(peers, reply.ExternalIP)

	return &tracker.AnnounceResponse{
		Interval:       time.Duration(reply.Interval) * time.Second,
		MinInterval:    time.Duration(reply.MinInterval) * time.Second,
		Seeders:        reply.Seeders,
		Leechers:       reply.Leechers,
		WarningMessage: reply.Warning,
		Peers:          peers,
	}, nil
}

func (t *HTTPTracker) announceURL(req tracker.AnnounceRequest) (string, error) {
	u, err := url.Parse(t.rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("info_hash", string(req.Torrent.InfoHash[:]))
	q.Set("peer_id", string(req.Torrent.PeerID[:]))
	q.Set("port", strconv.Itoa(req.Torrent.Port))
	q.Set("uploaded", strconv.FormatInt(req.Torrent.BytesUploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Torrent.BytesDownloaded, 10))
	q.Set("left", strconv.FormatInt(req.Torrent.BytesLeft, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("numwant", strconv.Itoa(req.NumWant))
	if req.Event != tracker.EventNone {
		q.Set("event", req.Event.String())
	}
	if t.trackerID != "" {
		q.Set("trackerid", t.trackerID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *HTTPTracker) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseSizeLimit))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Header: resp.Header,
			Body:   string(body),
		}
	}
	return body, nil
}

// peerList decodes the peers key, accepting both the compact byte string
// model and the legacy dictionary model.
func (r *announceReply) peerList() ([]*net.TCPAddr, error) {
	if len(r.Peers) == 0 {
		return nil, nil
	}
	if r.Peers[0] == 'l' {
		var dicts []struct {
			IP   string `bencode:"ip"`
			Port uint16 `bencode:"port"`
		}
		if err := bencode.DecodeBytes(r.Peers, &dicts); err != nil {
			return nil, tracker.ErrDecode
		}
		addrs := make([]*net.TCPAddr, len(dicts))
		for i, d := range dicts {
			addrs[i] = &net.TCPAddr{IP: net.ParseIP(d.IP), Port: int(d.Port)}
		}
		return addrs, nil
	}
	var compact []byte
	if err := bencode.DecodeBytes(r.Peers, &compact); err != nil {
		return nil, tracker.ErrDecode
	}
	return tracker.DecodePeersCompact(compact)
}

// Some trackers echo the announcing client's own address back in the peer
// list. Remove it so the swarm does not dial itself.
func dropEchoedAddress(peers []*net.TCPAddr, own []byte) []*net.TCPAddr {
	if len(own) == 0 {
		return peers
	}
	for i, p := range peers {
		if bytes.Equal(p.IP, own) {
			peers[i] = peers[len(peers)-1]
			return peers[:len(peers)-1]
		}
	}
	return peers
}
