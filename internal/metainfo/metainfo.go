// Package metainfo provides support for reading and writing content manifest files.
package metainfo

import (
	"errors"
	"io"
	"strings"

	"github.com/zeebo/bencode"
)

// MetaInfo is a manifest file dictionary. It carries the immutable info dict
// plus the tracker URLs advertised by the producer of the file.
type MetaInfo struct {
	Info         Info
	AnnounceList [][]string
}

// New returns a manifest from a bencoded stream.
func New(r io.Reader) (*MetaInfo, error) {
	var raw struct {
		Info         bencode.RawMessage `bencode:"info"`
		Announce     bencode.RawMessage `bencode:"announce"`
		AnnounceList bencode.RawMessage `bencode:"announce-list"`
	}
	if err := bencode.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Info) == 0 {
		return nil, errors.New("no info dict in manifest")
	}
	info, err := NewInfo(raw.Info)
	if err != nil {
		return nil, err
	}
	return &MetaInfo{
		Info:         *info,
		AnnounceList: parseAnnounceKeys(raw.Announce, raw.AnnounceList),
	}, nil
}

// parseAnnounceKeys builds the tracker tiers from the announce-list key,
// falling back to the single announce key. Unsupported URL schemes are
// dropped; decode errors leave the tier list empty.
func parseAnnounceKeys(announce, announceList bencode.RawMessage) [][]string {
	if len(announceList) > 0 {
		var raw [][]string
		if err := bencode.DecodeBytes(announceList, &raw); err != nil {
			return nil
		}
		var tiers [][]string
		for _, rawTier := range raw {
			var tier []string
			for _, tr := range rawTier {
				if isTrackerSupported(tr) {
					tier = append(tier, tr)
				}
			}
			if len(tier) > 0 {
				tiers = append(tiers, tier)
			}
		}
		return tiers
	}
	var s string
	if err := bencode.DecodeBytes(announce, &s); err == nil && isTrackerSupported(s) {
		return [][]string{{s}}
	}
	return nil
}

func isTrackerSupported(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// NewBytes creates a new bencoded manifest from the given info dict and trackers.
func NewBytes(info []byte, trackers [][]string) ([]byte, error) {
	mi := struct {
		Info         bencode.RawMessage `bencode:"info"`
		Announce     string             `bencode:"announce,omitempty"`
		AnnounceList [][]string         `bencode:"announce-list,omitempty"`
	}{
		Info: info,
	}
	if len(trackers) == 1 && len(trackers[0]) == 1 {
		mi.Announce = trackers[0][0]
	} else if len(trackers) > 0 {
		mi.AnnounceList = trackers
	}
	return bencode.EncodeBytes(mi)
}
