// Package magnet parses and formats magnet links.
package magnet

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/multiformats/go-multihash"
)

// Magnet holds the parts of a magnet link the engine cares about: the info
// hash, a display name, tracker tiers and direct peer addresses.
type Magnet struct {
	InfoHash [20]byte
	Name     string
	Trackers [][]string
	Peers    []string
}

// New parses a magnet link.
func New(s string) (*Magnet, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "magnet" {
		return nil, errors.New("not a magnet link")
	}
	params := u.Query()

	xt, ok := params["xt"]
	if !ok || len(xt) == 0 {
		return nil, errors.New("missing xt param")
	}
	ih, err := parseExactTopic(xt[0])
	if err != nil {
		return nil, err
	}

	m := &Magnet{
		InfoHash: ih,
		Trackers: parseTrackerTiers(params),
		Peers:    params["x.pe"],
	}
	if dn := params["dn"]; len(dn) != 0 {
		m.Name = dn[0]
	}
	return m, nil
}

// String formats the link back into magnet form. Tiers of more than one
// tracker use the numbered "tr.N" keys.
func (m *Magnet) String() string {
	var b strings.Builder
	b.Grow(2048)
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(hex.EncodeToString(m.InfoHash[:]))
	if m.Name != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(m.Name))
	}
	for i, tier := range m.Trackers {
		if len(tier) == 1 {
			b.WriteString("&tr=")
			b.WriteString(url.QueryEscape(tier[0]))
			continue
		}
		for _, tr := range tier {
			b.WriteString("&tr.")
			b.WriteString(strconv.Itoa(i))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(tr))
		}
	}
	for _, p := range m.Peers {
		b.WriteString("&x.pe=")
		b.WriteString(p)
	}
	return b.String()
}

// parseTrackerTiers collects the plain "tr" params and the numbered "tr.N"
// tiers, ordered with plain trackers first and tiers by their number.
func parseTrackerTiers(params url.Values) [][]string {
	type tier struct {
		trackers []string
		order    int
	}
	var tiers []tier
	for key, vals := range params {
		switch {
		case key == "tr":
			// Negative order keeps plain trackers ahead of numbered tiers,
			// preserving their position in the link.
			for i, tr := range vals {
				tiers = append(tiers, tier{trackers: []string{tr}, order: i - len(vals)})
			}
		case strings.HasPrefix(key, "tr."):
			if n, err := strconv.Atoi(key[3:]); err == nil && n >= 0 {
				tiers = append(tiers, tier{trackers: vals, order: n})
			}
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].order < tiers[j].order })
	ret := make([][]string, len(tiers))
	for i, ti := range tiers {
		ret[i] = ti.trackers
	}
	return ret
}

// parseExactTopic decodes the xt param into an info hash. "urn:btih" topics
// carry a hex or base32 hash, "urn:btmh" topics a hex encoded multihash.
func parseExactTopic(xt string) (ih [20]byte, err error) {
	var raw []byte
	switch {
	case strings.HasPrefix(xt, "urn:btih:"):
		raw, err = decodeInfoHash(xt[9:])
	case strings.HasPrefix(xt, "urn:btmh:"):
		raw, err = multihash.FromHexString(xt[9:])
		if err == nil && len(raw) != 20 {
			err = errors.New("invalid multihash (len != 20)")
		}
	default:
		err = errors.New("invalid xt param: must start with \"urn:btih:\" or \"urn:btmh\"")
	}
	if err != nil {
		return ih, err
	}
	copy(ih[:], raw)
	return ih, nil
}

func decodeInfoHash(s string) ([]byte, error) {
	switch len(s) {
	case 40:
		return hex.DecodeString(s)
	case 32:
		return base32.StdEncoding.DecodeString(s)
	}
	return nil, errors.New("info hash must be 32 or 40 characters")
}
