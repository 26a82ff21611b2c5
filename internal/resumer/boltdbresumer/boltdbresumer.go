// Package boltdbresumer provides a Resumer implementation that uses a Bolt database file as storage.
package boltdbresumer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Keys for the persistent storage.
var Keys = struct {
	InfoHash        []byte
	Name            []byte
	Dest            []byte
	Port            []byte
	Trackers        []byte
	FixedPeers      []byte
	Info            []byte
	Bitfield        []byte
	AddedAt         []byte
	BytesDownloaded []byte
	BytesUploaded   []byte
	BytesWasted     []byte
	SeededFor       []byte
	Started         []byte
}{
	InfoHash:        []byte("info_hash"),
	Name:            []byte("name"),
	Dest:            []byte("dest"),
	Port:            []byte("port"),
	Trackers:        []byte("trackers"),
	FixedPeers:      []byte("fixed_peers"),
	Info:            []byte("info"),
	Bitfield:        []byte("bitfield"),
	AddedAt:         []byte("added_at"),
	BytesDownloaded: []byte("bytes_downloaded"),
	BytesUploaded:   []byte("bytes_uploaded"),
	BytesWasted:     []byte("bytes_wasted"),
	SeededFor:       []byte("seeded_for"),
	Started:         []byte("started"),
}

// Resumer saves and loads resume info of a transfer in a BoltDB database.
type Resumer struct {
	db     *bolt.DB
	bucket []byte
}

// New returns a new Resumer. Creates the bucket if it does not exist.
func New(db *bolt.DB, bucket []byte) (*Resumer, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucket)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{
		db:     db,
		bucket: bucket,
	}, nil
}

// Write the spec of the transfer with the given ID.
func (r *Resumer) Write(transferID string, spec *Spec) error {
	trackers, err := json.Marshal(spec.Trackers)
	if err != nil {
		return err
	}
	fixedPeers, err := json.Marshal(spec.FixedPeers)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists([]byte(transferID))
		if err != nil {
			return err
		}
		_ = b.Put(Keys.InfoHash, spec.InfoHash)
		_ = b.Put(Keys.Name, []byte(spec.Name))
		_ = b.Put(Keys.Dest, []byte(spec.Dest))
		_ = b.Put(Keys.Port, []byte(strconv.Itoa(spec.Port)))
		_ = b.Put(Keys.Trackers, trackers)
		_ = b.Put(Keys.FixedPeers, fixedPeers)
		_ = b.Put(Keys.Info, spec.Info)
		_ = b.Put(Keys.Bitfield, spec.Bitfield)
		_ = b.Put(Keys.AddedAt, []byte(spec.AddedAt.Format(time.RFC3339)))
		_ = b.Put(Keys.BytesDownloaded, []byte(strconv.FormatInt(spec.BytesDownloaded, 10)))
		_ = b.Put(Keys.BytesUploaded, []byte(strconv.FormatInt(spec.BytesUploaded, 10)))
		_ = b.Put(Keys.BytesWasted, []byte(strconv.FormatInt(spec.BytesWasted, 10)))
		_ = b.Put(Keys.SeededFor, []byte(spec.SeededFor.String()))
		_ = b.Put(Keys.Started, []byte(strconv.FormatBool(spec.Started)))
		return nil
	})
}

// WriteInfo writes only the raw info dict of a transfer.
func (r *Resumer) WriteInfo(transferID string, value []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(transferID))
		if b == nil {
			return nil
		}
		return b.Put(Keys.Info, value)
	})
}

// WriteBitfield writes only the bitfield of a transfer.
func (r *Resumer) WriteBitfield(transferID string, value []byte) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(transferID))
		if b == nil {
			return nil
		}
		return b.Put(Keys.Bitfield, value)
	})
}

// WriteStarted writes the start status of a transfer.
func (r *Resumer) WriteStarted(transferID string, value bool) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(transferID))
		if b == nil {
			return nil
		}
		return b.Put(Keys.Started, []byte(strconv.FormatBool(value)))
	})
}

// WriteStats writes the counters of a transfer.
func (r *Resumer) WriteStats(transferID string, downloaded, uploaded, wasted int64, seededFor time.Duration) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(transferID))
		if b == nil {
			return nil
		}
		_ = b.Put(Keys.BytesDownloaded, []byte(strconv.FormatInt(downloaded, 10)))
		_ = b.Put(Keys.BytesUploaded, []byte(strconv.FormatInt(uploaded, 10)))
		_ = b.Put(Keys.BytesWasted, []byte(strconv.FormatInt(wasted, 10)))
		_ = b.Put(Keys.SeededFor, []byte(seededFor.String()))
		return nil
	})
}

// Read the spec of the transfer with the given ID.
func (r *Resumer) Read(transferID string) (*Spec, error) {
	var spec *Spec
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket([]byte(transferID))
		if b == nil {
			return fmt.Errorf("bucket not found: %q", transferID)
		}

		value := b.Get(Keys.InfoHash)
		if value == nil {
			return fmt.Errorf("key not found: %q", string(Keys.InfoHash))
		}

		spec = new(Spec)
		spec.InfoHash = make([]byte, len(value))
		copy(spec.InfoHash, value)

		var err error
		value = b.Get(Keys.Name)
		if value != nil {
			spec.Name = string(value)
		}

		value = b.Get(Keys.Dest)
		if value != nil {
			spec.Dest = string(value)
		}

		value = b.Get(Keys.Port)
		if value != nil {
			spec.Port, err = strconv.Atoi(string(value))
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.Trackers)
		if value != nil {
			err = json.Unmarshal(value, &spec.Trackers)
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.FixedPeers)
		if value != nil {
			err = json.Unmarshal(value, &spec.FixedPeers)
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.Info)
		if value != nil {
			spec.Info = make([]byte, len(value))
			copy(spec.Info, value)
		}

		value = b.Get(Keys.Bitfield)
		if value != nil {
			spec.Bitfield = make([]byte, len(value))
			copy(spec.Bitfield, value)
		}

		value = b.Get(Keys.AddedAt)
		if value != nil {
			spec.AddedAt, err = time.Parse(time.RFC3339, string(value))
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.BytesDownloaded)
		if value != nil {
			spec.BytesDownloaded, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.BytesUploaded)
		if value != nil {
			spec.BytesUploaded, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.BytesWasted)
		if value != nil {
			spec.BytesWasted, err = strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.SeededFor)
		if value != nil {
			spec.SeededFor, err = time.ParseDuration(string(value))
			if err != nil {
				return err
			}
		}

		value = b.Get(Keys.Started)
		if value != nil {
			spec.Started, err = strconv.ParseBool(string(value))
			if err != nil {
				return err
			}
		}

		return nil
	})
	return spec, err
}
