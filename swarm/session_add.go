package swarm

import (
	"encoding/base64"
	"io"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid"
	"github.com/nictuku/dht"

	"github.com/driftd/drift/internal/magnet"
	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/resumer/boltdbresumer"
	"github.com/driftd/drift/internal/storage/filestorage"
)

// AddTorrent adds a new transfer to the session by reading a metainfo file.
// The transfer is started immediately.
func (s *Session) AddTorrent(r io.Reader) (*Swarm, error) {
	mi, err := metainfo.New(r)
	if err != nil {
		return nil, err
	}
	id, port, sto, err := s.add()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.releasePort(port)
		}
	}()
	rspec := &boltdbresumer.Spec{
		InfoHash: mi.Info.Hash[:],
		Name:     mi.Info.Name,
		Dest:     sto.Dest(),
		Port:     port,
		Trackers: mi.AnnounceList,
		Info:     mi.Info.Bytes,
		AddedAt:  time.Now().UTC(),
	}
	err = s.resumer.Write(id, rspec)
	if err != nil {
		return nil, err
	}
	t, err := s.newTransfer(&transferSpec{
		ID:       id,
		InfoHash: mi.Info.Hash,
		Name:     mi.Info.Name,
		Trackers: mi.AnnounceList,
		Storage:  sto,
		Port:     port,
		Info:     mi.Info.Bytes,
		AddedAt:  rspec.AddedAt,
	})
	if err != nil {
		return nil, err
	}
	sw := s.insertTransfer(t)
	return sw, sw.Start()
}

// AddMagnet adds a new transfer to the session with a magnet link.
// The transfer is started immediately.
func (s *Session) AddMagnet(link string) (*Swarm, error) {
	ma, err := magnet.New(link)
	if err != nil {
		return nil, err
	}
	id, port, sto, err := s.add()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			s.releasePort(port)
		}
	}()
	rspec := &boltdbresumer.Spec{
		InfoHash:   ma.InfoHash[:],
		Name:       ma.Name,
		Dest:       sto.Dest(),
		Port:       port,
		Trackers:   ma.Trackers,
		FixedPeers: ma.Peers,
		AddedAt:    time.Now().UTC(),
	}
	err = s.resumer.Write(id, rspec)
	if err != nil {
		return nil, err
	}
	t, err := s.newTransfer(&transferSpec{
		ID:         id,
		InfoHash:   ma.InfoHash,
		Name:       ma.Name,
		Trackers:   ma.Trackers,
		FixedPeers: ma.Peers,
		Storage:    sto,
		Port:       port,
		AddedAt:    rspec.AddedAt,
	})
	if err != nil {
		return nil, err
	}
	sw := s.insertTransfer(t)
	return sw, sw.Start()
}

func (s *Session) add() (id string, port int, sto *filestorage.FileStorage, err error) {
	port, err = s.getPort()
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			s.releasePort(port)
		}
	}()
	u1, err := uuid.NewV1()
	if err != nil {
		return
	}
	id = base64.RawURLEncoding.EncodeToString(u1[:])
	dest := s.config.DataDir
	if s.config.DataDirIncludesSwarmID {
		dest = filepath.Join(s.config.DataDir, id)
	}
	sto, err = filestorage.New(dest)
	return
}

func (s *Session) loadTransfer(id string, spec *boltdbresumer.Spec) (*Swarm, error) {
	var infoHash [20]byte
	copy(infoHash[:], spec.InfoHash)
	sto, err := filestorage.New(spec.Dest)
	if err != nil {
		return nil, err
	}
	t, err := s.newTransfer(&transferSpec{
		ID:         id,
		InfoHash:   infoHash,
		Name:       spec.Name,
		Trackers:   spec.Trackers,
		FixedPeers: spec.FixedPeers,
		Storage:    sto,
		Port:       spec.Port,
		Info:       spec.Info,
		Bitfield:   spec.Bitfield,
		AddedAt:    spec.AddedAt,

		BytesDownloaded: spec.BytesDownloaded,
		BytesUploaded:   spec.BytesUploaded,
		BytesWasted:     spec.BytesWasted,
		SeededFor:       spec.SeededFor,
	})
	if err != nil {
		return nil, err
	}
	s.mPorts.Lock()
	delete(s.availablePorts, spec.Port)
	s.mPorts.Unlock()
	return s.insertTransfer(t), nil
}

func (s *Session) insertTransfer(t *transfer) *Swarm {
	sw := &Swarm{transfer: t}
	s.mTransfers.Lock()
	defer s.mTransfers.Unlock()
	s.transfers[t.id] = sw
	ih := dht.InfoHash(t.infoHash[:])
	s.transfersByInfoHash[ih] = append(s.transfersByInfoHash[ih], sw)
	return sw
}
