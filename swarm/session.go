package swarm

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/ratelimit"
	"github.com/mitchellh/go-homedir"
	"github.com/nictuku/dht"
	"github.com/rcrowley/go-metrics"
	bolt "go.etcd.io/bbolt"

	"github.com/driftd/drift/internal/logger"
	"github.com/driftd/drift/internal/resumer/boltdbresumer"
	"github.com/driftd/drift/internal/semaphore"
	"github.com/driftd/drift/internal/storage/filestorage"
)

var transfersBucket = []byte("transfers")

// Session contains the swarms and shared session-wide resources such as the
// resume database, the DHT node and the speed limiters.
type Session struct {
	config  Config
	db      *bolt.DB
	resumer *boltdbresumer.Resumer
	log     logger.Logger
	dht     *dht.DHT
	closeC  chan struct{}

	// Advertised in the reserved bytes of the peer handshake.
	extensions [8]byte

	mPeerRequests   sync.Mutex
	dhtPeerRequests map[*transfer]struct{}

	mTransfers          sync.RWMutex
	transfers           map[string]*Swarm
	transfersByInfoHash map[dht.InfoHash][]*Swarm

	mPorts         sync.Mutex
	availablePorts map[int]struct{}

	// Shared rate limiters. Nil means unlimited.
	bucketDownload *ratelimit.Bucket
	bucketUpload   *ratelimit.Bucket

	// Limits the number of piece writes in flight session-wide.
	semWrite *semaphore.Semaphore

	metrics struct {
		WritesPerSecond metrics.Meter
		SpeedWrite      metrics.Meter
		SpeedDownload   metrics.Meter
		SpeedUpload     metrics.Meter
	}
}

// NewSession returns a new Session with the given config.
// Existing transfers are loaded from the resume database. Transfers that
// were started get started again.
func NewSession(cfg Config) (*Session, error) {
	if cfg.PortBegin >= cfg.PortEnd {
		return nil, errors.New("invalid port range")
	}
	var err error
	cfg.Database, err = homedir.Expand(cfg.Database)
	if err != nil {
		return nil, err
	}
	cfg.DataDir, err = homedir.Expand(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(filepath.Dir(cfg.Database), 0o750)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(cfg.DataDir, 0o750)
	if err != nil {
		return nil, err
	}
	l := logger.New("session")
	db, err := bolt.Open(cfg.Database, 0o640, &bolt.Options{Timeout: time.Second})
	if err == bolt.ErrTimeout {
		return nil, errors.New("resume database is locked by another process")
	} else if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	var ids []string
	err = db.Update(func(tx *bolt.Tx) error {
		b, err2 := tx.CreateBucketIfNotExists(transfersBucket)
		if err2 != nil {
			return err2
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	res, err := boltdbresumer.New(db, transfersBucket)
	if err != nil {
		return nil, err
	}
	var dhtNode *dht.DHT
	if cfg.DHTEnabled {
		dhtConfig := dht.NewConfig()
		dhtConfig.Address = cfg.DHTHost
		dhtConfig.Port = int(cfg.DHTPort)
		dhtConfig.DHTRouters = "router.bittorrent.com:6881,dht.transmissionbt.com:6881,router.utorrent.com:6881,dht.libtorrent.org:25401,dht.aelitis.com:6881"
		dhtConfig.SaveRoutingTable = false
		dhtNode, err = dht.New(dhtConfig)
		if err != nil {
			return nil, err
		}
		err = dhtNode.Start()
		if err != nil {
			return nil, err
		}
	}
	ports := make(map[int]struct{})
	for p := cfg.PortBegin; p < cfg.PortEnd; p++ {
		ports[int(p)] = struct{}{}
	}
	var bucketDownload, bucketUpload *ratelimit.Bucket
	if cfg.SpeedLimitDownload > 0 {
		b := cfg.SpeedLimitDownload * 1024
		bucketDownload = ratelimit.NewBucketWithRate(float64(b), b)
	}
	if cfg.SpeedLimitUpload > 0 {
		b := cfg.SpeedLimitUpload * 1024
		bucketUpload = ratelimit.NewBucketWithRate(float64(b), b)
	}
	s := &Session{
		config:              cfg,
		db:                  db,
		resumer:             res,
		log:                 l,
		dht:                 dhtNode,
		closeC:              make(chan struct{}),
		transfers:           make(map[string]*Swarm),
		transfersByInfoHash: make(map[dht.InfoHash][]*Swarm),
		availablePorts:      ports,
		bucketDownload:      bucketDownload,
		bucketUpload:        bucketUpload,
		semWrite:            semaphore.New(cfg.ParallelWrites),
	}
	// Reserved bit for the extension protocol (BEP 10).
	s.extensions[5] |= 0x10
	if cfg.DHTEnabled {
		// Reserved bit for the DHT protocol (BEP 5).
		s.extensions[7] |= 0x01
	}
	s.metrics.WritesPerSecond = metrics.NewMeter()
	s.metrics.SpeedWrite = metrics.NewMeter()
	s.metrics.SpeedDownload = metrics.NewMeter()
	s.metrics.SpeedUpload = metrics.NewMeter()
	if cfg.DHTEnabled {
		s.dhtPeerRequests = make(map[*transfer]struct{})
		go s.processDHTResults()
	}
	err = s.loadExistingTransfers(ids)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) loadExistingTransfers(ids []string) error {
	var loaded int
	var started []*Swarm
	for _, id := range ids {
		spec, err := s.resumer.Read(id)
		if err != nil {
			s.log.Errorf("cannot load transfer %q from resume db: %s", id, err)
			continue
		}
		sw, err := s.loadTransfer(id, spec)
		if err != nil {
			s.log.Errorf("cannot load transfer %q: %s", id, err)
			continue
		}
		loaded++
		if spec.Started {
			started = append(started, sw)
		}
	}
	s.log.Infof("loaded %d existing transfers", loaded)
	for _, sw := range started {
		select {
		case sw.transfer.startCommandC <- struct{}{}:
		case <-sw.transfer.doneC:
		}
	}
	return nil
}

// Swarms returns the list of transfers in the session.
func (s *Session) Swarms() []*Swarm {
	s.mTransfers.RLock()
	defer s.mTransfers.RUnlock()
	swarms := make([]*Swarm, 0, len(s.transfers))
	for _, sw := range s.transfers {
		swarms = append(swarms, sw)
	}
	return swarms
}

// GetSwarm returns the swarm with the given ID. Nil if not found.
func (s *Session) GetSwarm(id string) *Swarm {
	s.mTransfers.RLock()
	defer s.mTransfers.RUnlock()
	return s.transfers[id]
}

// RemoveSwarm removes the swarm from the session, deletes its resume data
// and its downloaded files.
func (s *Session) RemoveSwarm(id string) error {
	sw, err := s.removeTransfer(id)
	if err != nil {
		return err
	}
	if sw != nil {
		go s.stopAndRemoveData(sw)
	}
	return nil
}

func (s *Session) removeTransfer(id string) (*Swarm, error) {
	s.mTransfers.Lock()
	defer s.mTransfers.Unlock()
	sw, ok := s.transfers[id]
	if !ok {
		return nil, nil
	}
	delete(s.transfers, id)
	ih := dht.InfoHash(sw.transfer.infoHash[:])
	a := s.transfersByInfoHash[ih]
	for i, sw2 := range a {
		if sw2 == sw {
			s.transfersByInfoHash[ih] = append(a[:i], a[i+1:]...)
			break
		}
	}
	if len(s.transfersByInfoHash[ih]) == 0 {
		delete(s.transfersByInfoHash, ih)
	}
	return sw, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transfersBucket).DeleteBucket([]byte(id))
	})
}

func (s *Session) stopAndRemoveData(sw *Swarm) {
	close(sw.transfer.closeC)
	<-sw.transfer.doneC
	s.releasePort(sw.transfer.port)
	// Only safe to remove the destination directory when it is exclusive
	// to this swarm.
	if fs, ok := sw.transfer.storage.(*filestorage.FileStorage); ok && s.config.DataDirIncludesSwarmID {
		dest := fs.Dest()
		err := os.RemoveAll(dest)
		if err != nil {
			s.log.Errorf("cannot remove transfer data. err: %s dest: %s", err, dest)
		}
	}
}

// StartAll starts all transfers in the session.
func (s *Session) StartAll() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(transfersBucket)
		s.mTransfers.RLock()
		defer s.mTransfers.RUnlock()
		for _, sw := range s.transfers {
			b := mb.Bucket([]byte(sw.transfer.id))
			_ = b.Put(boltdbresumer.Keys.Started, []byte("true"))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, sw := range s.Swarms() {
		select {
		case sw.transfer.startCommandC <- struct{}{}:
		case <-sw.transfer.doneC:
		}
	}
	return nil
}

// StopAll stops all transfers in the session.
func (s *Session) StopAll() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(transfersBucket)
		s.mTransfers.RLock()
		defer s.mTransfers.RUnlock()
		for _, sw := range s.transfers {
			b := mb.Bucket([]byte(sw.transfer.id))
			_ = b.Put(boltdbresumer.Keys.Started, []byte("false"))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, sw := range s.Swarms() {
		select {
		case sw.transfer.stopCommandC <- struct{}{}:
		case <-sw.transfer.doneC:
		}
	}
	return nil
}

// Close stops all transfers and releases the resources of the session.
func (s *Session) Close() error {
	close(s.closeC)

	if s.dht != nil {
		s.dht.Stop()
	}

	var wg sync.WaitGroup
	s.mTransfers.Lock()
	wg.Add(len(s.transfers))
	for _, sw := range s.transfers {
		go func(sw *Swarm) {
			close(sw.transfer.closeC)
			<-sw.transfer.doneC
			wg.Done()
		}(sw)
	}
	wg.Wait()
	s.transfers = nil
	s.mTransfers.Unlock()

	s.metrics.WritesPerSecond.Stop()
	s.metrics.SpeedWrite.Stop()
	s.metrics.SpeedDownload.Stop()
	s.metrics.SpeedUpload.Stop()

	return s.db.Close()
}

func (s *Session) getPort() (int, error) {
	s.mPorts.Lock()
	defer s.mPorts.Unlock()
	for p := range s.availablePorts {
		delete(s.availablePorts, p)
		return p, nil
	}
	return 0, errors.New("no free port")
}

func (s *Session) releasePort(port int) {
	s.mPorts.Lock()
	defer s.mPorts.Unlock()
	s.availablePorts[port] = struct{}{}
}
