package swarm

import (
	"bytes"
	"crypto/sha1"
	"errors"

	"github.com/driftd/drift/internal/bufferpool"
	"github.com/driftd/drift/internal/metainfo"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/piece"
)

var errInvalidMetadata = errors.New("invalid metadata received")

func (t *transfer) handleMetadataMessage(pe *peer.Peer, msg peerprotocol.ExtensionMetadataMessage) {
	switch msg.Type {
	case peerprotocol.ExtensionMetadataMessageTypeRequest:
		// Replies are addressed with the ID the peer declared in its own
		// extension handshake. Nothing to do until that arrives.
		if pe.ExtensionHandshake == nil {
			break
		}
		if t.info == nil {
			t.sendMetadataReject(pe, msg.Piece)
			break
		}
		extMsgID, ok := pe.ExtensionHandshake.M[peerprotocol.ExtensionKeyMetadata]
		if !ok {
			break
		}
		begin := msg.Piece * piece.BlockSize
		if begin >= uint32(len(t.info.Bytes)) {
			t.sendMetadataReject(pe, msg.Piece)
			break
		}
		end := begin + piece.BlockSize
		if end > uint32(len(t.info.Bytes)) {
			end = uint32(len(t.info.Bytes))
		}
		data := t.info.Bytes[begin:end]
		dataMsg := peerprotocol.ExtensionMetadataMessage{
			Type:      peerprotocol.ExtensionMetadataMessageTypeData,
			Piece:     msg.Piece,
			TotalSize: len(t.info.Bytes),
			Data:      data,
		}
		extDataMsg := peerprotocol.ExtensionMessage{
			ExtendedMessageID: extMsgID,
			Payload:           dataMsg,
		}
		pe.SendMessage(extDataMsg)
	case peerprotocol.ExtensionMetadataMessageTypeData:
		id, ok := t.infoDownloaders[pe]
		if !ok {
			break
		}
		err := id.GotBlock(msg.Piece, msg.Data)
		if err != nil {
			pe.Logger().Error(err)
			t.closePeer(pe)
			t.startInfoDownloaders()
			break
		}
		if !id.Done() {
			id.RequestBlocks(t.maxAllowedRequests(pe))
			pe.StartSnubTimer()
			break
		}
		pe.StopSnubTimer()

		hash := sha1.Sum(id.Bytes)
		if !bytes.Equal(hash[:], t.infoHash[:]) {
			pe.Logger().Errorln("received info does not match with hash:", t.infoHashString())
			t.banPeer(pe)
			t.startInfoDownloaders()
			break
		}
		t.stopInfoDownloaders()

		info, err := metainfo.NewInfo(id.Bytes)
		if err != nil {
			t.stop(errInvalidMetadata)
			break
		}
		t.info = info
		t.piecePool = bufferpool.New(int(info.PieceLength))
		err = t.resume.WriteInfo(t.info.Bytes)
		if err != nil {
			t.stop(err)
			break
		}
		close(t.completeMetadataC)
		t.log.Info("metadata downloaded, starting allocation")
		t.publishEvent(EventMetadata, "")
		t.startAllocator()
	case peerprotocol.ExtensionMetadataMessageTypeReject:
		id, ok := t.infoDownloaders[pe]
		if ok {
			t.closeInfoDownloader(id)
			t.closePeer(pe)
		}
		t.startInfoDownloaders()
	}
}

func (t *transfer) sendMetadataReject(pe *peer.Peer, i uint32) {
	if pe.ExtensionHandshake == nil {
		return
	}
	extMsgID, ok := pe.ExtensionHandshake.M[peerprotocol.ExtensionKeyMetadata]
	if !ok {
		return
	}
	m := peerprotocol.ExtensionMetadataMessage{
		Type:  peerprotocol.ExtensionMetadataMessageTypeReject,
		Piece: i,
	}
	extMsg := peerprotocol.ExtensionMessage{
		ExtendedMessageID: extMsgID,
		Payload:           m,
	}
	pe.SendMessage(extMsg)
}
