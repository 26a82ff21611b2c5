package swarm

import (
	"fmt"
	"time"

	"github.com/driftd/drift/internal/bitfield"
	"github.com/driftd/drift/internal/counters"
	"github.com/driftd/drift/internal/peer"
	"github.com/driftd/drift/internal/peerconn/peerwriter"
	"github.com/driftd/drift/internal/peerprotocol"
	"github.com/driftd/drift/internal/piecedownloader"
	"github.com/driftd/drift/internal/piecewriter"
)

func (t *transfer) handlePieceMessage(pm peer.PieceMessage) {
	msg := pm.Piece
	pe := pm.Peer
	l := int64(len(msg.Buffer.Data))
	if t.pieces == nil || t.bitfield == nil {
		pe.Logger().Error("piece received but we don't have info")
		t.counters.Incr(counters.BytesWasted, l)
		t.closePeer(pe)
		msg.Buffer.Release()
		return
	}
	if msg.Index >= uint32(len(t.pieces)) {
		pe.Logger().Errorln("invalid piece index:", msg.Index)
		t.counters.Incr(counters.BytesWasted, l)
		t.banPeer(pe)
		msg.Buffer.Release()
		return
	}
	t.downloadSpeed.Mark(l)
	t.counters.Incr(counters.BytesDownloaded, l)
	t.session.metrics.SpeedDownload.Mark(l)
	pe.MarkDownload(l)
	t.bytesSinceStart += l
	t.lastProgressAt = time.Now()
	pd, ok := t.pieceDownloaders[pe]
	if !ok {
		t.counters.Incr(counters.BytesWasted, l)
		msg.Buffer.Release()
		return
	}
	if pd.Piece.Index != msg.Index {
		t.counters.Incr(counters.BytesWasted, l)
		msg.Buffer.Release()
		return
	}
	pi := pd.Piece
	if _, ok := pi.FindBlock(msg.Begin, uint32(len(msg.Buffer.Data))); !ok {
		pe.Logger().Errorln("invalid block. piece:", msg.Index, "begin:", msg.Begin, "length:", len(msg.Buffer.Data))
		t.counters.Incr(counters.BytesWasted, l)
		t.banPeer(pe)
		msg.Buffer.Release()
		return
	}
	err := pd.GotBlock(msg.Begin, msg.Buffer.Data)
	switch err {
	case piecedownloader.ErrBlockDuplicate:
		// We cancel all pending requests on a choke message and re-request
		// them after an unchoke. Some clients send the same block twice when
		// it is requested twice.
		pe.Logger().Debugln("received duplicate block. piece:", msg.Index, "begin:", msg.Begin)
	case piecedownloader.ErrBlockNotRequested:
		pe.Logger().Debugln("received not requested block. piece:", msg.Index, "begin:", msg.Begin)
	case nil:
	default:
		pe.Logger().Error(err)
		t.closePeer(pe)
		msg.Buffer.Release()
		return
	}
	msg.Buffer.Release()
	if !pd.Done() {
		if !pe.PeerChoking {
			pd.RequestBlocks(t.maxAllowedRequests(pe))
			pe.StartSnubTimer()
		}
		return
	}
	t.log.Debugf("piece #%d downloaded from %s", msg.Index, pe.IP())
	t.closePieceDownloader(pd)
	pe.StopSnubTimer()

	if pi.Writing {
		panic("piece is already writing")
	}
	pi.Writing = true

	// Request the next piece while writing the completed one, being
	// optimistic about the hash check.
	t.startPieceDownloaderFor(pe)

	// Suspend receiving piece messages to limit writes in flight per swarm.
	t.pieceMessagesC.Suspend()

	pw := piecewriter.New(pi, pe, pd.Buffer)
	go pw.Run(t.pieceWriterResultC, t.closeC, t.session.metrics.WritesPerSecond, t.session.metrics.SpeedWrite, t.session.semWrite, t.session.config.MaxWriteRetries)
}

func (t *transfer) handlePeerMessage(pm peer.Message) {
	pe := pm.Peer
	switch msg := pm.Message.(type) {
	case peerprotocol.HaveMessage:
		// Queue have messages received while we don't have the info yet.
		if t.pieces == nil || t.bitfield == nil {
			pe.Messages = append(pe.Messages, msg)
			break
		}
		if msg.Index >= t.info.NumPieces {
			pe.Logger().Errorln("unexpected piece index:", msg.Index)
			t.banPeer(pe)
			break
		}
		if t.piecePicker != nil {
			t.piecePicker.HandleHave(pe, msg.Index)
		}
		t.updateInterestedState(pe)
		t.startPieceDownloaderFor(pe)
	case peerprotocol.BitfieldMessage:
		// Queue bitfield messages while we don't have the info yet.
		if t.pieces == nil || t.bitfield == nil {
			pe.Messages = append(pe.Messages, msg)
			break
		}
		if len(msg.Data) == 0 {
			pe.Logger().Debugln("received bitfield of length zero")
			break
		}
		bf, err := bitfield.NewBytes(msg.Data, t.info.NumPieces)
		if err != nil {
			pe.Logger().Errorf("%s [len(bitfield)=%d] [numPieces=%d]", err, len(msg.Data), t.info.NumPieces)
			t.banPeer(pe)
			break
		}
		pe.Logger().Debugln("received bitfield:", bf.Hex())
		if t.piecePicker != nil {
			for i := uint32(0); i < bf.Len(); i++ {
				if bf.Test(i) {
					t.piecePicker.HandleHave(pe, i)
				}
			}
		}
		t.updateInterestedState(pe)
		t.startPieceDownloaderFor(pe)
	case peerprotocol.HaveAllMessage:
		if t.pieces == nil || t.bitfield == nil {
			pe.Messages = append(pe.Messages, msg)
			break
		}
		if t.piecePicker != nil {
			for i := range t.pieces {
				t.piecePicker.HandleHave(pe, t.pieces[i].Index)
			}
		}
		t.updateInterestedState(pe)
		t.startPieceDownloaderFor(pe)
	case peerprotocol.HaveNoneMessage:
	case peerprotocol.UnchokeMessage:
		pe.PeerChoking = false
		pd, ok := t.pieceDownloaders[pe]
		if !ok {
			t.startPieceDownloaderFor(pe)
			break
		}
		delete(t.pieceDownloadersChoked, pe)
		pd.RequestBlocks(t.maxAllowedRequests(pe))
		pe.StartSnubTimer()
		if t.piecePicker != nil {
			t.piecePicker.HandleUnchoke(pe, pd.Piece.Index)
		}
	case peerprotocol.ChokeMessage:
		pe.PeerChoking = true
		pd, ok := t.pieceDownloaders[pe]
		if !ok {
			break
		}
		pd.Choked()
		pe.StopSnubTimer()
		t.pieceDownloadersChoked[pe] = pd
		delete(t.pieceDownloadersSnubbed, pe)
		if t.piecePicker != nil {
			t.piecePicker.HandleChoke(pe, pd.Piece.Index)
		}
		t.startPieceDownloaders()
	case peerprotocol.InterestedMessage:
		pe.PeerInterested = true
		t.unchoker.FastUnchoke(pe)
	case peerprotocol.NotInterestedMessage:
		pe.PeerInterested = false
	case peerprotocol.RequestMessage:
		if t.pieces == nil || t.bitfield == nil {
			pe.Logger().Error("request received but we don't have info")
			t.banPeer(pe)
			break
		}
		if msg.Index >= t.info.NumPieces {
			pe.Logger().Errorln("invalid request index:", msg.Index)
			t.banPeer(pe)
			break
		}
		if msg.Begin+msg.Length > t.pieces[msg.Index].Length {
			pe.Logger().Errorln("invalid request length:", msg.Length)
			t.banPeer(pe)
			break
		}
		pi := &t.pieces[msg.Index]
		if pe.AmChoking || !pi.Done {
			m := peerprotocol.RejectMessage{RequestMessage: msg}
			pe.SendMessage(m)
			break
		}
		pe.SendPiece(msg, pi.Data)
	case peerprotocol.RejectMessage:
		if t.pieces == nil || t.bitfield == nil {
			pe.Logger().Error("reject received but we don't have info")
			t.banPeer(pe)
			break
		}
		if msg.Index >= t.info.NumPieces {
			pe.Logger().Errorln("invalid reject index:", msg.Index)
			t.banPeer(pe)
			break
		}
		pd, ok := t.pieceDownloaders[pe]
		if !ok {
			break
		}
		if pd.Piece.Index != msg.Index {
			break
		}
		if !pd.Rejected(msg.Begin, msg.Length) {
			pe.Logger().Errorln("invalid reject. piece:", msg.Index, "begin:", msg.Begin, "length:", msg.Length)
			t.banPeer(pe)
			break
		}
	case peerprotocol.CancelMessage:
		if t.pieces == nil || t.bitfield == nil {
			pe.Logger().Error("cancel received but we don't have info")
			t.banPeer(pe)
			break
		}
		if msg.Index >= t.info.NumPieces {
			pe.Logger().Debugln("invalid cancel index:", msg.Index)
			break
		}
		pe.CancelRequest(msg)
	case peerprotocol.PortMessage:
		if t.session.dht != nil {
			t.session.dht.AddNode(fmt.Sprintf("%s:%d", pe.IP(), msg.Port))
		}
	case peerwriter.BlockUploaded:
		l := int64(msg.Length)
		t.uploadSpeed.Mark(l)
		t.counters.Incr(counters.BytesUploaded, l)
		t.session.metrics.SpeedUpload.Mark(l)
		pe.MarkUpload(l)
	case peerprotocol.ExtensionHandshakeMessage:
		pe.Logger().Debugln("extension handshake received:", msg)
		if pe.ExtensionHandshake != nil {
			pe.Logger().Debugln("peer sent extension handshake twice")
			break
		}
		pe.ExtensionHandshake = &msg
		if _, ok := msg.M[peerprotocol.ExtensionKeyMetadata]; ok {
			t.startInfoDownloaders()
		}
	case peerprotocol.ExtensionMetadataMessage:
		t.handleMetadataMessage(pe, msg)
	default:
		panic(fmt.Sprintf("unhandled peer message type: %T", msg))
	}
}

// banPeer closes the connection and penalizes the address so it is not
// dialed again soon. Used after protocol violations.
func (t *transfer) banPeer(pe *peer.Peer) {
	addr := pe.Addr()
	t.bannedPeerIPs[addr.IP.String()] = struct{}{}
	t.addrList.Penalize(addr, pe.Source)
	t.closePeer(pe)
}
