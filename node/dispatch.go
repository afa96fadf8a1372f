package node

import (
	"net"

	"mccloud/chain"
	"mccloud/config"
	"mccloud/key"
	"mccloud/transport"

	"github.com/ethereum/go-ethereum/log"
)

func (n *Node) serveConnection(conn net.Conn, bootstrap *config.ClientEntry) {
	session, err := transport.Handshake(conn, n.key, n.cfg.Thin)
	if err != nil {
		log.Warn("handshake failed", "remote", conn.RemoteAddr(), "err", err)
		conn.Close()
		return
	}
	n.membership.addSession(session)
	log.Info("session established", "remote", session.RemoteAddr, "peer", chain.PublicKey(session.PeerID).Hex(), "thin", session.Thin)

	tip, count := n.store.TipSummary()
	if err := session.WriteAES(&transport.Message{
		Kind:         transport.KindHighestBlock,
		HighestBlock: &transport.HighestBlock{Hash: tip, Count: uint64(count)},
	}); err != nil {
		log.Warn("failed to send catch-up HighestBlock", "remote", session.RemoteAddr, "err", err)
	}

	if !session.Thin && !n.cfg.Thin {
		if err := session.WriteAES(&transport.Message{
			Kind:     transport.KindAllKnown,
			AllKnown: &transport.AllKnown{Members: n.membership.knownSnapshot()},
		}); err != nil {
			log.Warn("failed to send AllKnown", "remote", session.RemoteAddr, "err", err)
		}
		if err := session.WriteAES(&transport.Message{
			Kind:     transport.KindAnnounce,
			Announce: &transport.Announce{ID: n.key.Public()},
		}); err != nil {
			log.Warn("failed to send Announce", "remote", session.RemoteAddr, "err", err)
		}
	}

	for {
		msg, err := session.ReadAES()
		if err != nil {
			if !transport.IsCleanDisconnect(err) {
				log.Warn("session read failed", "remote", session.RemoteAddr, "err", err)
			}
			break
		}
		n.dispatch(session, msg)
	}

	n.membership.removeSession(session.RemoteAddr)
	if !session.Thin {
		n.membership.removeKnown(session.PeerID)
		n.broadcast(&transport.Message{Kind: transport.KindRemove, Remove: &transport.Remove{ID: session.PeerID}}, session, false)
	}

	if bootstrap != nil && bootstrap.Reconnect {
		n.scheduleReconnect(*bootstrap)
	}
}

func (n *Node) dispatch(s *transport.Session, msg *transport.Message) {
	switch msg.Kind {
	case transport.KindAllKnown:
		for _, id := range msg.AllKnown.Members {
			n.membership.insertKnown(id)
		}

	case transport.KindAnnounce:
		if n.membership.insertKnown(msg.Announce.ID) {
			n.broadcast(&transport.Message{Kind: transport.KindAnnounce, Announce: msg.Announce}, s, false)
		}

	case transport.KindRemove:
		if n.membership.removeKnown(msg.Remove.ID) {
			n.broadcast(&transport.Message{Kind: transport.KindRemove, Remove: msg.Remove}, s, false)
		}

	case transport.KindHighestBlock:
		tip, count := n.store.TipSummary()
		differs := string(tip) != string(msg.HighestBlock.Hash) || uint64(count) != msg.HighestBlock.Count
		if differs && uint64(count) < msg.HighestBlock.Count {
			if err := s.WriteAES(&transport.Message{
				Kind:          transport.KindRequestBlocks,
				RequestBlocks: &transport.RequestBlocks{From: tip, To: msg.HighestBlock.Hash},
			}); err != nil {
				log.Warn("failed to request catch-up blocks", "remote", s.RemoteAddr, "err", err)
			}
		}

	case transport.KindRequestBlocks:
		blocks, err := n.store.Range(msg.RequestBlocks.From, msg.RequestBlocks.To)
		if err != nil {
			log.Warn("range walk failed while answering RequestBlocks", "remote", s.RemoteAddr, "err", err)
		}
		if err := s.WriteAES(&transport.Message{Kind: transport.KindBlocks, Blocks: &transport.Blocks{Items: blocks}}); err != nil {
			log.Warn("failed to send Blocks", "remote", s.RemoteAddr, "err", err)
		}

	case transport.KindBlocks:
		for _, b := range msg.Blocks.Items {
			if err := n.store.Accept(b, n.key); err != nil {
				log.Warn("failed to accept catch-up block", "err", err)
			}
		}

	case transport.KindShare:
		n.store.Stage(msg.Share.Payload)
		n.handler.Handle(msg.Share.Payload)
		n.broadcast(&transport.Message{Kind: transport.KindShare, Share: msg.Share}, s, true)
		n.triggerRound()

	case transport.KindPlay:
		n.tournamentMu.Lock()
		accepted := n.tournament.AddDraw(msg.Play.Draw, key.Verify)
		filled := accepted && n.tournament.IsFilled()
		n.tournamentMu.Unlock()
		if accepted {
			n.broadcast(&transport.Message{Kind: transport.KindPlay, Play: msg.Play}, s, true)
		}
		if filled {
			n.evaluateAndMaybeProduce()
		}

	case transport.KindAddBlock:
		if err := n.store.Accept(msg.AddBlock.Block, n.key); err != nil {
			log.Warn("failed to accept block", "err", err)
		}
		n.broadcast(&transport.Message{Kind: transport.KindAddBlock, AddBlock: msg.AddBlock}, s, true)
		n.setState(stateIdle)

	default:
		log.Warn("unhandled message kind", "kind", msg.Kind)
	}
}

// triggerRound runs the Idle -> Play transition: populate the tournament
// with the current roster (all_known already includes self), commit the
// local draw, and either evaluate immediately (single-member roster) or
// broadcast Play.
func (n *Node) triggerRound() {
	n.stateMu.Lock()
	if n.state != stateIdle {
		n.stateMu.Unlock()
		return
	}
	n.state = statePlay
	n.stateMu.Unlock()

	roster := n.membership.knownSnapshot()

	n.tournamentMu.Lock()
	n.tournament.Clear()
	n.tournament.Populate(roster)
	draw, err := n.tournament.CreateDraw(n.key.Public(), n.key.Sign)
	if err != nil {
		n.tournamentMu.Unlock()
		log.Warn("failed to create tournament draw", "err", err)
		n.setState(stateIdle)
		return
	}
	accepted := n.tournament.AddDraw(draw, key.Verify)
	filled := accepted && n.tournament.IsFilled()
	n.tournamentMu.Unlock()

	if !accepted {
		log.Warn("node's own draw was rejected by its tournament")
		n.setState(stateIdle)
		return
	}

	if filled {
		n.evaluateAndMaybeProduce()
		return
	}
	n.broadcast(&transport.Message{Kind: transport.KindPlay, Play: &transport.Play{Draw: draw}}, nil, true)
}

func (n *Node) evaluateAndMaybeProduce() {
	n.tournamentMu.Lock()
	result, err := n.tournament.Evaluate(n.key.Public(), n.key.Sign)
	n.tournamentMu.Unlock()
	if err != nil {
		log.Warn("tournament evaluation failed", "err", err)
		n.setState(stateIdle)
		return
	}
	if result.Winner.Equal(n.key.Public()) {
		n.produceBlock(result)
		return
	}
	n.setState(stateExpectBlock)
}

func (n *Node) produceBlock(result *chain.GameResult) {
	block, err := n.store.Mint(result, n.key.Public(), n.key.Sign)
	if err != nil {
		log.Warn("failed to mint block", "err", err)
		n.setState(stateIdle)
		return
	}
	n.broadcast(&transport.Message{Kind: transport.KindAddBlock, AddBlock: &transport.AddBlock{Block: block}}, nil, true)
	n.setState(stateIdle)
}

func (n *Node) setState(s roundState) {
	n.stateMu.Lock()
	n.state = s
	n.stateMu.Unlock()
}

// broadcast sends msg to every live session except excluded, applying the
// thin-client filter: a thin peer is skipped unless allowThin is set.
func (n *Node) broadcast(msg *transport.Message, excluded *transport.Session, allowThin bool) {
	for _, s := range n.membership.sessions() {
		if s == excluded {
			continue
		}
		if !allowThin && s.Thin {
			continue
		}
		if err := s.WriteAES(msg); err != nil && !transport.IsCleanDisconnect(err) {
			log.Warn("broadcast write failed", "remote", s.RemoteAddr, "err", err)
		}
	}
}
