// Package node wires identity, block store and tournament into the
// overlay runtime: accept/dial loop, per-session dispatch, and the
// producer state machine.
package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	"mccloud/chain"
	"mccloud/config"
	"mccloud/key"
	"mccloud/store"
	"mccloud/tournament"
	"mccloud/transport"

	"github.com/ethereum/go-ethereum/log"
)

// roundState is the producer state machine: Idle -> Play -> (Idle |
// ExpectBlock) -> Idle.
type roundState int

const (
	stateIdle roundState = iota
	statePlay
	stateExpectBlock
)

func (s roundState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case statePlay:
		return "Play"
	case stateExpectBlock:
		return "ExpectBlock"
	default:
		return "Unknown"
	}
}

// reconnectDelay is the fixed retry interval for bootstrap peers marked
// reconnect=true. No exponential backoff, matching the reference.
const reconnectDelay = 1500 * time.Millisecond

// Node is the runtime for one mccloud participant.
type Node struct {
	cfg     config.Config
	key     *key.Key
	store   *store.Store
	handler UserPayloadHandler

	tournamentMu sync.Mutex
	tournament   *tournament.Tournament

	stateMu sync.Mutex
	state   roundState

	membership *membership

	listener net.Listener

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// New builds a Node around an already-open store and identity key. handler
// may be nil, in which case payloads are simply staged and never observed
// by the application layer.
func New(cfg config.Config, k *key.Key, s *store.Store, handler UserPayloadHandler) *Node {
	if handler == nil {
		handler = NopHandler{}
	}
	m := newMembership()
	m.insertKnown(k.Public())
	return &Node{
		cfg:        cfg,
		key:        k,
		store:      s,
		handler:    handler,
		tournament: tournament.New(),
		membership: m,
		shutdownCh: make(chan struct{}),
	}
}

// Run binds the listen address, dials every bootstrap peer, and services
// connections until Shutdown is called or accept fails fatally.
func (n *Node) Run() error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Crit("failed to bind listen address", "addr", addr, "err", err)
		return err
	}
	n.listener = l
	log.Info("node listening", "addr", addr, "thin", n.cfg.Thin)

	for _, c := range n.cfg.Clients {
		entry := c
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.dial(entry)
		}()
	}

	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				acceptErr <- err
				return
			}
			accepted <- conn
		}
	}()

	for {
		select {
		case <-n.shutdownCh:
			n.teardown()
			return nil
		case err := <-acceptErr:
			select {
			case <-n.shutdownCh:
				n.teardown()
				return nil
			default:
			}
			log.Warn("accept loop stopped", "err", err)
			n.teardown()
			return err
		case conn := <-accepted:
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.acceptConnection(conn)
			}()
		}
	}
}

// Shutdown requests a graceful stop: the accept loop exits, every session
// writer is half-closed, and the index is flushed.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		close(n.shutdownCh)
		if n.listener != nil {
			n.listener.Close()
		}
	})
}

func (n *Node) teardown() {
	if err := n.store.FlushIndex(); err != nil {
		log.Warn("failed to flush block index on shutdown", "err", err)
	}
	for _, s := range n.membership.sessions() {
		s.Shutdown()
	}
}

func (n *Node) acceptConnection(conn net.Conn) {
	n.serveConnection(conn, nil)
}

func (n *Node) dial(entry config.ClientEntry) {
	addr := fmt.Sprintf("%s:%d", entry.Host, entry.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Warn("bootstrap dial failed", "addr", addr, "err", err)
		if entry.Reconnect {
			n.scheduleReconnect(entry)
		}
		return
	}
	n.serveConnection(conn, &entry)
}

func (n *Node) scheduleReconnect(entry config.ClientEntry) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-n.shutdownCh:
				return
			case <-time.After(reconnectDelay):
			}
			addr := fmt.Sprintf("%s:%d", entry.Host, entry.Port)
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				continue
			}
			n.serveConnection(conn, &entry)
			return
		}
	}()
}

// Submit signs data under the node's own identity, stages the resulting
// payload (e.g. from the operator console), and runs the same round
// trigger a received Share would.
func (n *Node) Submit(data []byte) error {
	sig, err := n.key.Sign(data)
	if err != nil {
		return err
	}
	p := chain.Payload{Bytes: data, Author: n.key.Public(), Sig: sig}
	n.store.Stage(p)
	n.handler.Handle(p)
	n.triggerRound()
	n.broadcast(&transport.Message{Kind: transport.KindShare, Share: &transport.Share{Payload: p}}, nil, true)
	return nil
}

// Status reports a snapshot for the operator console's "status" command.
func (n *Node) Status() (tip []byte, blocks int, known int, sessions int, state string) {
	tip, blocks = n.store.TipSummary()
	known = n.membership.knownCount()
	sessions = n.membership.clientCount()
	n.stateMu.Lock()
	state = n.state.String()
	n.stateMu.Unlock()
	return
}
