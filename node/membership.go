package node

import (
	"sync"

	"mccloud/chain"
	"mccloud/transport"

	mapset "github.com/deckarep/golang-set"
)

// membership holds the overlay's known-peers set and the table of live
// sessions. allKnown is a mapset.Set since idempotent insertion is the
// only operation the gossip protocol needs.
type membership struct {
	mu       sync.Mutex
	allKnown mapset.Set
	clients  map[string]*transport.Session
}

func newMembership() *membership {
	return &membership{
		allKnown: mapset.NewSet(),
		clients:  make(map[string]*transport.Session),
	}
}

func (m *membership) addSession(s *transport.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[s.RemoteAddr] = s
}

func (m *membership) removeSession(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, addr)
}

// sessions returns a snapshot of the live sessions, safe to iterate
// without holding the membership lock while writing to the wire.
func (m *membership) sessions() []*transport.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*transport.Session, 0, len(m.clients))
	for _, s := range m.clients {
		out = append(out, s)
	}
	return out
}

func (m *membership) clientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// insertKnown adds id to all_known and reports whether it was new.
func (m *membership) insertKnown(id chain.PublicKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allKnown.Contains(string(id)) {
		return false
	}
	m.allKnown.Add(string(id))
	return true
}

// removeKnown removes id from all_known and reports whether it was present.
func (m *membership) removeKnown(id chain.PublicKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allKnown.Contains(string(id)) {
		return false
	}
	m.allKnown.Remove(string(id))
	return true
}

func (m *membership) knownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allKnown.Cardinality()
}

// knownSnapshot returns every known public key as a slice, for membership
// gossip (AllKnown) and for populating a tournament roster.
func (m *membership) knownSnapshot() []chain.PublicKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chain.PublicKey, 0, m.allKnown.Cardinality())
	for v := range m.allKnown.Iter() {
		out = append(out, chain.PublicKey(v.(string)))
	}
	return out
}
