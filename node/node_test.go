package node

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"mccloud/config"
	"mccloud/key"
	"mccloud/store"
)

func newTestNode(t *testing.T, port uint16) (*Node, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "mccloud-node")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	k, err := key.Generate()
	if err != nil {
		t.Fatalf("key.Generate: %v", err)
	}
	cfg := config.Default()
	cfg.Port = port
	n := New(cfg, k, s, nil)
	cleanup := func() { os.RemoveAll(dir) }
	return n, cleanup
}

func TestSingleNodeMintsOnSubmit(t *testing.T) {
	n, cleanup := newTestNode(t, 49200)
	defer cleanup()

	go n.Run()
	defer n.Shutdown()
	time.Sleep(50 * time.Millisecond)

	if err := n.Submit([]byte("hello")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, blocks, _, _, state := n.Status()
		if blocks == 1 && state == "Idle" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("single node did not mint a block from its own Submit within the deadline")
}

func TestTwoNodesGossipMembership(t *testing.T) {
	a, cleanupA := newTestNode(t, 49301)
	defer cleanupA()
	b, cleanupB := newTestNode(t, 49302)
	defer cleanupB()
	b.cfg.Clients = []config.ClientEntry{{Host: "127.0.0.1", Port: 49301}}

	go a.Run()
	defer a.Shutdown()
	time.Sleep(50 * time.Millisecond)
	go b.Run()
	defer b.Shutdown()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _, knownA, _, _ := a.Status()
		_, _, knownB, _, _ := b.Status()
		if knownA == 2 && knownB == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("nodes did not converge on |all_known| == 2 each within the deadline")
}
