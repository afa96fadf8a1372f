package store

import (
	"io/ioutil"
	"os"
	"testing"

	"mccloud/chain"
	"mccloud/key"
)

func mustKey(t *testing.T) *key.Key {
	t.Helper()
	k, err := key.Generate()
	if err != nil {
		t.Fatalf("key.Generate: %v", err)
	}
	return k
}

func soloGame(winner chain.PublicKey, sign func([]byte) (chain.Signature, error)) *chain.GameResult {
	g := chain.NewGameResult([]chain.PublicKey{winner}, map[string][]byte{string(winner): {}}, winner)
	sig, _ := sign(g.Hash())
	g.Sig = sig
	return g
}

func TestMintAdvancesTip(t *testing.T) {
	dir, err := ioutil.TempDir("", "mccloud-store")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	k := mustKey(t)
	s.Stage(chain.Payload{Bytes: []byte("hello")})

	game := soloGame(k.Public(), k.Sign)
	block, err := s.Mint(game, k.Public(), k.Sign)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	tip, count := s.TipSummary()
	if string(tip) != string(block.Hash) {
		t.Fatalf("tip = %x, want %x", tip, block.Hash)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestAcceptRejectsWrongParent(t *testing.T) {
	dir, err := ioutil.TempDir("", "mccloud-store")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	k := mustKey(t)
	game := soloGame(k.Public(), k.Sign)
	hash := chain.ComputeHash([]byte("not-the-tip"), k.Public(), nil, game)
	sig, _ := k.Sign(hash)
	block := &chain.Block{
		Parent: []byte("not-the-tip"),
		Game:   game,
		Author: k.Public(),
		Hash:   hash,
		Sig:    sig,
	}
	if err := s.Accept(block, k); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	_, count := s.TipSummary()
	if count != 0 {
		t.Fatalf("count = %d, want 0 after a rejected block", count)
	}
}

func TestRangeWalksBackToGenesis(t *testing.T) {
	dir, err := ioutil.TempDir("", "mccloud-store")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	k := mustKey(t)

	var hashes [][]byte
	for i := 0; i < 3; i++ {
		game := soloGame(k.Public(), k.Sign)
		block, err := s.Mint(game, k.Public(), k.Sign)
		if err != nil {
			t.Fatalf("Mint %d: %v", i, err)
		}
		hashes = append(hashes, block.Hash)
	}

	blocks, err := s.Range(nil, hashes[2])
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("len(blocks) = %d, want 3", len(blocks))
	}
	for i, b := range blocks {
		if string(b.Hash) != string(hashes[i]) {
			t.Errorf("blocks[%d].Hash = %x, want %x", i, b.Hash, hashes[i])
		}
	}
}

func TestReopenRestoresTipFromIndex(t *testing.T) {
	dir, err := ioutil.TempDir("", "mccloud-store")
	if err != nil {
		t.Fatalf("TempDir: %v", err)
	}
	defer os.RemoveAll(dir)

	k := mustKey(t)
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	game := soloGame(k.Public(), k.Sign)
	block, err := s.Mint(game, k.Public(), k.Sign)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	tip, count := reopened.TipSummary()
	if string(tip) != string(block.Hash) {
		t.Fatalf("tip after reopen = %x, want %x", tip, block.Hash)
	}
	if count != 1 {
		t.Fatalf("count after reopen = %d, want 1", count)
	}
}
