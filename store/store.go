// Package store implements the append-only block log and its offset
// index: bc.db holds length-prefixed serialized blocks, bc.idx holds the
// hash -> (offset, length) map rewritten on shutdown.
package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"mccloud/chain"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/sha3"
)

const (
	logFileName   = "bc.db"
	indexFileName = "bc.idx"
	cacheSize     = 128
)

var (
	errMissingLink = errors.New("store: missing parent link while walking range")
	errBadRecord   = errors.New("store: truncated record in log file")
)

// indexEntry is one bc.idx record: a block hash and where its body lives
// in bc.db.
type indexEntry struct {
	Hash   []byte
	Offset uint64
	Length uint32
}

// Store is the per-node block log: an append-only file plus an in-memory
// offset index, an LRU of recently-read blocks, and the staging bucket of
// not-yet-minted payloads.
type Store struct {
	mu sync.Mutex

	folder string
	log    *os.File

	index  map[string]indexEntry
	tip    []byte
	seen   map[[32]byte]struct{} // sha3 dedupe probe over accepted block hashes
	bucket []chain.Payload
	cache  *lru.Cache
}

// Open creates folder if absent, opens (or creates) bc.db for append, and
// loads bc.idx if present. The tip is the hash whose record sits at the
// greatest offset; an empty tip means an empty chain.
func Open(folder string) (*Store, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(folder, logFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		folder: folder,
		log:    f,
		index:  make(map[string]indexEntry),
		seen:   make(map[[32]byte]struct{}),
		cache:  cache,
	}

	entries, err := loadIndex(filepath.Join(folder, indexFileName))
	if err != nil {
		return nil, err
	}
	var tipOffset uint64
	haveTip := false
	for _, e := range entries {
		s.index[string(e.Hash)] = e
		if !haveTip || e.Offset > tipOffset {
			tipOffset = e.Offset
			s.tip = e.Hash
			haveTip = true
		}
	}
	log.Info("block store opened", "folder", folder, "blocks", len(s.index))
	return s, nil
}

func loadIndex(path string) ([]indexEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []indexEntry
	if err := rlp.DecodeBytes(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TipSummary returns the current tip hash (nil for an empty chain) and the
// number of indexed blocks.
func (s *Store) TipSummary() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, len(s.index)
}

// Stage appends a payload to the pending bucket. The caller is responsible
// for validating it first.
func (s *Store) Stage(p chain.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket = append(s.bucket, p)
}

// Mint drains the bucket into a new Block built on the current tip,
// appends it to the log, and advances the tip.
func (s *Store) Mint(game *chain.GameResult, author chain.PublicKey, sign func([]byte) (chain.Signature, error)) (*chain.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.bucket
	s.bucket = nil

	hash := chain.ComputeHash(s.tip, author, data, game)
	sig, err := sign(hash)
	if err != nil {
		return nil, err
	}
	block := &chain.Block{
		Parent: s.tip,
		Game:   game,
		Data:   data,
		Author: author,
		Hash:   hash,
		Sig:    sig,
	}
	if err := s.appendLocked(block); err != nil {
		return nil, err
	}
	s.tip = block.Hash
	log.Info("minted block", "hash", chain.PublicKey(block.Hash).Hex(), "parent", chain.PublicKey(block.Parent).Hex(), "payloads", len(data))
	return block, nil
}

// Accept validates and appends a block received from a peer. A parent
// mismatch is rejected with a logged warning and no state change, matching
// the fork-rejection behavior the network relies on to stay linear.
func (s *Store) Accept(block *chain.Block, v chain.Verifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := sha3.Sum256(block.Hash)
	if _, dup := s.seen[probe]; dup {
		return nil
	}

	if !bytes.Equal(block.Parent, s.tip) {
		log.Warn("new block has not current highest block as parent", "block", chain.PublicKey(block.Hash).Hex(), "parent", chain.PublicKey(block.Parent).Hex(), "tip", chain.PublicKey(s.tip).Hex())
		return nil
	}
	if err := block.Validate(v); err != nil {
		log.Warn("rejected invalid block", "block", chain.PublicKey(block.Hash).Hex(), "err", err)
		return nil
	}
	if err := s.appendLocked(block); err != nil {
		return err
	}
	s.seen[probe] = struct{}{}
	s.tip = block.Hash
	log.Info("accepted block", "hash", chain.PublicKey(block.Hash).Hex())
	return nil
}

// Range walks backward from the block at to via Parent links until
// reaching from or a missing link, and returns the walked blocks in
// chronological (from-first) order.
func (s *Store) Range(from, to []byte) ([]*chain.Block, error) {
	var walked []*chain.Block
	cur := to
	for {
		if bytes.Equal(cur, from) {
			break
		}
		b, err := s.readBlock(cur)
		if err != nil {
			log.Warn("range walk hit a missing link", "at", chain.PublicKey(cur).Hex())
			break
		}
		walked = append(walked, b)
		if len(b.Parent) == 0 {
			break
		}
		cur = b.Parent
	}
	for i, j := 0, len(walked)-1; i < j; i, j = i+1, j-1 {
		walked[i], walked[j] = walked[j], walked[i]
	}
	return walked, nil
}

// FlushIndex persists the in-memory index to bc.idx, replacing the file
// atomically via a rename.
func (s *Store) FlushIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]indexEntry, 0, len(s.index))
	for _, e := range s.index {
		entries = append(entries, e)
	}
	data, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.folder, indexFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.folder, indexFileName))
}

// Close flushes the index and closes the log file.
func (s *Store) Close() error {
	if err := s.FlushIndex(); err != nil {
		return err
	}
	return s.log.Close()
}

func (s *Store) appendLocked(block *chain.Block) error {
	body, err := chain.Encode(block)
	if err != nil {
		return err
	}
	offset, err := s.log.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := s.log.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := s.log.Write(body); err != nil {
		return err
	}
	entry := indexEntry{Hash: block.Hash, Offset: uint64(offset) + 4, Length: uint32(len(body))}
	s.index[string(block.Hash)] = entry
	s.cache.Add(string(block.Hash), block)
	return nil
}

func (s *Store) readBlock(hash []byte) (*chain.Block, error) {
	if cached, ok := s.cache.Get(string(hash)); ok {
		return cached.(*chain.Block), nil
	}
	entry, ok := s.index[string(hash)]
	if !ok {
		return nil, errMissingLink
	}
	body := make([]byte, entry.Length)
	if _, err := s.log.ReadAt(body, int64(entry.Offset)); err != nil {
		return nil, errBadRecord
	}
	block, err := chain.Decode(body)
	if err != nil {
		return nil, err
	}
	s.cache.Add(string(hash), block)
	return block, nil
}
