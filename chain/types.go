// Package chain holds the wire- and disk-level data model shared by the
// block store, the tournament and the session transport: public keys,
// signatures, user payloads, tournament draws/results and blocks.
package chain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
)

// PublicKey is the SEC1-encoded public point of a secp256k1 key. It is used
// both as a stable node identity and as the author tag on signed artifacts.
type PublicKey []byte

// Hex renders the key as a short, human-readable identifier for logs.
func (k PublicKey) Hex() string {
	if len(k) == 0 {
		return "<nil>"
	}
	if len(k) > 8 {
		return hexString(k[:8])
	}
	return hexString(k)
}

func (k PublicKey) String() string { return k.Hex() }

// Equal reports whether two public keys hold the same bytes.
func (k PublicKey) Equal(o PublicKey) bool { return bytes.Equal(k, o) }

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// Signature is a raw ECDSA signature (DER-encoded) over a message the
// caller has already reduced to a fixed-size digest where appropriate.
type Signature []byte

// Verifier is satisfied by key.Key; kept narrow so this package never
// imports the key package (key imports chain, so the reverse import would
// be an import cycle).
type Verifier interface {
	Verify(data []byte, pub PublicKey, sig Signature) bool
}

// Payload is a single user data chunk accepted into a node's bucket.
// The signature covers Bytes under Author.
type Payload struct {
	Bytes  []byte
	Author PublicKey
	Sig    Signature
}

// Validate reports whether Sig is a valid signature of Bytes under Author.
func (p *Payload) Validate(v Verifier) bool {
	return v.Verify(p.Bytes, p.Author, p.Sig)
}

// GameDraw is one participant's ballot in a tournament round: K bytes,
// each already reduced modulo 3, signed under Author.
type GameDraw struct {
	Author PublicKey
	Sig    Signature
	Rounds []byte
}

// GameResult is the outcome of one tournament round: the flattened
// single-elimination bracket (leaves first), the roster of participants
// and their draws, the winner, and the winner's signature over a canonical
// hash of (tree, roster, winner).
type GameResult struct {
	Tree   []PublicKey // empty slot == a bye, encoded as a zero-length PublicKey
	Roster []rosterEntry
	Winner PublicKey
	Sig    Signature
}

// rosterEntry is GameResult.Roster's wire shape: RLP cannot encode a map
// directly with deterministic field order guarantees across languages, so
// the roster travels as a slice sorted ascending by Author, mirroring the
// canonical ordering the hash and the tournament bracket already require.
type rosterEntry struct {
	Author PublicKey
	Rounds []byte
}

// RosterMap returns the GameResult's roster as author -> draw bytes.
func (g *GameResult) RosterMap() map[string][]byte {
	m := make(map[string][]byte, len(g.Roster))
	for _, e := range g.Roster {
		m[string(e.Author)] = e.Rounds
	}
	return m
}

// NewGameResult builds a GameResult from a roster map, sorting entries by
// author ascending so the wire encoding and the hash are both canonical.
func NewGameResult(tree []PublicKey, roster map[string][]byte, winner PublicKey) *GameResult {
	entries := make([]rosterEntry, 0, len(roster))
	for author, rounds := range roster {
		entries = append(entries, rosterEntry{Author: PublicKey(author), Rounds: rounds})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Author, entries[j].Author) < 0
	})
	return &GameResult{Tree: tree, Roster: entries, Winner: winner}
}

// Hash computes the canonical hash of (tree, roster, winner) that the
// tournament winner signs and receivers re-derive to verify GameResult.Sig.
func (g *GameResult) Hash() []byte {
	h := sha256.New()
	for _, id := range g.Tree {
		h.Write(id)
	}
	for _, e := range g.Roster {
		h.Write(e.Author)
		h.Write(e.Rounds)
	}
	h.Write(g.Winner)
	return h.Sum(nil)
}

// Validate reports whether Sig is a valid signature of Hash() under Winner.
func (g *GameResult) Validate(v Verifier) bool {
	return v.Verify(g.Hash(), g.Winner, g.Sig)
}

// Block is one entry in the append-only chain.
type Block struct {
	Parent []byte
	Game   *GameResult
	Data   []Payload
	Author PublicKey
	Hash   []byte
	Sig    Signature
}

// ComputeHash recomputes the block hash: SHA256 over the concatenation of
// every payload's (bytes, author, sig), the game-result fields (tree,
// sorted roster, winner), the parent hash and the author.
func ComputeHash(parent []byte, author PublicKey, data []Payload, game *GameResult) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d.Bytes)
		h.Write(d.Author)
		h.Write(d.Sig)
	}
	for _, id := range game.Tree {
		h.Write(id)
	}
	for _, e := range game.Roster {
		h.Write(e.Author)
		h.Write(e.Rounds)
	}
	h.Write(game.Winner)
	h.Write(parent)
	h.Write(author)
	return h.Sum(nil)
}

// Validate checks the four block invariants from the data model: the
// author is the game's winner, every payload validates, the stored hash
// recomputes exactly, and Sig is a valid signature of Hash under Author.
// Callers do not need a separate signature check.
func (b *Block) Validate(v Verifier) error {
	if !bytes.Equal(b.Author, b.Game.Winner) {
		return errors.New("block author is not the tournament winner")
	}
	for i := range b.Data {
		if !b.Data[i].Validate(v) {
			return errors.New("invalid payload in block")
		}
	}
	want := ComputeHash(b.Parent, b.Author, b.Data, b.Game)
	if !bytes.Equal(want, b.Hash) {
		return errors.New("block hash does not recompute")
	}
	if !v.Verify(b.Hash, b.Author, b.Sig) {
		return errors.New("invalid block signature")
	}
	return nil
}

// Encode serializes the block to the self-describing binary form stored in
// bc.db and sent over the wire.
func Encode(b *Block) ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

// Decode reverses Encode.
func Decode(data []byte) (*Block, error) {
	var b Block
	if err := rlp.DecodeBytes(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
