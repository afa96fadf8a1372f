// Package tournament implements the Highlander producer-election
// algorithm: a deterministic single-elimination bracket over per-node
// rock-paper-scissor draws, seeded by each round's roster.
package tournament

import (
	"bytes"
	"crypto/rand"
	"sort"

	"mccloud/chain"

	"github.com/ethereum/go-ethereum/log"
)

const (
	rock    = 0
	paper   = 1
	scissor = 2
)

// Tournament holds one round's roster: every known public key mapped to
// its draw, once received. A Tournament is reused across rounds via
// Clear/Populate, mirroring the teacher's candidate-list reset pattern in
// berith/selection.
type Tournament struct {
	roster map[string][]byte // nil value: no draw yet
}

// New returns an empty Tournament.
func New() *Tournament {
	return &Tournament{roster: make(map[string][]byte)}
}

// Clear empties the roster ahead of a new round.
func (t *Tournament) Clear() {
	t.roster = make(map[string][]byte)
}

// Populate inserts every given public key into the roster with no draw.
func (t *Tournament) Populate(keys []chain.PublicKey) {
	for _, k := range keys {
		t.roster[string(k)] = nil
	}
}

// Size returns the number of participants in the current roster.
func (t *Tournament) Size() int { return len(t.roster) }

// K returns the number of bracket levels for the current roster size,
// floor(log2(M)) with M the roster size rounded up to even. Mirrors the
// original reference's `(count as f64).log2() as usize` truncation.
func (t *Tournament) K() int {
	return drawLength(len(t.roster))
}

func drawLength(n int) int {
	m := n + n%2
	if m < 2 {
		return 0
	}
	k := 0
	for (1 << uint(k+1)) <= m {
		k++
	}
	return k
}

// CreateDraw produces this node's own ballot: K CSPRNG bytes reduced
// modulo 3, signed under key.
func (t *Tournament) CreateDraw(pub chain.PublicKey, sign func([]byte) (chain.Signature, error)) (chain.GameDraw, error) {
	k := t.K()
	buf := make([]byte, k)
	if k > 0 {
		if _, err := rand.Read(buf); err != nil {
			return chain.GameDraw{}, err
		}
		for i := range buf {
			buf[i] %= 3
		}
	}
	sig, err := sign(buf)
	if err != nil {
		return chain.GameDraw{}, err
	}
	return chain.GameDraw{Author: pub, Sig: sig, Rounds: buf}, nil
}

// AddDraw accepts a received GameDraw into the roster iff the author is
// present, the draw length matches K, and the signature over the rounds
// verifies under the author. Invalid draws are logged and
// discarded; the caller decides whether to abort the round.
func (t *Tournament) AddDraw(d chain.GameDraw, verify func(data []byte, pub chain.PublicKey, sig chain.Signature) bool) bool {
	if _, known := t.roster[string(d.Author)]; !known {
		log.Warn("tournament: draw author is not part of the roster", "author", chain.PublicKey(d.Author).Hex())
		return false
	}
	if len(d.Rounds) != t.K() {
		log.Warn("tournament: draw length does not match roster size", "author", chain.PublicKey(d.Author).Hex(), "got", len(d.Rounds), "want", t.K())
		return false
	}
	if !verify(d.Rounds, d.Author, d.Sig) {
		log.Warn("tournament: draw signature does not verify", "author", chain.PublicKey(d.Author).Hex())
		return false
	}
	t.roster[string(d.Author)] = d.Rounds
	return true
}

// IsFilled reports whether every roster entry carries a draw.
func (t *Tournament) IsFilled() bool {
	for _, v := range t.roster {
		if v == nil {
			return false
		}
	}
	return true
}

// Evaluate walks the single-elimination bracket over the roster's sorted
// keys and their committed draws, returning the GameResult. Only the
// winner signs: sign is invoked once, and only when self is the winner;
// otherwise the result's Sig is left empty. The roster is cleared before
// returning.
func (t *Tournament) Evaluate(self chain.PublicKey, sign func([]byte) (chain.Signature, error)) (*chain.GameResult, error) {
	n := len(t.roster)
	m := n + n%2
	treeSize := 2*m - 1

	ids := make([]chain.PublicKey, 0, n)
	for k := range t.roster {
		ids = append(ids, chain.PublicKey(k))
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i], ids[j]) < 0 })

	tree := make([]chain.PublicKey, treeSize)
	for i, id := range ids {
		tree[i] = id
	}

	lvl := 0
	offset := 0
	count := m
	for count > 1 {
		for i := 0; i < count; i += 2 {
			p0 := tree[offset+i]
			v0 := t.roster[string(p0)][lvl]

			var w chain.PublicKey
			if offset+i+1 < len(tree) && tree[offset+i+1] != nil {
				p1 := tree[offset+i+1]
				v1 := t.roster[string(p1)][lvl]
				w = rpsWinner(p0, v0, p1, v1)
			} else {
				w = p0
			}
			tree[i/2+count+offset] = w
		}
		offset += count
		count = count / 2
		lvl++
	}

	var winner chain.PublicKey
	if len(tree) == 0 {
		winner = self
	} else {
		winner = tree[len(tree)-1]
	}

	roster := make(map[string][]byte, n)
	for k, v := range t.roster {
		roster[k] = v
	}
	result := chain.NewGameResult(tree, roster, winner)

	if bytes.Equal(winner, self) {
		sig, err := sign(result.Hash())
		if err != nil {
			return nil, err
		}
		result.Sig = sig
	}

	log.Info("tournament evaluated", "winner", winner.Hex(), "roster", n)
	t.Clear()
	return result, nil
}

// rpsWinner resolves one Rock-Paper-Scissor comparison. Ties favor p1;
// the higher value wins except Rock beats Scissor.
func rpsWinner(p0 chain.PublicKey, v0 byte, p1 chain.PublicKey, v1 byte) chain.PublicKey {
	if v0 == v1 {
		return p1
	}
	if v0 > v1 {
		if v0 == scissor && v1 == rock {
			return p1
		}
		return p0
	}
	if v0 == rock && v1 == scissor {
		return p0
	}
	return p1
}

// Verify recomputes the canonical hash of a received GameResult and checks
// the winner's signature over it.
func Verify(g *chain.GameResult, verify func(data []byte, pub chain.PublicKey, sig chain.Signature) bool) bool {
	return verify(g.Hash(), g.Winner, g.Sig)
}
