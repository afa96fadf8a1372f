package tournament

import (
	"bytes"
	"fmt"
	"testing"

	"mccloud/chain"
)

func noopSign(_ []byte) (chain.Signature, error) { return chain.Signature("sig"), nil }

func alwaysVerify(_ []byte, _ chain.PublicKey, _ chain.Signature) bool { return true }

func TestDrawLength(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 2, 6: 2, 7: 3, 8: 3}
	for n, want := range cases {
		got := drawLength(n)
		if got != want {
			t.Errorf("drawLength(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSingleParticipantWinsTrivially(t *testing.T) {
	self := chain.PublicKey("solo")
	tr := New()
	tr.Populate([]chain.PublicKey{self})

	draw, err := tr.CreateDraw(self, noopSign)
	if err != nil {
		t.Fatalf("CreateDraw: %v", err)
	}
	if !tr.AddDraw(draw, alwaysVerify) {
		t.Fatalf("AddDraw rejected the only participant's own draw")
	}
	if !tr.IsFilled() {
		t.Fatalf("roster of one should be filled after its sole draw")
	}

	result, err := tr.Evaluate(self, noopSign)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !bytes.Equal(result.Winner, self) {
		t.Fatalf("winner = %x, want self %x", result.Winner, self)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	ids := []chain.PublicKey{
		chain.PublicKey("alice"),
		chain.PublicKey("bob"),
		chain.PublicKey("carol"),
		chain.PublicKey("dave"),
		chain.PublicKey("erin"),
	}

	run := func() *chain.GameResult {
		tr := New()
		tr.Populate(ids)
		for _, id := range ids {
			d := chain.GameDraw{Author: id, Rounds: []byte{1, 2}}
			if !tr.AddDraw(d, alwaysVerify) {
				t.Fatalf("AddDraw rejected %x", id)
			}
		}
		if !tr.IsFilled() {
			t.Fatalf("roster should be filled")
		}
		result, err := tr.Evaluate(ids[0], noopSign)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		return result
	}

	a := run()
	b := run()
	if !bytes.Equal(a.Winner, b.Winner) {
		t.Errorf("two evaluations of the same roster/draws picked different winners: %x vs %x", a.Winner, b.Winner)
	}
	if len(a.Tree) != len(b.Tree) {
		t.Fatalf("tree length mismatch: %d vs %d", len(a.Tree), len(b.Tree))
	}
	for i := range a.Tree {
		if !bytes.Equal(a.Tree[i], b.Tree[i]) {
			t.Errorf("tree[%d] differs: %x vs %x", i, a.Tree[i], b.Tree[i])
		}
	}
	fmt.Printf("winner over %d participants: %x\n", len(ids), a.Winner)
}

func TestRPSWinnerRules(t *testing.T) {
	p0, p1 := chain.PublicKey("p0"), chain.PublicKey("p1")
	cases := []struct {
		v0, v1 byte
		want   chain.PublicKey
	}{
		{rock, scissor, p0},
		{scissor, rock, p1},
		{paper, rock, p0},
		{rock, paper, p1},
		{scissor, paper, p0},
		{paper, scissor, p1},
		{rock, rock, p1},
		{paper, paper, p1},
	}
	for _, c := range cases {
		got := rpsWinner(p0, c.v0, p1, c.v1)
		if !bytes.Equal(got, c.want) {
			t.Errorf("rpsWinner(%d,%d) = %x, want %x", c.v0, c.v1, got, c.want)
		}
	}
}
