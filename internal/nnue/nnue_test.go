package nnue

import (
	"testing"

	"github.com/hailam/tempest/internal/board"
	"github.com/matryer/is"
	"lukechampine.com/frand"
)

var testNet = Synthetic(1)

func newTestRand() *frand.RNG {
	seed := make([]byte, 32)
	copy(seed, "tempest nnue tests")
	return frand.NewCustom(seed, 1024, 12)
}

func TestKingBuckets(t *testing.T) {
	tests := []struct {
		c      board.Color
		ksq    board.Square
		bucket int
		mirror bool
	}{
		{board.White, board.A1, 0, false},
		{board.White, board.D1, 3, false},
		{board.White, board.E1, 3, true},
		{board.White, board.H1, 0, true},
		{board.White, board.C2, 5, false},
		{board.White, board.E4, 6, true},
		{board.White, board.A8, 7, false},
		{board.Black, board.E8, 3, true},
		{board.Black, board.B7, 4, false},
		{board.Black, board.H1, 7, true},
	}
	for _, tc := range tests {
		if got := kingBucket(tc.c, tc.ksq); got != tc.bucket {
			t.Errorf("kingBucket(%v, %v) = %d, want %d", tc.c, tc.ksq, got, tc.bucket)
		}
		if got := mirrored(tc.ksq); got != tc.mirror {
			t.Errorf("mirrored(%v) = %v, want %v", tc.ksq, got, tc.mirror)
		}
	}
}

func TestFeatureIndexSymmetry(t *testing.T) {
	is := is.New(t)
	// A white pawn on e2 seen by White with the king on e1 is the same feature
	// as a black pawn on e7 seen by Black with the king on e8.
	w := featureIndex(board.White, board.E1, board.WhitePawn, board.E2)
	b := featureIndex(board.Black, board.E8, board.BlackPawn, board.E7)
	is.Equal(w, b)

	// Both kings share one plane.
	own := featureIndex(board.White, board.E1, board.WhiteKing, board.E1)
	theirs := featureIndex(board.White, board.E1, board.BlackKing, board.E1)
	is.Equal(own, theirs)

	for _, sq := range []board.Square{board.A1, board.H8, board.D4} {
		for pc := board.WhitePawn; pc <= board.BlackKing; pc++ {
			idx := featureIndex(board.Black, board.G8, pc, sq)
			is.True(idx >= 0 && idx < InputSize)
		}
	}
}

func TestOutputBucket(t *testing.T) {
	is := is.New(t)
	is.Equal(outputBucket(board.NewPosition()), OutputBuckets-1)
	pos, err := board.ParseFEN("4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	is.NoErr(err)
	is.Equal(outputBucket(pos), 0)
}

// The incrementally maintained accumulator gives exactly the from-scratch
// evaluation along random games, including king bucket crossings.
func TestIncrementalMatchesScratch(t *testing.T) {
	rng := newTestRand()
	ev := NewEvaluator(testNet)
	check := func(pos *board.Position) {
		t.Helper()
		if got, want := ev.Evaluate(pos), testNet.EvaluateScratch(pos); got != want {
			t.Fatalf("depth %d: incremental %d != scratch %d at %s", ev.Depth(), got, want, pos.FEN())
		}
	}

	for game := 0; game < 20; game++ {
		root := board.NewPosition()
		ev.Reset(root)
		line := []board.Position{*root}

		for ply := 0; ply < 80; ply++ {
			top := line[len(line)-1]
			moves := top.LegalMoves()
			if moves.Len() == 0 {
				break
			}
			next, d := top.Apply(moves.Get(rng.Intn(moves.Len())))
			if rng.Intn(2) == 0 {
				ev.Push(&next, d)
			} else {
				ev.PushImmediate(&next, d)
			}
			line = append(line, next)

			// Leave some plies dirty so later evaluations replay several deltas.
			if rng.Intn(3) != 0 {
				check(&line[len(line)-1])
			}
		}

		for ev.Depth() > 0 {
			ev.Pop()
			line = line[:len(line)-1]
			check(&line[len(line)-1])
		}
	}
}

func TestApplyInPlaceMatchesScratch(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	ev := NewEvaluator(testNet)
	ev.Reset(pos)

	for _, s := range []string{"e2e4", "e7e5", "e1e2", "e8e7", "e2f3", "b8c6"} {
		m, err := board.ParseMove(s, pos)
		is.NoErr(err)
		next, d := pos.Apply(m)
		ev.ApplyInPlace(&next, d)
		pos = &next
		is.Equal(ev.Depth(), 0)
		is.Equal(ev.Evaluate(pos), testNet.EvaluateScratch(pos))
	}
}

// A king move that changes bucket below the top rebuilds only the top slot.
func TestRefreshSkipsReplay(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	ev := NewEvaluator(testNet)
	ev.Reset(pos)

	line := []board.Position{*pos}
	for _, s := range []string{"e2e4", "e7e5", "e1e2", "e8e7", "g1f3"} {
		top := &line[len(line)-1]
		m, err := board.ParseMove(s, top)
		is.NoErr(err)
		next, d := top.Apply(m)
		ev.Push(&next, d)
		line = append(line, next)
	}
	is.True(ev.stack[3].refresh[board.White])
	is.True(ev.stack[4].refresh[board.Black])

	top := &line[5]
	is.Equal(ev.Evaluate(top), testNet.EvaluateScratch(top))
	for i := 1; i < 5; i++ {
		is.True(ev.stack[i].dirty[board.White]) // nothing replayed below the top
	}
	is.True(!ev.stack[5].dirty[board.White] && !ev.stack[5].dirty[board.Black])

	ev.Pop()
	is.Equal(ev.Evaluate(&line[4]), testNet.EvaluateScratch(&line[4]))
	ev.Pop()
	is.Equal(ev.Evaluate(&line[3]), testNet.EvaluateScratch(&line[3]))
}

func TestPushPopRestoresState(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	ev := NewEvaluator(testNet)
	ev.Reset(pos)
	root := ev.Evaluate(pos)

	m, err := board.ParseMove("g1f3", pos)
	is.NoErr(err)
	next, d := pos.Apply(m)

	ev.Push(&next, d)
	is.Equal(ev.Depth(), 1)
	is.True(ev.stack[1].dirty[board.White] && ev.stack[1].dirty[board.Black])
	ev.Pop()
	is.Equal(ev.Depth(), 0)
	is.True(!ev.stack[0].dirty[board.White] && !ev.stack[0].dirty[board.Black])
	is.Equal(ev.Evaluate(pos), root)

	// A null move needs no slot: the same accumulator serves the other side.
	null := pos.ApplyNull()
	is.Equal(ev.Evaluate(&null), testNet.EvaluateScratch(&null))
}

func TestEvaluationIsBounded(t *testing.T) {
	rng := newTestRand()
	for i := 0; i < 200; i++ {
		pos := board.NewPosition()
		plies := rng.Intn(60)
		for ply := 0; ply < plies; ply++ {
			moves := pos.LegalMoves()
			if moves.Len() == 0 {
				break
			}
			next, _ := pos.Apply(moves.Get(rng.Intn(moves.Len())))
			pos = &next
		}
		if v := testNet.EvaluateScratch(pos); v > 30000 || v < -30000 {
			t.Fatalf("evaluation %d out of range at %s", v, pos.FEN())
		}
	}
}
