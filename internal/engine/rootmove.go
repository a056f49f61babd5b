package engine

import (
	"cmp"
	"slices"

	"github.com/hailam/tempest/internal/board"
	"github.com/samber/lo"
)

// RootMove is one candidate at the root with the information needed to
// order candidates and to report them.
type RootMove struct {
	Move board.Move

	Score        int // from the last search of this move, -ScoreInf when it failed low
	PrevScore    int // Score at the start of the iteration
	DisplayScore int
	UpperBound   bool
	LowerBound   bool

	SelDepth int
	PV       []board.Move
	Nodes    uint64
}

// newRootMoves lists the legal moves of pos, restricted to only when it is
// not empty.
func newRootMoves(pos *board.Position, only []board.Move) []RootMove {
	legal := pos.LegalMoves().Slice()
	if len(only) > 0 {
		legal = lo.Filter(legal, func(m board.Move, _ int) bool {
			return slices.Contains(only, m)
		})
	}
	return lo.Map(legal, func(m board.Move, _ int) RootMove {
		return RootMove{
			Move:         m,
			Score:        -ScoreInf,
			PrevScore:    -ScoreInf,
			DisplayScore: -ScoreInf,
			PV:           []board.Move{m},
		}
	})
}

// sortRootMoves orders moves by score, best first, keeping the previous
// order among equals so that MultiPV lines stay stable.
func sortRootMoves(moves []RootMove) {
	slices.SortStableFunc(moves, func(a, b RootMove) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(b.PrevScore, a.PrevScore)
	})
}

func findRootMove(moves []RootMove, m board.Move) *RootMove {
	for i := range moves {
		if moves[i].Move == m {
			return &moves[i]
		}
	}
	return nil
}

// reportedScore is the score to print for a line: the last completed score
// if the current iteration has not produced one yet.
func (rm *RootMove) reportedScore() (score int, upper, lower bool) {
	if rm.Score == -ScoreInf {
		return rm.PrevScore, false, false
	}
	return rm.DisplayScore, rm.UpperBound, rm.LowerBound
}
