// Package engine implements the search: a shared transposition table,
// per-thread history and correction tables, a staged move picker, the
// principal variation search itself and the Lazy SMP thread pool that drives
// it under a Limiter.
package engine

import (
	"runtime"

	"github.com/hailam/tempest/internal/board"
	"golang.org/x/sync/errgroup"
)

// PerftEntry is the leaf count below one root move.
type PerftEntry struct {
	Move  board.Move
	Nodes uint64
}

// Perft counts the leaf nodes of the legal move tree to the given depth,
// split by root move. Root moves are counted in parallel.
func Perft(pos *board.Position, depth int) []PerftEntry {
	if depth < 1 {
		return nil
	}
	moves := pos.LegalMoves().Slice()
	out := make([]PerftEntry, len(moves))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range moves {
		g.Go(func() error {
			next, _ := pos.Apply(m)
			out[i] = PerftEntry{Move: m, Nodes: perft(&next, depth-1)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func perft(pos *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	var ml board.MoveList
	pos.GenerateLegal(&ml)
	if depth == 1 {
		return uint64(ml.Len())
	}
	var n uint64
	for _, m := range ml.Slice() {
		next, _ := pos.Apply(m)
		n += perft(&next, depth-1)
	}
	return n
}
