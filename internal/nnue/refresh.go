package nnue

import "github.com/hailam/tempest/internal/board"

type refreshEntry struct {
	acc    [HiddenSize]int16
	pieces [2][6]board.Bitboard
}

// RefreshTable keeps, per perspective and king placement (bucket and mirror
// half), the accumulator of the last position refreshed there together with
// the pieces it was built from. A refresh only applies the piece difference.
type RefreshTable struct {
	entries [2][refreshEntries]refreshEntry
}

// Reset sets every entry to the transformer biases of an empty board.
func (rt *RefreshTable) Reset(net *Network) {
	for c := range rt.entries {
		for i := range rt.entries[c] {
			e := &rt.entries[c][i]
			copy(e.acc[:], net.FTBiases)
			e.pieces = [2][6]board.Bitboard{}
		}
	}
}

// refresh writes the perspective accumulator for pieces with the king on ksq
// into dst and updates the cached entry.
func (rt *RefreshTable) refresh(net *Network, perspective board.Color, ksq board.Square,
	pieces *[2][6]board.Bitboard, dst []int16) {

	e := &rt.entries[perspective][refreshIndex(perspective, ksq)]

	var adds, subs [32]int
	na, ns := 0, 0
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			pc := board.NewPiece(pt, c)
			added := pieces[c][pt] &^ e.pieces[c][pt]
			removed := e.pieces[c][pt] &^ pieces[c][pt]
			for added != 0 {
				adds[na] = weightOffset(perspective, ksq, pc, added.PopLSB())
				na++
			}
			for removed != 0 {
				subs[ns] = weightOffset(perspective, ksq, pc, removed.PopLSB())
				ns++
			}
		}
	}

	applyBatched(e.acc[:], net.FTWeights, adds[:na], vecAdd4, vecAdd)
	applyBatched(e.acc[:], net.FTWeights, subs[:ns], vecSub4, vecSub)

	e.pieces = *pieces
	vecCopy(dst, e.acc[:])
}

func applyBatched(acc, w []int16, offsets []int,
	four func([]int16, []int16, [4]int), one func([]int16, []int16, int)) {
	for len(offsets) >= 4 {
		four(acc, w, [4]int(offsets[:4]))
		offsets = offsets[4:]
	}
	for _, o := range offsets {
		one(acc, w, o)
	}
}
