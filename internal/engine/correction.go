package engine

import (
	"github.com/hailam/tempest/internal/board"
)

// correctionEntries is the number of entries per side to move in each keyed table.
const correctionEntries = 16384

const (
	correctionLimit    = 1024
	correctionMaxBonus = correctionLimit / 4
)

// correctionEntry uses the same gravity update as historyEntry with a
// smaller bound.
type correctionEntry int16

func (c *correctionEntry) update(bonus int) {
	bonus = clamp(bonus, -correctionMaxBonus, correctionMaxBonus)
	v := int(*c)
	v += bonus - v*abs(bonus)/correctionLimit
	*c = correctionEntry(v)
}

// CorrectionHistory adjusts static evaluation based on search results.
// When the search discovers the static eval was wrong, we record the error
// under several partial keys of the position and under the moves that led to
// it, and apply the combined correction to similar positions in the future.
type CorrectionHistory struct {
	pawn    [2][correctionEntries]correctionEntry
	major   [2][correctionEntries]correctionEntry
	nonPawn [2][2][correctionEntries]correctionEntry // [side to move][piece colour]

	// Indexed by the piece and destination of the move played 1, 2 and 4
	// plies earlier.
	cont [3][2][12][64]correctionEntry
}

var contCorrectionOffsets = [3]int{1, 2, 4}

// Clear resets all correction values.
func (ch *CorrectionHistory) Clear() {
	*ch = CorrectionHistory{}
}

func (w *worker) contCorrection(ply, i int) *correctionEntry {
	k := contCorrectionOffsets[i]
	if ply < k {
		return nil
	}
	prev := w.ss(ply - k)
	if prev.move == board.NoMove {
		return nil
	}
	stm := w.ss(ply).pos.SideToMove
	return &w.corr.cont[i][stm][prev.piece][prev.move.To()]
}

// correct returns eval nudged by the learned error for this node, kept
// clear of the decisive score range.
func (w *worker) correct(pos *board.Position, ply, eval int) int {
	ch := &w.corr
	stm := pos.SideToMove

	sum := int(ch.pawn[stm][pos.PawnKey%correctionEntries]) * corrPawnWeight
	sum += int(ch.major[stm][pos.MajorKey%correctionEntries]) * corrMajorWeight
	sum += int(ch.nonPawn[stm][board.White][pos.NonPawnKeys[board.White]%correctionEntries]) * corrNonPawnWeight
	sum += int(ch.nonPawn[stm][board.Black][pos.NonPawnKeys[board.Black]%correctionEntries]) * corrNonPawnWeight
	for i := range contCorrectionOffsets {
		if e := w.contCorrection(ply, i); e != nil {
			sum += int(*e) * corrContWeight
		}
	}

	return clamp(eval+sum/corrScale, -ScoreWin+1, ScoreWin-1)
}

// updateCorrection records the gap between the search result and the raw
// static eval. Deeper searches are more reliable and weigh more.
func (w *worker) updateCorrection(pos *board.Position, ply, depth, score, rawEval int) {
	ch := &w.corr
	stm := pos.SideToMove
	bonus := (score - rawEval) * depth / 8

	ch.pawn[stm][pos.PawnKey%correctionEntries].update(bonus)
	ch.major[stm][pos.MajorKey%correctionEntries].update(bonus)
	ch.nonPawn[stm][board.White][pos.NonPawnKeys[board.White]%correctionEntries].update(bonus)
	ch.nonPawn[stm][board.Black][pos.NonPawnKeys[board.Black]%correctionEntries].update(bonus)
	for i := range contCorrectionOffsets {
		if e := w.contCorrection(ply, i); e != nil {
			e.update(bonus)
		}
	}
}

// shouldUpdateCorrection reports whether the final bound tells us which way
// the raw eval was wrong.
func shouldUpdateCorrection(inCheck bool, best board.Move, pos *board.Position, bound Bound, bestScore, rawEval int) bool {
	if inCheck || (best != board.NoMove && pos.IsNoisy(best)) {
		return false
	}
	switch bound {
	case BoundLower:
		return bestScore > rawEval
	case BoundUpper:
		return bestScore < rawEval
	}
	return true
}
