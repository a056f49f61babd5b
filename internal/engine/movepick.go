package engine

import "github.com/hailam/tempest/internal/board"

type pickStage uint8

const (
	stageTTMove pickStage = iota
	stageGenNoisy
	stageGoodNoisy
	stageKiller
	stageGenQuiet
	stageQuiet
	stageBadNoisy

	stageQsTTMove
	stageQsGenNoisy
	stageQsNoisy
	stageQsGenQuiet
	stageQsQuiet

	stageProbcutTTMove
	stageProbcutGenNoisy
	stageProbcutNoisy

	stageEnd
)

// movePicker yields pseudo-legal moves one at a time in the order the search
// wants to try them: TT move, winning noisy moves, killer, quiets by
// history, then losing noisy moves. Callers still check legality.
type movePicker struct {
	w     *worker
	pos   *board.Position
	ply   int
	stage pickStage

	ttMove board.Move
	killer board.Move

	moves  board.MoveList
	scores [board.MaxMoves]int
	idx    int

	bad    board.MoveList
	badIdx int

	threshold  int
	quietMode  qsQuietMode
	skipQuiets bool
}

// qsQuietMode says which quiet moves quiescence search may look at.
type qsQuietMode uint8

const (
	qsNoQuiets qsQuietMode = iota
	qsEvasions
	qsChecks
)

func newMainPicker(w *worker, pos *board.Position, ply int, ttMove, killer board.Move) movePicker {
	mp := movePicker{w: w, pos: pos, ply: ply, stage: stageTTMove, ttMove: ttMove}
	if killer != ttMove && killer != board.NoMove && !pos.IsNoisy(killer) && pos.IsPseudoLegal(killer) {
		mp.killer = killer
	}
	return mp
}

func newQsearchPicker(w *worker, pos *board.Position, ply int, ttMove board.Move, quiets qsQuietMode) movePicker {
	mp := movePicker{w: w, pos: pos, ply: ply, stage: stageQsTTMove, quietMode: quiets}
	if quiets != qsNoQuiets || (ttMove != board.NoMove && pos.IsNoisy(ttMove)) {
		mp.ttMove = ttMove
	}
	return mp
}

func newProbcutPicker(w *worker, pos *board.Position, ttMove board.Move, threshold int) movePicker {
	mp := movePicker{w: w, pos: pos, stage: stageProbcutTTMove, threshold: threshold}
	if ttMove != board.NoMove && pos.IsNoisy(ttMove) {
		mp.ttMove = ttMove
	}
	return mp
}

// next returns the next move, or NoMove when there are none left.
func (mp *movePicker) next() board.Move {
	for {
		switch mp.stage {
		case stageTTMove, stageQsTTMove:
			mp.stage++
			if mp.ttMove != board.NoMove && mp.pos.IsPseudoLegal(mp.ttMove) {
				return mp.ttMove
			}

		case stageProbcutTTMove:
			mp.stage++
			if mp.ttMove != board.NoMove && mp.pos.IsPseudoLegal(mp.ttMove) && SEE(mp.pos, mp.ttMove, mp.threshold) {
				return mp.ttMove
			}

		case stageGenNoisy, stageQsGenNoisy, stageProbcutGenNoisy:
			mp.moves.Clear()
			mp.pos.GenerateNoisy(&mp.moves)
			mp.scoreNoisy()
			mp.idx = 0
			mp.stage++

		case stageGoodNoisy:
			for mp.idx < mp.moves.Len() {
				m := mp.pick()
				if m == mp.ttMove {
					continue
				}
				if !SEE(mp.pos, m, -mp.scores[mp.idx-1]/4) {
					mp.bad.Add(m)
					continue
				}
				return m
			}
			mp.stage++

		case stageKiller:
			mp.stage++
			if !mp.skipQuiets && mp.killer != board.NoMove {
				return mp.killer
			}

		case stageGenQuiet:
			if mp.skipQuiets {
				mp.stage = stageBadNoisy
				continue
			}
			mp.moves.Clear()
			mp.pos.GenerateQuiet(&mp.moves)
			mp.scoreQuiet()
			mp.idx = 0
			mp.stage++

		case stageQuiet:
			for !mp.skipQuiets && mp.idx < mp.moves.Len() {
				m := mp.pick()
				if m == mp.ttMove || m == mp.killer {
					continue
				}
				return m
			}
			mp.stage++

		case stageBadNoisy:
			for mp.badIdx < mp.bad.Len() {
				m := mp.bad.Get(mp.badIdx)
				mp.badIdx++
				if m != mp.ttMove {
					return m
				}
			}
			mp.stage = stageEnd

		case stageQsNoisy:
			for mp.idx < mp.moves.Len() {
				if m := mp.pick(); m != mp.ttMove {
					return m
				}
			}
			mp.stage++

		case stageQsGenQuiet:
			if mp.quietMode == qsNoQuiets {
				mp.stage = stageEnd
				continue
			}
			mp.moves.Clear()
			mp.pos.GenerateQuiet(&mp.moves)
			mp.scoreQuiet()
			mp.idx = 0
			mp.stage++

		case stageQsQuiet:
			for mp.idx < mp.moves.Len() {
				if m := mp.pick(); m != mp.ttMove {
					return m
				}
			}
			mp.stage = stageEnd

		case stageProbcutNoisy:
			for mp.idx < mp.moves.Len() {
				m := mp.pick()
				if m != mp.ttMove && SEE(mp.pos, m, mp.threshold) {
					return m
				}
			}
			mp.stage = stageEnd

		default:
			return board.NoMove
		}
	}
}

// pick moves the best scored remaining move to idx and returns it.
func (mp *movePicker) pick() board.Move {
	best := mp.idx
	for j := mp.idx + 1; j < mp.moves.Len(); j++ {
		if mp.scores[j] > mp.scores[best] {
			best = j
		}
	}
	if best != mp.idx {
		mp.moves.Swap(mp.idx, best)
		mp.scores[mp.idx], mp.scores[best] = mp.scores[best], mp.scores[mp.idx]
	}
	m := mp.moves.Get(mp.idx)
	mp.idx++
	return m
}

func (mp *movePicker) scoreNoisy() {
	for i, m := range mp.moves.Slice() {
		score := mp.w.noisyScore(mp.pos, m) + 8*seeValues[capturedType(mp.pos, m)]
		if m.IsPromotion() && m.Promotion() == board.Queen {
			score += 8 * seeValues[board.Queen]
		}
		mp.scores[i] = score
	}
}

func (mp *movePicker) scoreQuiet() {
	for i, m := range mp.moves.Slice() {
		mp.scores[i] = mp.w.quietScore(mp.pos, mp.ply, m)
	}
}

// skipQuietMoves stops the picker from yielding further quiet moves. Bad
// noisy moves still follow.
func (mp *movePicker) skipQuietMoves() {
	mp.skipQuiets = true
}
