package engine

import "github.com/hailam/tempest/internal/board"

const (
	qsFutilityMargin = 150
	qsSEEThreshold   = -100
	qsCheckPlies     = 2 // quiet checks are tried on this many plies after the horizon
)

// qsearch resolves captures (and evasions when in check) until the position
// is quiet, to avoid the horizon effect. qply counts plies since the main
// search handed over.
func (w *worker) qsearch(ply, qply, alpha, beta int, pvNode bool) int {
	ss := w.ss(ply)
	pos := &ss.pos
	if pvNode {
		ss.pvLen = 0
	}

	if w.checkStop() {
		return 0
	}
	w.selDepth = max(w.selDepth, ply+1)

	if ply > 0 && w.isDrawn(pos, ply) {
		return ScoreDraw
	}

	inCheck := pos.InCheck()
	if ply >= MaxDepth-1 {
		if inCheck {
			return ScoreDraw
		}
		return w.correct(pos, ply, w.eval.Evaluate(pos))
	}

	tte, ttHit := w.tt.Probe(pos.Hash, ply)
	if !pvNode && ttHit && tte.Score != ScoreNone && boundResolves(tte.Bound, tte.Score, alpha, beta) {
		return tte.Score
	}
	ttMove := board.NoMove
	if ttHit {
		ttMove = tte.Move
	}

	rawEval := ScoreNone
	bestScore := -ScoreInf
	futility := -ScoreInf

	if !inCheck {
		if ttHit && tte.StaticEval != ScoreNone {
			rawEval = tte.StaticEval
		} else {
			rawEval = w.eval.Evaluate(pos)
		}
		bestScore = w.correct(pos, ply, rawEval)

		if ttHit && tte.Score != ScoreNone && !IsDecisive(tte.Score) &&
			(tte.Bound == BoundExact ||
				(tte.Bound == BoundLower && tte.Score > bestScore) ||
				(tte.Bound == BoundUpper && tte.Score < bestScore)) {
			bestScore = tte.Score
		}

		// Stand pat
		if bestScore >= beta {
			if !ttHit {
				w.tt.Put(pos.Hash, bestScore, rawEval, board.NoMove, 0, ply, BoundLower, false)
			}
			return bestScore
		}
		alpha = max(alpha, bestScore)
		futility = bestScore + qsFutilityMargin
	}

	quiets := qsNoQuiets
	switch {
	case inCheck:
		quiets = qsEvasions
	case qply < qsCheckPlies:
		quiets = qsChecks
	}

	bestMove := board.NoMove
	moveCount := 0

	mp := newQsearchPicker(w, pos, ply, ttMove, quiets)
	for m := mp.next(); m != board.NoMove; m = mp.next() {
		if !pos.IsLegal(m) {
			continue
		}
		noisy := pos.IsNoisy(m)

		if !inCheck {
			if noisy {
				// Delta pruning: even winning this exchange cannot lift alpha.
				if futility <= alpha && !SEE(pos, m, 1) {
					bestScore = max(bestScore, futility)
					continue
				}
				if !SEE(pos, m, qsSEEThreshold) {
					continue
				}
			} else {
				if next, _ := pos.Apply(m); !next.InCheck() {
					continue
				}
				if !SEE(pos, m, 0) {
					continue
				}
			}
		}

		w.makeMove(ply, m, true)
		moveCount++
		score := -w.qsearch(ply+1, qply+1, -beta, -alpha, pvNode)
		w.unmakeMove()

		if w.stopped() {
			return 0
		}

		if score > bestScore {
			bestScore = score
		}
		if score > alpha {
			bestMove = m
			alpha = score
			if pvNode {
				ss.updatePV(m, w.ss(ply+1))
			}
			if score >= beta {
				break
			}
		}
	}

	if inCheck && moveCount == 0 {
		return MatedIn(ply)
	}

	bound := BoundUpper
	if bestScore >= beta {
		bound = BoundLower
	}
	w.tt.Put(pos.Hash, bestScore, rawEval, bestMove, 0, ply, bound, false)
	return bestScore
}
