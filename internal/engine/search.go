package engine

import (
	"math"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/debug"
	"github.com/hailam/tempest/internal/tablebase"
)

// Pruning constants
const (
	rfpMaxDepth        = 8
	rfpMargin          = 75
	rfpComplexityScale = 2 // complexity is divided by this before widening the margin

	razorMaxDepth = 4
	razorMargin   = 300

	nmpMinDepth         = 3
	nmpVerifyDepth      = 14
	nmpEvalDivisor      = 200
	nmpMaxEvalReduction = 3

	probcutMinDepth  = 5
	probcutMargin    = 200
	probcutReduction = 4

	lmpMaxDepth       = 15
	histPruneMaxDepth = 4
	histPruneMargin   = -2500

	futilityMaxDepth = 8
	futilityMargin   = 120
	futilityScale    = 80

	seeQuietScale = -40
	seeNoisyScale = -100
	seeMaxDepth   = 9

	seMinDepth           = 7
	seDoubleMargin       = 16
	seTripleMargin       = 100
	seMaxDoubleExtension = 8

	lmrMinDepth          = 2
	lmrHistDivisor       = 8192
	lmrComplexityLimit   = 70
	lmrDeeperBase        = 40
	lmrShallowerMargin   = 8
	hindsightReduction   = 3
	aspirationMinDepth   = 3
	aspirationDelta      = 16
	aspirationMaxReduced = 3

	historyBonusScale  = 300
	historyBonusOffset = 250
	historyBonusMax    = 2500
	historyMalusScale  = 350
	historyMalusOffset = 200
	historyMalusMax    = 1300

	corrPawnWeight    = 128
	corrMajorWeight   = 96
	corrNonPawnWeight = 112
	corrContWeight    = 64
	corrScale         = 1024

	checkInterval = 2048
)

// lmrTable holds base late move reductions indexed by [quiet][depth][move
// number], from the usual log(depth)*log(moves) shape.
var lmrTable [2][64][64]int

// lmpTable holds the number of quiet moves searched before the rest are
// skipped, indexed by [improving][depth].
var lmpTable [2][lmpMaxDepth + 1]int

func init() {
	for d := 1; d < 64; d++ {
		for m := 1; m < 64; m++ {
			ln := math.Log(float64(d)) * math.Log(float64(m))
			lmrTable[0][d][m] = int(-0.2 + ln/3.35)
			lmrTable[1][d][m] = int(0.8 + ln/2.15)
		}
	}
	for d := 0; d <= lmpMaxDepth; d++ {
		lmpTable[0][d] = (3 + d*d) / 2
		lmpTable[1][d] = 3 + d*d
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// search is the principal variation search. The position searched is the
// one stored in the stack entry for ply.
func (w *worker) search(ply, depth, alpha, beta int, pvNode, cutNode bool) int {
	debug.Assert(ply >= 0 && ply < MaxDepth, "search ply out of range")
	debug.Assert(pvNode || beta-alpha == 1, "non-PV node with open window")

	if depth <= 0 {
		return w.qsearch(ply, 0, alpha, beta, pvNode)
	}

	ss := w.ss(ply)
	pos := &ss.pos
	root := ply == 0
	if pvNode {
		ss.pvLen = 0
	}

	if w.checkStop() {
		return 0
	}
	w.selDepth = max(w.selDepth, ply+1)

	inCheck := pos.InCheck()
	excluded := ss.excluded

	if !root {
		if w.isDrawn(pos, ply) {
			return ScoreDraw
		}
		if ply >= MaxDepth-1 {
			if inCheck {
				return ScoreDraw
			}
			return w.correct(pos, ply, w.eval.Evaluate(pos))
		}

		// Mate distance pruning
		alpha = max(alpha, MatedIn(ply))
		beta = min(beta, MateIn(ply+1))
		if alpha >= beta {
			return alpha
		}

		// A reversible move back into an earlier position is available.
		if alpha < ScoreDraw && pos.HasCycle(ply, w.keys) {
			alpha = ScoreDraw
			if alpha >= beta {
				return alpha
			}
		}
	}

	var tte ProbedEntry
	ttHit := false
	if excluded == board.NoMove {
		tte, ttHit = w.tt.Probe(pos.Hash, ply)
	}
	ttMove := board.NoMove
	if root && w.rootDepth > 1 {
		ttMove = w.rootMoves[w.pvIdx].Move
	} else if ttHit {
		ttMove = tte.Move
	}
	ttPV := pvNode || (ttHit && tte.WasPV)

	if !pvNode && ttHit && tte.Depth >= depth && tte.Score != ScoreNone && boundResolves(tte.Bound, tte.Score, alpha, beta) {
		if tte.Score >= beta && ttMove != board.NoMove && !pos.IsNoisy(ttMove) && pos.IsPseudoLegal(ttMove) {
			w.updateQuiet(pos, ply, ttMove, historyBonus(depth))
			// The parent's early quiet move ran straight into a refutation.
			if prev := w.ss(ply - 1); prev.move != board.NoMove && !prev.noisy && prev.moveCount <= 2 {
				w.updateQuiet(&prev.pos, ply-1, prev.move, historyMalus(depth+1))
			}
		}
		if pos.HalfMoveClock < 90 {
			return tte.Score
		}
	}

	// Tablebases
	maxScore := ScoreInf
	if !root && excluded == board.NoMove {
		if score, bound, ok := w.probeTablebase(pos, ply, depth); ok {
			if bound == BoundExact ||
				(bound == BoundLower && score >= beta) ||
				(bound == BoundUpper && score <= alpha) {
				w.tt.Put(pos.Hash, score, ScoreNone, board.NoMove, min(depth+6, MaxDepth), ply, bound, ttPV)
				return score
			}
			if pvNode {
				if bound == BoundLower {
					alpha = max(alpha, score)
				} else {
					maxScore = score
				}
			}
		}
	}

	// Static evaluation
	rawEval, staticEval, eval := ScoreNone, ScoreNone, ScoreNone
	complexity := 0
	switch {
	case inCheck:
		ss.staticEval, ss.rawEval = ScoreNone, ScoreNone
	case excluded != board.NoMove:
		rawEval, staticEval = ss.rawEval, ss.staticEval
		eval = staticEval
		complexity = abs(staticEval - rawEval)
	default:
		if ttHit && tte.StaticEval != ScoreNone {
			rawEval = tte.StaticEval
		} else {
			rawEval = w.eval.Evaluate(pos)
			if !ttHit {
				w.tt.Put(pos.Hash, ScoreNone, rawEval, board.NoMove, 0, ply, BoundNone, ttPV)
			}
		}
		staticEval = w.correct(pos, ply, rawEval)
		ss.rawEval, ss.staticEval = rawEval, staticEval
		complexity = abs(staticEval - rawEval)

		eval = staticEval
		if ttHit && tte.Score != ScoreNone && !IsDecisive(tte.Score) &&
			(tte.Bound == BoundExact ||
				(tte.Bound == BoundLower && tte.Score > eval) ||
				(tte.Bound == BoundUpper && tte.Score < eval)) {
			eval = tte.Score
		}
	}

	improving := false
	if !inCheck {
		switch {
		case ply >= 2 && w.ss(ply-2).staticEval != ScoreNone:
			improving = staticEval > w.ss(ply-2).staticEval
		case ply >= 4 && w.ss(ply-4).staticEval != ScoreNone:
			improving = staticEval > w.ss(ply-4).staticEval
		default:
			improving = true
		}
	}

	// Hindsight: the parent reduced us heavily but the position did not get
	// better for the side that moved, so search a little deeper.
	if !root && !inCheck && excluded == board.NoMove {
		prev := w.ss(ply - 1)
		if prev.reduction >= hindsightReduction && prev.staticEval != ScoreNone && staticEval+prev.staticEval < 0 {
			depth++
		}
	}

	w.ss(ply + 1).killer = board.NoMove

	if !root && !ttPV && !inCheck && excluded == board.NoMove && w.pruning {
		// Reverse futility pruning. A bare king can be walking into a quiet
		// mating net that the static eval knows nothing about.
		if depth <= rfpMaxDepth && !IsDecisive(eval) && !IsDecisive(beta) &&
			pos.HasNonPawnMaterial(pos.SideToMove) &&
			eval-rfpMargin*(depth-b2i(improving))-complexity/rfpComplexityScale >= beta {
			return (eval + beta) / 2
		}

		// Razoring
		if depth <= razorMaxDepth && abs(alpha) < ScoreWin && eval+razorMargin*depth <= alpha {
			score := w.qsearch(ply, 0, alpha, alpha+1, false)
			if score <= alpha {
				return score
			}
		}

		// Null move pruning
		prev := w.ss(ply - 1)
		if depth >= nmpMinDepth && eval >= beta && staticEval >= beta && !IsDecisive(beta) &&
			prev.move != board.NoMove && pos.HasNonPawnMaterial(pos.SideToMove) &&
			(ply >= w.nmpMinPly || pos.SideToMove != w.nmpColor) &&
			!(ttHit && tte.Bound == BoundUpper && tte.Score < beta) {

			r := 3 + depth/3 + min((eval-beta)/nmpEvalDivisor, nmpMaxEvalReduction)
			w.makeNullMove(ply)
			score := -w.search(ply+1, depth-r, -beta, -beta+1, false, !cutNode)
			w.unmakeMove()

			if w.stopped() {
				return 0
			}
			if score >= beta {
				if IsDecisive(score) {
					score = beta
				}
				if depth < nmpVerifyDepth || w.nmpMinPly > 0 {
					return score
				}

				// Verification search with null moves disabled for this side
				// for the next plies.
				w.nmpMinPly = ply + 3*(depth-r)/4
				w.nmpColor = pos.SideToMove
				verified := w.search(ply, depth-r, beta-1, beta, false, false)
				w.nmpMinPly = 0
				if verified >= beta {
					return score
				}
			}
		}

		// Probcut
		pcBeta := beta + probcutMargin
		if depth >= probcutMinDepth && !IsDecisive(beta) &&
			!(ttHit && tte.Depth >= depth-3 && tte.Score != ScoreNone && tte.Score < pcBeta) {
			mp := newProbcutPicker(w, pos, ttMove, pcBeta-staticEval)
			for m := mp.next(); m != board.NoMove; m = mp.next() {
				if !pos.IsLegal(m) {
					continue
				}
				w.makeMove(ply, m, false)
				score := -w.qsearch(ply+1, 0, -pcBeta, -pcBeta+1, false)
				if score >= pcBeta {
					score = -w.search(ply+1, depth-probcutReduction-1, -pcBeta, -pcBeta+1, false, !cutNode)
				}
				w.unmakeMove()

				if w.stopped() {
					return 0
				}
				if score >= pcBeta {
					w.tt.Put(pos.Hash, score, rawEval, m, depth-probcutReduction, ply, BoundLower, ttPV)
					return score
				}
			}
		}
	}

	var quietsTried, noisiesTried [64]board.Move
	nQuiets, nNoisies := 0, 0

	bestMove := board.NoMove
	bestScore := -ScoreInf
	bound := BoundUpper
	moveCount := 0

	mp := newMainPicker(w, pos, ply, ttMove, ss.killer)
	for m := mp.next(); m != board.NoMove; m = mp.next() {
		if m == excluded {
			continue
		}
		if root && !w.isSearchableRootMove(m) {
			continue
		}
		if !pos.IsLegal(m) {
			continue
		}

		noisy := pos.IsNoisy(m)
		var hist int
		if noisy {
			hist = w.noisyScore(pos, m)
		} else {
			hist = w.quietScore(pos, ply, m)
		}
		baseLMR := lmrTable[b2i(!noisy)][min(depth, 63)][min(moveCount+1, 63)]

		if !root && bestScore > -ScoreWin && w.pruning {
			lmrDepth := max(depth-baseLMR, 0)
			if !noisy {
				if depth <= lmpMaxDepth && moveCount >= lmpTable[b2i(improving)][depth] {
					mp.skipQuietMoves()
					continue
				}
				if lmrDepth <= histPruneMaxDepth && hist < histPruneMargin*depth {
					continue
				}
				if !inCheck && lmrDepth <= futilityMaxDepth && abs(alpha) < ScoreWin &&
					staticEval+futilityMargin+futilityScale*lmrDepth <= alpha {
					mp.skipQuietMoves()
					continue
				}
				if !SEE(pos, m, seeQuietScale*lmrDepth*lmrDepth) {
					continue
				}
			} else if depth <= seeMaxDepth && !SEE(pos, m, seeNoisyScale*depth) {
				continue
			}
		}

		if root && w.id == 0 && w.rootDepth > 1 && w.limiter.Elapsed() > currMoveDelay {
			w.pool.rep.CurrMove(CurrMoveInfo{Depth: w.rootDepth, Move: m, Number: moveCount + 1 + w.pvIdx})
		}

		// Singular extension
		extension := 0
		if !root && m == ttMove && excluded == board.NoMove && depth >= seMinDepth && w.pruning &&
			ttHit && tte.Depth >= depth-3 && tte.Bound != BoundUpper && tte.Score != ScoreNone &&
			!IsDecisive(tte.Score) && ply < 2*w.rootDepth {

			sBeta := max(tte.Score-2*depth, -ScoreWin)
			sDepth := (depth - 1) / 2

			ss.excluded = m
			score := w.search(ply, sDepth, sBeta-1, sBeta, false, cutNode)
			ss.excluded = board.NoMove

			if w.stopped() {
				return 0
			}
			switch {
			case score < sBeta:
				extension = 1
				if !pvNode && score < sBeta-seDoubleMargin && ss.doubleExtensions < seMaxDoubleExtension {
					extension = 2
					if !noisy && score < sBeta-seTripleMargin {
						extension = 3
					}
				}
			case sBeta >= beta:
				// Multicut: several moves beat beta even without the TT move.
				return sBeta
			case tte.Score >= beta:
				extension = -2
			case cutNode:
				extension = -1
			}
		}

		nodesBefore := w.nodes.Load()
		w.tt.Prefetch(pos.KeyAfter(m))
		child := w.makeMove(ply, m, false)
		moveCount++
		ss.moveCount = moveCount
		w.ss(ply + 1).doubleExtensions = ss.doubleExtensions + b2i(extension >= 2)

		if noisy {
			if nNoisies < len(noisiesTried) {
				noisiesTried[nNoisies] = m
				nNoisies++
			}
		} else if nQuiets < len(quietsTried) {
			quietsTried[nQuiets] = m
			nQuiets++
		}

		newDepth := depth - 1 + extension
		var score int

		if depth >= lmrMinDepth && moveCount > 1+b2i(root) && (!noisy || !ttPV) && w.pruning {
			r := baseLMR
			r += b2i(!pvNode)
			r -= b2i(ttPV)
			r += 2 * b2i(cutNode)
			r += b2i(!improving)
			r -= b2i(child.InCheck())
			r -= hist / lmrHistDivisor
			r -= b2i(complexity > lmrComplexityLimit)

			reduced := clamp(newDepth-r, 1, max(newDepth, 1))
			ss.reduction = newDepth - reduced
			score = -w.search(ply+1, reduced, -alpha-1, -alpha, false, true)
			ss.reduction = 0

			if score > alpha && reduced < newDepth {
				newDepth += b2i(score > bestScore+lmrDeeperBase+2*newDepth)
				newDepth -= b2i(score < bestScore+lmrShallowerMargin)
				if reduced < newDepth {
					score = -w.search(ply+1, newDepth, -alpha-1, -alpha, false, !cutNode)
				}
			}
		} else if !pvNode || moveCount > 1 {
			score = -w.search(ply+1, newDepth, -alpha-1, -alpha, false, !cutNode)
		}

		if pvNode && (moveCount == 1 || score > alpha) {
			score = -w.search(ply+1, newDepth, -beta, -alpha, true, false)
		}

		w.unmakeMove()

		if w.stopped() {
			return 0
		}

		if root {
			w.updateRootMove(m, moveCount, score, alpha, beta, w.nodes.Load()-nodesBefore)
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
				bound = BoundLower
				break
			}
			bound = BoundExact
		}
	}

	if moveCount == 0 {
		switch {
		case excluded != board.NoMove:
			return alpha
		case inCheck:
			return MatedIn(ply)
		}
		return ScoreDraw
	}

	if bound == BoundLower {
		if !pos.IsNoisy(bestMove) {
			ss.killer = bestMove
		}
		w.updateHistories(pos, ply, depth, bestMove, quietsTried[:nQuiets], noisiesTried[:nNoisies])
	}

	bestScore = min(bestScore, maxScore)

	if excluded == board.NoMove {
		if rawEval != ScoreNone && shouldUpdateCorrection(inCheck, bestMove, pos, bound, bestScore, rawEval) {
			w.updateCorrection(pos, ply, depth, bestScore, rawEval)
		}
		w.tt.Put(pos.Hash, bestScore, rawEval, bestMove, depth, ply, bound, ttPV)
	}

	debug.Assert(abs(bestScore) <= ScoreMate, "score beyond mate bound")
	return bestScore
}

// boundResolves reports whether a stored score with bound settles the
// window without searching.
func boundResolves(bound Bound, score, alpha, beta int) bool {
	switch bound {
	case BoundExact:
		return true
	case BoundLower:
		return score >= beta
	case BoundUpper:
		return score <= alpha
	}
	return false
}

// isDrawn checks the fifty-move rule, insufficient material and repetition.
func (w *worker) isDrawn(pos *board.Position, ply int) bool {
	if pos.HalfMoveClock >= 100 && !(pos.InCheck() && !pos.HasLegalMoves()) {
		return true
	}
	return pos.IsInsufficientMaterial() || pos.IsRepetition(ply, w.keys)
}

// probeTablebase returns a tablebase score and its bound when the position
// is small enough and was just reset by a capture or pawn move.
func (w *worker) probeTablebase(pos *board.Position, ply, depth int) (int, Bound, bool) {
	p := w.pool
	limit := min(p.opts.SyzygyProbeLimit, p.prober.MaxPieces())
	if limit == 0 || pos.PieceCount() > limit || pos.CastlingRights != board.NoCastling || pos.HalfMoveClock != 0 {
		return 0, BoundNone, false
	}
	if pos.PieceCount() == limit && depth < p.opts.SyzygyProbeDepth {
		return 0, BoundNone, false
	}

	res := p.prober.Probe(pos)
	if !res.Found {
		return 0, BoundNone, false
	}
	w.tbHits.Add(1)

	switch res.WDL {
	case tablebase.WDLWin:
		return ScoreTBWin - ply, BoundLower, true
	case tablebase.WDLLoss:
		return -ScoreTBWin + ply, BoundUpper, true
	}
	return ScoreDraw, BoundExact, true
}
