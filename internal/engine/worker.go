package engine

import (
	"slices"
	"sync/atomic"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/nnue"
)

const (
	currMoveDelay    = 3 * time.Second
	stallReportDelay = time.Second
)

// stackEntry is the per-ply search state. The position stored at ply is the
// one being searched there; move and the fields after it describe the move
// currently being tried from that position.
type stackEntry struct {
	pos board.Position

	pv    [MaxDepth + 1]board.Move
	pvLen int

	move     board.Move
	piece    board.Piece
	noisy    bool
	contHist *pieceToHistory

	staticEval int
	rawEval    int
	killer     board.Move
	excluded   board.Move

	reduction        int
	moveCount        int
	doubleExtensions int

	// evalPushed is set when reaching this entry pushed an accumulator slot.
	evalPushed bool
}

func (ss *stackEntry) updatePV(m board.Move, child *stackEntry) {
	ss.pv[0] = m
	ss.pvLen = copy(ss.pv[1:], child.pv[:child.pvLen]) + 1
}

// worker is one search thread. Everything in it is private to its goroutine
// except the counters, which the main worker sums while the search runs.
type worker struct {
	id   int
	pool *Pool

	stack  [MaxDepth + 8]stackEntry
	height int
	keys   []uint64

	eval    *nnue.Evaluator
	tt      *TT
	limiter *Limiter
	polling bool // the limiter must be checked inside the tree
	hist    histories
	corr    CorrectionHistory

	rootMoves      []RootMove
	rootDepth      int
	completedDepth int
	pvIdx          int
	selDepth       int

	nmpMinPly int
	nmpColor  board.Color

	// pruning enables the selective parts of the search: node pruning,
	// move-loop pruning and late move reductions.
	pruning bool

	nodes  atomic.Uint64
	tbHits atomic.Uint64
}

func (w *worker) ss(ply int) *stackEntry {
	return &w.stack[ply]
}

// makeMove plays m from the position at ply into the entry for ply+1 and
// returns the new position. immediate selects the accumulator push mode.
func (w *worker) makeMove(ply int, m board.Move, immediate bool) *board.Position {
	ss, child := w.ss(ply), w.ss(ply+1)
	pos := &ss.pos

	pc := pos.PieceAt(m.From())
	ss.move, ss.piece, ss.noisy = m, pc, pos.IsNoisy(m)
	ss.contHist = &w.hist.continuation[pc][m.To()]

	next, d := pos.Apply(m)
	child.pos = next
	if immediate {
		w.eval.PushImmediate(&child.pos, d)
	} else {
		w.eval.Push(&child.pos, d)
	}
	child.evalPushed = true

	w.keys = append(w.keys, pos.Hash)
	w.height = ply + 1
	// Only this goroutine writes the counter.
	w.nodes.Store(w.nodes.Load() + 1)
	return &child.pos
}

func (w *worker) makeNullMove(ply int) {
	ss, child := w.ss(ply), w.ss(ply+1)

	ss.move, ss.piece, ss.noisy, ss.contHist = board.NoMove, board.NoPiece, false, nil
	child.pos = ss.pos.ApplyNull()
	child.evalPushed = false

	w.keys = append(w.keys, ss.pos.Hash)
	w.height = ply + 1
	w.nodes.Store(w.nodes.Load() + 1)
}

func (w *worker) unmakeMove() {
	if w.ss(w.height).evalPushed {
		w.eval.Pop()
	}
	w.keys = w.keys[:len(w.keys)-1]
	w.height--
}

func (w *worker) stopped() bool {
	return w.pool.stop.Load()
}

// checkStop reports whether the search must unwind. The main worker also
// polls a node or time limit every checkInterval nodes once depth 1 is done.
func (w *worker) checkStop() bool {
	p := w.pool
	if p.stop.Load() {
		return true
	}
	if w.id == 0 && w.polling && w.rootDepth > 1 && w.nodes.Load()%checkInterval == 0 &&
		w.limiter.Stop(p.totalNodes(), false) {
		p.stop.Store(true)
		return true
	}
	return false
}

func (w *worker) isSearchableRootMove(m board.Move) bool {
	return findRootMove(w.rootMoves[w.pvIdx:], m) != nil
}

// updateRootMove records the result of searching root move m. Moves other
// than the first that fail low lose their score so that sorting keeps the
// line that raised alpha in front.
func (w *worker) updateRootMove(m board.Move, moveCount, score, alpha, beta int, nodes uint64) {
	rm := findRootMove(w.rootMoves[w.pvIdx:], m)
	if rm == nil {
		return
	}
	rm.Nodes += nodes

	if moveCount > 1 && score <= alpha {
		rm.Score = -ScoreInf
		return
	}

	rm.Score, rm.DisplayScore = score, score
	rm.SelDepth = w.selDepth
	rm.UpperBound, rm.LowerBound = false, false
	switch {
	case score >= beta:
		rm.LowerBound = true
		rm.DisplayScore = beta
	case score <= alpha:
		rm.UpperBound = true
		rm.DisplayScore = alpha
	}

	child := w.ss(1)
	rm.PV = append(rm.PV[:0], m)
	rm.PV = append(rm.PV, child.pv[:child.pvLen]...)
}

// setup copies the shared root of the new generation into the worker.
func (w *worker) setup() {
	p := w.pool

	if w.eval == nil || w.eval.Network() != p.net {
		w.eval = nnue.NewEvaluator(p.net)
	}
	w.tt = p.tt
	w.limiter = &p.limiter
	w.polling = w.limiter.HardTimed()

	w.nodes.Store(0)
	w.tbHits.Store(0)
	w.rootDepth, w.completedDepth, w.pvIdx, w.selDepth = 0, 0, 0, 0
	w.nmpMinPly, w.height = 0, 0
	w.pruning = !p.exhaustive

	w.stack = [MaxDepth + 8]stackEntry{}
	for i := range w.stack {
		w.stack[i].staticEval = ScoreNone
		w.stack[i].rawEval = ScoreNone
	}

	pos := p.root.Base
	w.eval.Reset(&pos)
	w.keys = w.keys[:0]
	for _, m := range p.root.Moves {
		w.keys = append(w.keys, pos.Hash)
		next, d := pos.Apply(m)
		w.eval.ApplyInPlace(&next, d)
		pos = next
	}
	w.ss(0).pos = pos
	w.rootMoves = newRootMoves(&pos, p.root.SearchMoves)
}

// iterate runs iterative deepening until the depth limit or a stop.
func (w *worker) iterate() {
	p := w.pool
	if len(w.rootMoves) == 0 {
		return
	}

	maxDepth := MaxDepth - 1
	if p.root.MaxDepth > 0 {
		maxDepth = min(p.root.MaxDepth, maxDepth)
	}
	multiPV := min(p.opts.MultiPV, len(w.rootMoves))

	for depth := 1; depth <= maxDepth && !w.stopped(); depth++ {
		w.rootDepth = depth
		for i := range w.rootMoves {
			w.rootMoves[i].PrevScore = w.rootMoves[i].Score
		}

		for w.pvIdx = 0; w.pvIdx < multiPV; w.pvIdx++ {
			w.selDepth = 0
			w.aspirate(depth)
			sortRootMoves(w.rootMoves[:w.pvIdx+1])
			if w.stopped() {
				break
			}
		}
		if w.stopped() {
			break
		}
		w.completedDepth = depth

		if w.id != 0 {
			continue
		}
		w.report(depth)

		share := 0
		if n := w.nodes.Load(); n > 0 {
			share = int(w.rootMoves[0].Nodes * 1000 / n)
		}
		w.limiter.Update(depth, w.rootMoves[0].Move, share)
		if w.limiter.Stop(p.totalNodes(), true) {
			break
		}
	}
	w.pvIdx = 0
}

// aspirate searches the current line with a window around its previous
// score, widening after each failure.
func (w *worker) aspirate(depth int) {
	alpha, beta := -ScoreInf, ScoreInf
	delta := aspirationDelta

	prev := w.rootMoves[w.pvIdx].PrevScore
	if depth >= aspirationMinDepth && prev != -ScoreInf {
		alpha = max(prev-delta, -ScoreInf)
		beta = min(prev+delta, ScoreInf)
	}

	reduction := 0
	for {
		score := w.search(0, max(depth-reduction, 1), alpha, beta, true, false)
		sortRootMoves(w.rootMoves[w.pvIdx:])
		if w.stopped() {
			return
		}

		failed := score <= alpha || score >= beta
		if failed && w.id == 0 && w.limiter.Elapsed() > stallReportDelay {
			w.report(depth)
		}

		switch {
		case score <= alpha:
			beta = (alpha + beta) / 2
			alpha = max(score-delta, -ScoreInf)
			reduction = 0
		case score >= beta:
			beta = min(score+delta, ScoreInf)
			reduction = min(reduction+1, aspirationMaxReduced)
		default:
			return
		}
		delta += delta / 2
	}
}

func (w *worker) report(depth int) {
	p := w.pool
	elapsed := w.limiter.Elapsed()
	nodes := p.totalNodes()
	nps := nodes * uint64(time.Second) / uint64(max(elapsed, time.Millisecond))
	hashFull := p.tt.Full()
	tbHits := p.totalTBHits()

	for i := range min(p.opts.MultiPV, len(w.rootMoves)) {
		rm := &w.rootMoves[i]
		score, upper, lower := rm.reportedScore()
		if score == -ScoreInf {
			continue
		}
		d := depth
		if rm.Score == -ScoreInf {
			d = max(depth-1, 1)
		}
		p.rep.Info(SearchInfo{
			Depth:      d,
			SelDepth:   rm.SelDepth,
			MultiPV:    i + 1,
			Score:      score,
			UpperBound: upper,
			LowerBound: lower,
			Nodes:      nodes,
			NPS:        nps,
			Time:       elapsed,
			HashFull:   hashFull,
			TBHits:     tbHits,
			PV:         slices.Clone(rm.PV),
		})
	}
}

func (w *worker) result() SearchResult {
	p := w.pool
	res := SearchResult{
		Depth: w.completedDepth,
		Nodes: p.totalNodes(),
		Time:  w.limiter.Elapsed(),
	}
	if len(w.rootMoves) == 0 {
		if w.ss(0).pos.InCheck() {
			res.Score = MatedIn(0)
		}
		return res
	}

	rm := &w.rootMoves[0]
	res.BestMove = rm.Move
	res.Score, _, _ = rm.reportedScore()
	if len(rm.PV) > 1 {
		res.PonderMove = rm.PV[1]
	}
	return res
}

// finish ends the worker's part of a generation. The main worker waits for
// every helper to observe the stop before reporting the best move.
func (w *worker) finish() {
	p := w.pool
	if w.id != 0 {
		p.mu.Lock()
		p.running--
		p.cond.Broadcast()
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	for p.root.Infinite && !p.stop.Load() {
		p.cond.Wait()
	}
	p.stop.Store(true)
	for p.running > 1 {
		p.cond.Wait()
	}
	p.mu.Unlock()

	res := w.result()
	p.rep.BestMove(res)

	p.mu.Lock()
	p.result = res
	p.running--
	p.cond.Broadcast()
	p.mu.Unlock()
}

// run is the worker goroutine: one loop iteration per search generation.
func (w *worker) run() error {
	p := w.pool
	for {
		p.resetBarrier.arriveAndWait()
		p.idleBarrier.arriveAndWait()
		if p.quit.Load() {
			return nil
		}

		w.setup()
		p.setupBarrier.arriveAndWait()

		w.iterate()
		w.finish()
		p.searchEndBarrier.arriveAndWait()
	}
}
