package nnue

import (
	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/debug"
)

// Accumulator holds the feature transformer output for both perspectives,
// indexed by colour.
type Accumulator [2][HiddenSize]int16

// stackSlot is one ply of the accumulator stack. A dirty perspective still
// has to be derived from the slot below by applying delta, or rebuilt from
// the refresh table when its king changed bucket or mirror half.
type stackSlot struct {
	acc     Accumulator
	delta   board.Delta
	kings   [2]board.Square
	pieces  [2][6]board.Bitboard
	dirty   [2]bool
	refresh [2]bool
}

// Evaluator follows one search thread's make/unmake sequence. Updates are
// queued on Push and resolved lazily on the first Evaluate that needs them.
type Evaluator struct {
	net   *Network
	table RefreshTable
	stack [StackSize]stackSlot
	top   int
}

// NewEvaluator returns an evaluator for net. Call Reset before use.
func NewEvaluator(net *Network) *Evaluator {
	return &Evaluator{net: net}
}

// Network returns the network the evaluator was built for.
func (e *Evaluator) Network() *Network {
	return e.net
}

// Reset rebuilds the root accumulator for pos from cleared refresh entries.
func (e *Evaluator) Reset(pos *board.Position) {
	e.table.Reset(e.net)
	e.top = 0
	slot := &e.stack[0]
	slot.kings = pos.KingSquare
	slot.pieces = pos.Pieces
	for c := board.White; c <= board.Black; c++ {
		e.table.refresh(e.net, c, pos.KingSquare[c], &slot.pieces, slot.acc[c][:])
		slot.dirty[c] = false
		slot.refresh[c] = false
	}
}

// Depth returns the number of pushed, unpopped slots.
func (e *Evaluator) Depth() int {
	return e.top
}

func (e *Evaluator) pushSlot(next *board.Position, d board.Delta) *stackSlot {
	parent := &e.stack[e.top]
	e.top++
	slot := &e.stack[e.top]
	slot.delta = d
	slot.kings = next.KingSquare
	slot.pieces = next.Pieces
	for c := board.White; c <= board.Black; c++ {
		slot.dirty[c] = true
		slot.refresh[c] = parent.kings[c] != next.KingSquare[c] &&
			needsRefresh(c, parent.kings[c], next.KingSquare[c])
	}
	return slot
}

// Push records the move leading to next without computing anything.
func (e *Evaluator) Push(next *board.Position, d board.Delta) {
	e.pushSlot(next, d)
}

// PushImmediate records the move and computes the new accumulator at once
// for every perspective whose parent is already up to date.
func (e *Evaluator) PushImmediate(next *board.Position, d board.Delta) {
	slot := e.pushSlot(next, d)
	parent := &e.stack[e.top-1]
	for c := board.White; c <= board.Black; c++ {
		switch {
		case slot.refresh[c]:
			e.table.refresh(e.net, c, slot.kings[c], &slot.pieces, slot.acc[c][:])
		case !parent.dirty[c]:
			e.applyDelta(c, slot.acc[c][:], parent.acc[c][:], slot)
		default:
			continue
		}
		slot.dirty[c] = false
	}
}

// ApplyInPlace updates the top slot for a move without pushing, for replaying
// moves on the root position.
func (e *Evaluator) ApplyInPlace(next *board.Position, d board.Delta) {
	slot := &e.stack[e.top]
	for c := board.White; c <= board.Black; c++ {
		e.ensureUpToDate(c)
	}
	oldKings := slot.kings
	slot.delta = d
	slot.kings = next.KingSquare
	slot.pieces = next.Pieces
	for c := board.White; c <= board.Black; c++ {
		if oldKings[c] != next.KingSquare[c] && needsRefresh(c, oldKings[c], next.KingSquare[c]) {
			e.table.refresh(e.net, c, slot.kings[c], &slot.pieces, slot.acc[c][:])
		} else {
			e.applyDelta(c, slot.acc[c][:], slot.acc[c][:], slot)
		}
	}
}

// Pop discards the top slot.
func (e *Evaluator) Pop() {
	e.top--
}

// Evaluate returns the evaluation of pos, which must be the position of the
// top slot, in centipawns from the side to move's point of view.
func (e *Evaluator) Evaluate(pos *board.Position) int {
	e.ensureUpToDate(board.White)
	e.ensureUpToDate(board.Black)
	acc := &e.stack[e.top].acc
	us, them := pos.SideToMove, pos.SideToMove.Other()
	return e.net.output(acc[us][:], acc[them][:], outputBucket(pos))
}

// ensureUpToDate resolves the top slot for one perspective. It scans down to
// the nearest clean slot and replays the deltas above it; when a king move
// that needs a refresh comes first, the top slot is rebuilt from the refresh
// table instead and the slots in between stay dirty.
func (e *Evaluator) ensureUpToDate(c board.Color) {
	top := &e.stack[e.top]
	if !top.dirty[c] {
		return
	}
	i := e.top
	for i > 0 && e.stack[i].dirty[c] && !e.stack[i].refresh[c] {
		i--
	}
	if e.stack[i].dirty[c] {
		e.table.refresh(e.net, c, top.kings[c], &top.pieces, top.acc[c][:])
		top.dirty[c] = false
		return
	}
	for j := i + 1; j <= e.top; j++ {
		s := &e.stack[j]
		e.applyDelta(c, s.acc[c][:], e.stack[j-1].acc[c][:], s)
		s.dirty[c] = false
	}
}

// applyDelta writes src updated by slot's delta into dst for perspective c.
// dst and src may alias.
func (e *Evaluator) applyDelta(c board.Color, dst, src []int16, slot *stackSlot) {
	d := &slot.delta
	ksq := slot.kings[c]
	w := e.net.FTWeights
	off := func(ps board.PieceSquare) int {
		return weightOffset(c, ksq, ps.Piece, ps.Square)
	}

	switch {
	case d.NumAdd == 1 && d.NumSub == 1:
		vecAddSub(dst, src, w, off(d.Add[0]), off(d.Sub[0]))
	case d.NumAdd == 1 && d.NumSub == 2:
		vecAddSubSub(dst, src, w, off(d.Add[0]), off(d.Sub[0]), off(d.Sub[1]))
	case d.NumAdd == 2 && d.NumSub == 2:
		vecAddAddSubSub(dst, src, w, off(d.Add[0]), off(d.Add[1]), off(d.Sub[0]), off(d.Sub[1]))
	default:
		debug.Assert(false, "unexpected delta shape")
		vecCopy(dst, src)
	}
}

// output runs the layer stack for the chosen bucket and scales to centipawns.
func (n *Network) output(stm, nstm []int16, bucket int) int {
	raw := n.stacks[bucket].forward(stm, nstm)
	return int(raw) * evalScale / (127 * weightScale)
}

// EvaluateScratch evaluates pos without any incremental state.
func (n *Network) EvaluateScratch(pos *board.Position) int {
	var acc Accumulator
	for c := board.White; c <= board.Black; c++ {
		n.accumulate(c, pos, acc[c][:])
	}
	us, them := pos.SideToMove, pos.SideToMove.Other()
	return n.output(acc[us][:], acc[them][:], outputBucket(pos))
}

// accumulate builds one perspective from the biases and every active feature.
func (n *Network) accumulate(perspective board.Color, pos *board.Position, dst []int16) {
	copy(dst, n.FTBiases)
	ksq := pos.KingSquare[perspective]
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt <= board.King; pt++ {
			pc := board.NewPiece(pt, c)
			for bb := pos.Pieces[c][pt]; bb != 0; {
				vecAdd(dst, n.FTWeights, weightOffset(perspective, ksq, pc, bb.PopLSB()))
			}
		}
	}
}
