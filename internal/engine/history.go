package engine

import "github.com/hailam/tempest/internal/board"

const (
	historyLimit    = 16384
	pawnHistorySize = 1024
)

// historyEntry is a counter that approaches ±historyLimit exponentially:
// a bonus moves it by less the closer it already is to the bound, so no
// clamp is needed once bonuses themselves stay within the limit.
type historyEntry int16

func (h *historyEntry) update(bonus int) {
	bonus = clamp(bonus, -historyLimit, historyLimit)
	v := int(*h)
	v += bonus - v*abs(bonus)/historyLimit
	*h = historyEntry(v)
}

func (h historyEntry) value() int {
	return int(h)
}

// pieceToHistory is indexed by moved piece and destination square.
type pieceToHistory [12][64]historyEntry

// continuationHistory is indexed by the piece and destination of an earlier
// move, yielding the table for the move being scored.
type continuationHistory [12][64]pieceToHistory

// histories holds one worker's move ordering statistics. Tables survive
// between searches and are only wiped on ucinewgame.
type histories struct {
	butterfly    [2][64][64]historyEntry
	pawn         [pawnHistorySize]pieceToHistory
	continuation continuationHistory
	noisy        [12][64][7]historyEntry // last index: captured type, or none for quiet promotions
}

func (h *histories) clear() {
	*h = histories{}
}

func historyBonus(depth int) int {
	return min(historyBonusScale*depth-historyBonusOffset, historyBonusMax)
}

func historyMalus(depth int) int {
	return -min(historyMalusScale*depth-historyMalusOffset, historyMalusMax)
}

func capturedType(pos *board.Position, m board.Move) board.PieceType {
	if pc := pos.CapturedPiece(m); pc != board.NoPiece {
		return pc.Type()
	}
	return board.NoPieceType
}

// conthist returns the continuation table the move made k plies ago points
// at, or nil when there is no such move.
func (w *worker) conthist(ply, k int) *pieceToHistory {
	if ply < k {
		return nil
	}
	return w.ss(ply - k).contHist
}

func (w *worker) quietScore(pos *board.Position, ply int, m board.Move) int {
	pc := pos.PieceAt(m.From())
	to := m.To()
	h := &w.hist

	score := h.butterfly[pos.SideToMove][m.From()][to].value()
	score += h.pawn[pos.PawnKey%pawnHistorySize][pc][to].value()
	if c := w.conthist(ply, 1); c != nil {
		score += c[pc][to].value()
	}
	if c := w.conthist(ply, 2); c != nil {
		score += c[pc][to].value()
	}
	if c := w.conthist(ply, 4); c != nil {
		score += c[pc][to].value() / 2
	}
	return score
}

func (w *worker) noisyScore(pos *board.Position, m board.Move) int {
	pc := pos.PieceAt(m.From())
	return w.hist.noisy[pc][m.To()][capturedType(pos, m)].value()
}

func (w *worker) updateQuiet(pos *board.Position, ply int, m board.Move, bonus int) {
	pc := pos.PieceAt(m.From())
	to := m.To()
	h := &w.hist

	h.butterfly[pos.SideToMove][m.From()][to].update(bonus)
	h.pawn[pos.PawnKey%pawnHistorySize][pc][to].update(bonus)
	for _, k := range [...]int{1, 2, 4} {
		if c := w.conthist(ply, k); c != nil {
			c[pc][to].update(bonus)
		}
	}
}

func (w *worker) updateNoisy(pos *board.Position, m board.Move, bonus int) {
	pc := pos.PieceAt(m.From())
	w.hist.noisy[pc][m.To()][capturedType(pos, m)].update(bonus)
}

// updateHistories rewards the move that caused a cutoff and penalises the
// moves of the same kind tried before it. Noisy moves tried earlier are
// penalised whatever the kind of the best move.
func (w *worker) updateHistories(pos *board.Position, ply, depth int, best board.Move, quiets, noisies []board.Move) {
	bonus, malus := historyBonus(depth), historyMalus(depth)

	if pos.IsNoisy(best) {
		w.updateNoisy(pos, best, bonus)
	} else {
		w.updateQuiet(pos, ply, best, bonus)
		for _, m := range quiets {
			if m != best {
				w.updateQuiet(pos, ply, m, malus)
			}
		}
	}
	for _, m := range noisies {
		if m != best {
			w.updateNoisy(pos, m, malus)
		}
	}
}
