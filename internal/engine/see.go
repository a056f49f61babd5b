package engine

import "github.com/hailam/tempest/internal/board"

var seeValues = [7]int{
	board.Pawn:        100,
	board.Knight:      450,
	board.Bishop:      450,
	board.Rook:        650,
	board.Queen:       1250,
	board.King:        0,
	board.NoPieceType: 0,
}

// seeGain is the material won by m before any recapture.
func seeGain(pos *board.Position, m board.Move) int {
	if m.IsCastling() {
		return 0
	}
	gain := seeValues[capturedType(pos, m)]
	if m.IsPromotion() {
		gain += seeValues[m.Promotion()] - seeValues[board.Pawn]
	}
	return gain
}

// SEE reports whether the exchange sequence started by m on its destination
// square wins at least threshold for the side to move. Both sides always
// recapture with their least valuable attacker and may stop at any point.
func SEE(pos *board.Position, m board.Move, threshold int) bool {
	if m.IsCastling() {
		return threshold <= 0
	}

	from, to := m.From(), m.To()
	us := pos.SideToMove

	nextVictim := pos.PieceAt(from).Type()
	if m.IsPromotion() {
		nextVictim = m.Promotion()
	}

	balance := seeGain(pos, m) - threshold
	if balance < 0 {
		return false
	}
	balance -= seeValues[nextVictim]
	if balance >= 0 {
		return true
	}

	occupied := pos.AllOccupied&^board.SquareBB(from) | board.SquareBB(to)
	if m.IsEnPassant() {
		occupied &^= board.SquareBB(to ^ 8)
	}

	bishops := pos.TypeBB(board.Bishop) | pos.TypeBB(board.Queen)
	rooks := pos.TypeBB(board.Rook) | pos.TypeBB(board.Queen)
	attackers := pos.AttackersTo(to, occupied) & occupied

	side := us.Other()
	for {
		ours := attackers & pos.Occupied[side]
		if ours == 0 {
			break
		}
		// Pinned pieces may not join while the pinner is still on the board.
		if ours &^= pinnedBlockers(pos, side, occupied); ours == 0 {
			break
		}

		pt := leastValuable(pos, side, ours)
		occupied &^= board.SquareBB((pos.Pieces[side][pt] & ours).LSB())

		if pt == board.Pawn || pt == board.Bishop || pt == board.Queen {
			attackers |= board.BishopAttacks(to, occupied) & bishops
		}
		if pt == board.Rook || pt == board.Queen {
			attackers |= board.RookAttacks(to, occupied) & rooks
		}
		attackers &= occupied

		side = side.Other()
		balance = -balance - 1 - seeValues[pt]
		if balance >= 0 {
			if pt == board.King && attackers&pos.Occupied[side] != 0 {
				side = side.Other()
			}
			break
		}
	}
	return side != us
}

// pinnedBlockers returns c's pieces pinned to c's king by sliders that are
// still present in occupied.
func pinnedBlockers(pos *board.Position, c board.Color, occupied board.Bitboard) board.Bitboard {
	ksq := pos.KingSquare[c]
	them := pos.Occupied[c.Other()] & occupied
	diagonal := pos.TypeBB(board.Bishop) | pos.TypeBB(board.Queen)
	straight := pos.TypeBB(board.Rook) | pos.TypeBB(board.Queen)
	snipers := (board.BishopAttacks(ksq, 0)&diagonal | board.RookAttacks(ksq, 0)&straight) & them

	var pinned board.Bitboard
	for snipers != 0 {
		sq := snipers.PopLSB()
		between := board.Between(ksq, sq) & occupied
		if between != 0 && !between.Several() {
			pinned |= between & pos.Occupied[c]
		}
	}
	return pinned
}

func leastValuable(pos *board.Position, c board.Color, attackers board.Bitboard) board.PieceType {
	for pt := board.Pawn; pt <= board.King; pt++ {
		if pos.Pieces[c][pt]&attackers != 0 {
			return pt
		}
	}
	return board.NoPieceType
}
