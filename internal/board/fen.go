package board

import (
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the FEN string for the starting position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ParseFEN parses a FEN string. The move counters are optional.
func ParseFEN(fen string) (*Position, error) {
	parts := strings.Fields(fen)
	if len(parts) < 4 {
		return nil, fmt.Errorf("invalid fen: need at least 4 fields, got %d", len(parts))
	}

	pos := &Position{
		EnPassant:      NoSquare,
		FullMoveNumber: 1,
	}
	for sq := range pos.mailbox {
		pos.mailbox[sq] = NoPiece
	}

	if err := parsePlacement(pos, parts[0]); err != nil {
		return nil, err
	}

	switch parts[1] {
	case "w":
		pos.SideToMove = White
	case "b":
		pos.SideToMove = Black
		pos.Hash ^= zobristSideToMove
	default:
		return nil, fmt.Errorf("invalid side to move %q", parts[1])
	}

	if err := parseCastling(pos, parts[2]); err != nil {
		return nil, err
	}
	pos.Hash ^= zobristCastling[pos.CastlingRights]

	if parts[3] != "-" {
		sq, err := ParseSquare(parts[3])
		if err != nil {
			return nil, fmt.Errorf("invalid en passant square: %w", err)
		}
		// The square is only kept when a pawn can capture there.
		us := pos.SideToMove
		if pawnAttacks[us.Other()][sq]&pos.Pieces[us][Pawn] != 0 {
			pos.EnPassant = sq
			pos.Hash ^= zobristEnPassant[sq.File()]
		}
	}

	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid halfmove clock %q", parts[4])
		}
		pos.HalfMoveClock = n
	}
	if len(parts) > 5 {
		n, err := strconv.Atoi(parts[5])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid fullmove number %q", parts[5])
		}
		pos.FullMoveNumber = n
	}

	if err := pos.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fen: %w", err)
	}
	pos.updateCheckInfo()
	return pos, nil
}

func parsePlacement(pos *Position, placement string) error {
	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("invalid piece placement: need 8 ranks, got %d", len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			ch := row[j]
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			pc := PieceFromChar(ch)
			if pc == NoPiece {
				return fmt.Errorf("invalid piece %q", ch)
			}
			if file > 7 {
				return fmt.Errorf("rank %d overflows", rank+1)
			}
			sq := NewSquare(file, rank)
			pos.put(pc, sq)
			if pc.Type() == King {
				pos.KingSquare[pc.Color()] = sq
			}
			file++
		}
		if file != 8 {
			return fmt.Errorf("rank %d has %d files", rank+1, file)
		}
	}
	return nil
}

func parseCastling(pos *Position, castling string) error {
	if castling == "-" {
		return nil
	}
	for _, ch := range castling {
		switch ch {
		case 'K':
			pos.CastlingRights |= WhiteKingSideCastle
		case 'Q':
			pos.CastlingRights |= WhiteQueenSideCastle
		case 'k':
			pos.CastlingRights |= BlackKingSideCastle
		case 'q':
			pos.CastlingRights |= BlackQueenSideCastle
		default:
			return fmt.Errorf("invalid castling rights %q", castling)
		}
	}
	// Drop rights whose king or rook is not on its home square.
	for _, c := range [2]Color{White, Black} {
		k, q := WhiteKingSideCastle, WhiteQueenSideCastle
		if c == Black {
			k, q = BlackKingSideCastle, BlackQueenSideCastle
		}
		rook := NewPiece(Rook, c)
		if pos.mailbox[E1.Relative(c)] != NewPiece(King, c) {
			pos.CastlingRights &^= k | q
		}
		if pos.mailbox[H1.Relative(c)] != rook {
			pos.CastlingRights &^= k
		}
		if pos.mailbox[A1.Relative(c)] != rook {
			pos.CastlingRights &^= q
		}
	}
	return nil
}

// FEN returns the position in Forsyth-Edwards notation.
func (p *Position) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := p.mailbox[NewSquare(file, rank)]
			if pc == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	if p.SideToMove == White {
		sb.WriteString(" w ")
	} else {
		sb.WriteString(" b ")
	}
	sb.WriteString(p.CastlingRights.String())
	sb.WriteByte(' ')
	sb.WriteString(p.EnPassant.String())
	fmt.Fprintf(&sb, " %d %d", p.HalfMoveClock, p.FullMoveNumber)
	return sb.String()
}

// ComputeKeys recomputes every key from scratch. Incrementally maintained
// keys must always equal these.
func (p *Position) ComputeKeys() (hash, pawn, major uint64, nonPawn [2]uint64) {
	for sq := A1; sq <= H8; sq++ {
		pc := p.mailbox[sq]
		if pc == NoPiece {
			continue
		}
		k := zobristPiece[pc.Color()][pc.Type()][sq]
		hash ^= k
		switch pc.Type() {
		case Pawn:
			pawn ^= k
		case Rook, Queen, King:
			major ^= k
			nonPawn[pc.Color()] ^= k
		default:
			nonPawn[pc.Color()] ^= k
		}
	}
	if p.SideToMove == Black {
		hash ^= zobristSideToMove
	}
	hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		hash ^= zobristEnPassant[p.EnPassant.File()]
	}
	return hash, pawn, major, nonPawn
}
