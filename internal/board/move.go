package board

import "fmt"

// Move encodes a move in 16 bits:
// bits 0-5 from, bits 6-11 to, bits 12-13 promotion piece (knight..queen),
// bits 14-15 flag (normal, promotion, en passant, castling).
type Move uint16

const (
	flagNormal    Move = 0 << 14
	flagPromotion Move = 1 << 14
	flagEnPassant Move = 2 << 14
	flagCastling  Move = 3 << 14
	flagMask      Move = 3 << 14
)

// NoMove is the null move; it never encodes a real move because from == to.
const NoMove Move = 0

// NewMove builds a normal move.
func NewMove(from, to Square) Move {
	return Move(from) | Move(to)<<6
}

// NewPromotion builds a promotion to promo (Knight..Queen).
func NewPromotion(from, to Square, promo PieceType) Move {
	return Move(from) | Move(to)<<6 | Move(promo-Knight)<<12 | flagPromotion
}

// NewEnPassant builds an en passant capture.
func NewEnPassant(from, to Square) Move {
	return Move(from) | Move(to)<<6 | flagEnPassant
}

// NewCastling builds a castling move expressed as the king's two-square step.
func NewCastling(from, to Square) Move {
	return Move(from) | Move(to)<<6 | flagCastling
}

func (m Move) From() Square { return Square(m & 0x3F) }
func (m Move) To() Square   { return Square((m >> 6) & 0x3F) }

// Promotion returns the promoted piece type; only meaningful for promotions.
func (m Move) Promotion() PieceType {
	return PieceType((m>>12)&3) + Knight
}

func (m Move) IsPromotion() bool { return m&flagMask == flagPromotion }
func (m Move) IsEnPassant() bool { return m&flagMask == flagEnPassant }
func (m Move) IsCastling() bool  { return m&flagMask == flagCastling }

// String returns the UCI spelling, e.g. "e7e8q".
func (m Move) String() string {
	if m == NoMove {
		return "0000"
	}
	s := m.From().String() + m.To().String()
	if m.IsPromotion() {
		s += string(m.Promotion().Char())
	}
	return s
}

// ParseMove resolves a UCI move string against pos. The result is only
// pseudo-legal when the string came from a trusted source; callers that accept
// user input check it with IsPseudoLegal and IsLegal.
func ParseMove(s string, pos *Position) (Move, error) {
	if len(s) < 4 || len(s) > 5 {
		return NoMove, fmt.Errorf("invalid move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return NoMove, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return NoMove, err
	}

	if len(s) == 5 {
		var promo PieceType
		switch s[4] {
		case 'n':
			promo = Knight
		case 'b':
			promo = Bishop
		case 'r':
			promo = Rook
		case 'q':
			promo = Queen
		default:
			return NoMove, fmt.Errorf("invalid promotion piece in %q", s)
		}
		return NewPromotion(from, to, promo), nil
	}

	pc := pos.PieceAt(from)
	if pc == NoPiece {
		return NoMove, fmt.Errorf("no piece on %s", from)
	}
	switch pc.Type() {
	case King:
		if d := int(to) - int(from); d == 2 || d == -2 {
			return NewCastling(from, to), nil
		}
	case Pawn:
		if to == pos.EnPassant {
			return NewEnPassant(from, to), nil
		}
	}
	return NewMove(from, to), nil
}

// MaxMoves bounds the number of pseudo-legal moves in any position.
const MaxMoves = 256

// MoveList is a fixed-capacity list that never allocates.
type MoveList struct {
	moves [MaxMoves]Move
	count int
}

// Add appends m.
func (ml *MoveList) Add(m Move) {
	ml.moves[ml.count] = m
	ml.count++
}

func (ml *MoveList) Len() int          { return ml.count }
func (ml *MoveList) Get(i int) Move    { return ml.moves[i] }
func (ml *MoveList) Clear()            { ml.count = 0 }
func (ml *MoveList) Slice() []Move     { return ml.moves[:ml.count] }
func (ml *MoveList) Swap(i, j int)     { ml.moves[i], ml.moves[j] = ml.moves[j], ml.moves[i] }
func (ml *MoveList) Set(i int, m Move) { ml.moves[i] = m }

// Contains reports whether m is in the list.
func (ml *MoveList) Contains(m Move) bool {
	for _, x := range ml.moves[:ml.count] {
		if x == m {
			return true
		}
	}
	return false
}
