package board

import (
	"fmt"
	"strings"
)

// CastlingRights is a bit set of the four castling options.
type CastlingRights uint8

const (
	WhiteKingSideCastle CastlingRights = 1 << iota
	WhiteQueenSideCastle
	BlackKingSideCastle
	BlackQueenSideCastle
	NoCastling CastlingRights = 0
)

func (cr CastlingRights) String() string {
	if cr == NoCastling {
		return "-"
	}
	var sb strings.Builder
	for i, ch := range "KQkq" {
		if cr&(1<<i) != 0 {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// castlingMask[sq] lists the rights lost when a move touches sq.
var castlingMask = func() (m [64]CastlingRights) {
	m[E1] = WhiteKingSideCastle | WhiteQueenSideCastle
	m[H1] = WhiteKingSideCastle
	m[A1] = WhiteQueenSideCastle
	m[E8] = BlackKingSideCastle | BlackQueenSideCastle
	m[H8] = BlackKingSideCastle
	m[A8] = BlackQueenSideCastle
	return m
}()

// Position is an immutable-by-convention chess position. Apply and ApplyNull
// return new values and never modify the receiver, so a parent position stays
// valid for the whole time its children are searched.
type Position struct {
	Pieces      [2][6]Bitboard
	Occupied    [2]Bitboard
	AllOccupied Bitboard
	mailbox     [64]Piece

	SideToMove     Color
	CastlingRights CastlingRights
	EnPassant      Square // only set when an en passant capture is possible
	HalfMoveClock  int
	FullMoveNumber int
	pliesFromNull  int

	Hash        uint64
	PawnKey     uint64
	MajorKey    uint64    // rooks, queens and kings
	NonPawnKeys [2]uint64 // every non-pawn piece of one colour

	KingSquare [2]Square
	Checkers   Bitboard // enemy pieces giving check to the side to move
	Pinned     Bitboard // side-to-move pieces pinned to their own king
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	pos, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// PieceAt returns the piece on sq, or NoPiece.
func (p *Position) PieceAt(sq Square) Piece {
	return p.mailbox[sq]
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// PliesFromNull is the number of plies since the last null move (or since the
// position was set up).
func (p *Position) PliesFromNull() int {
	return p.pliesFromNull
}

// HasNonPawnMaterial reports whether colour c owns a knight, bishop, rook or queen.
func (p *Position) HasNonPawnMaterial(c Color) bool {
	return p.Pieces[c][Knight]|p.Pieces[c][Bishop]|p.Pieces[c][Rook]|p.Pieces[c][Queen] != 0
}

// PieceCount returns the number of pieces on the board, kings included.
func (p *Position) PieceCount() int {
	return p.AllOccupied.PopCount()
}

// TypeBB returns both colours' pieces of type pt.
func (p *Position) TypeBB(pt PieceType) Bitboard {
	return p.Pieces[White][pt] | p.Pieces[Black][pt]
}

// IsCapture reports whether m removes an enemy piece.
func (p *Position) IsCapture(m Move) bool {
	return m.IsEnPassant() || (!m.IsCastling() && p.mailbox[m.To()] != NoPiece)
}

// IsNoisy reports whether m is a capture or a queen promotion. Everything else,
// including under-promotions without capture, is quiet.
func (p *Position) IsNoisy(m Move) bool {
	return p.IsCapture(m) || (m.IsPromotion() && m.Promotion() == Queen)
}

// CapturedPiece returns the piece m captures, or NoPiece.
func (p *Position) CapturedPiece(m Move) Piece {
	switch {
	case m.IsEnPassant():
		return NewPiece(Pawn, p.SideToMove.Other())
	case m.IsCastling():
		return NoPiece
	}
	return p.mailbox[m.To()]
}

// IsInsufficientMaterial reports whether neither side can possibly mate.
func (p *Position) IsInsufficientMaterial() bool {
	if p.TypeBB(Pawn)|p.TypeBB(Rook)|p.TypeBB(Queen) != 0 {
		return false
	}
	white := p.Pieces[White][Knight].PopCount() + p.Pieces[White][Bishop].PopCount()
	black := p.Pieces[Black][Knight].PopCount() + p.Pieces[Black][Bishop].PopCount()
	return white+black <= 1
}

func (p *Position) put(pc Piece, sq Square) {
	c := pc.Color()
	bb := SquareBB(sq)
	p.Pieces[c][pc.Type()] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb
	p.mailbox[sq] = pc
	p.toggleKeys(pc, sq)
}

func (p *Position) remove(pc Piece, sq Square) {
	c := pc.Color()
	bb := SquareBB(sq)
	p.Pieces[c][pc.Type()] &^= bb
	p.Occupied[c] &^= bb
	p.AllOccupied &^= bb
	p.mailbox[sq] = NoPiece
	p.toggleKeys(pc, sq)
}

func (p *Position) move(pc Piece, from, to Square) {
	p.remove(pc, from)
	p.put(pc, to)
}

func (p *Position) toggleKeys(pc Piece, sq Square) {
	c := pc.Color()
	k := zobristPiece[c][pc.Type()][sq]
	p.Hash ^= k
	switch pc.Type() {
	case Pawn:
		p.PawnKey ^= k
	case Rook, Queen, King:
		p.MajorKey ^= k
		p.NonPawnKeys[c] ^= k
	default:
		p.NonPawnKeys[c] ^= k
	}
}

func castlingRookSquares(kingFrom, kingTo Square) (Square, Square) {
	rank := kingFrom.Rank()
	if kingTo > kingFrom {
		return NewSquare(7, rank), NewSquare(5, rank)
	}
	return NewSquare(0, rank), NewSquare(3, rank)
}

// Apply plays the pseudo-legal move m and returns the resulting position
// together with the piece-square changes an incremental evaluator needs.
func (p *Position) Apply(m Move) (Position, Delta) {
	next := *p
	var d Delta

	us, them := p.SideToMove, p.SideToMove.Other()
	from, to := m.From(), m.To()
	pc := p.mailbox[from]

	next.Hash ^= zobristCastling[p.CastlingRights]
	if p.EnPassant != NoSquare {
		next.Hash ^= zobristEnPassant[p.EnPassant.File()]
		next.EnPassant = NoSquare
	}
	next.HalfMoveClock++
	next.pliesFromNull++

	switch {
	case m.IsCastling():
		rook := NewPiece(Rook, us)
		rookFrom, rookTo := castlingRookSquares(from, to)
		next.move(pc, from, to)
		next.move(rook, rookFrom, rookTo)
		d.sub(pc, from)
		d.sub(rook, rookFrom)
		d.add(pc, to)
		d.add(rook, rookTo)

	case m.IsEnPassant():
		captured := NewPiece(Pawn, them)
		capSq := to ^ 8
		next.remove(captured, capSq)
		next.move(pc, from, to)
		next.HalfMoveClock = 0
		d.sub(pc, from)
		d.sub(captured, capSq)
		d.add(pc, to)

	default:
		if captured := p.mailbox[to]; captured != NoPiece {
			next.remove(captured, to)
			next.HalfMoveClock = 0
			d.sub(captured, to)
		}
		d.sub(pc, from)
		if m.IsPromotion() {
			promo := NewPiece(m.Promotion(), us)
			next.remove(pc, from)
			next.put(promo, to)
			d.add(promo, to)
		} else {
			next.move(pc, from, to)
			d.add(pc, to)
		}

		if pc.Type() == Pawn {
			next.HalfMoveClock = 0
			if from^to == 16 {
				ep := (from + to) / 2
				if pawnAttacks[us][ep]&p.Pieces[them][Pawn] != 0 {
					next.EnPassant = ep
					next.Hash ^= zobristEnPassant[ep.File()]
				}
			}
		}
	}

	if pc.Type() == King {
		next.KingSquare[us] = to
	}

	next.CastlingRights &^= castlingMask[from] | castlingMask[to]
	next.Hash ^= zobristCastling[next.CastlingRights]

	if us == Black {
		next.FullMoveNumber++
	}
	next.SideToMove = them
	next.Hash ^= zobristSideToMove

	next.updateCheckInfo()
	return next, d
}

// ApplyNull passes the move. The side to move must not be in check.
func (p *Position) ApplyNull() Position {
	next := *p
	if p.EnPassant != NoSquare {
		next.Hash ^= zobristEnPassant[p.EnPassant.File()]
		next.EnPassant = NoSquare
	}
	next.SideToMove = p.SideToMove.Other()
	next.Hash ^= zobristSideToMove
	next.HalfMoveClock++
	next.pliesFromNull = 0
	next.updateCheckInfo()
	return next
}

// KeyAfter returns the full key of the position after m without building it.
// Used to prefetch transposition table clusters; castling and en passant
// details are ignored so the result is only a hint for those moves.
func (p *Position) KeyAfter(m Move) uint64 {
	from, to := m.From(), m.To()
	pc := p.mailbox[from]
	if pc == NoPiece {
		return p.Hash ^ zobristSideToMove
	}
	key := p.Hash ^ zobristSideToMove
	key ^= zobristPiece[pc.Color()][pc.Type()][from] ^ zobristPiece[pc.Color()][pc.Type()][to]
	if captured := p.mailbox[to]; captured != NoPiece && !m.IsCastling() {
		key ^= zobristPiece[captured.Color()][captured.Type()][to]
	}
	return key
}

func (p *Position) updateCheckInfo() {
	us := p.SideToMove
	them := us.Other()
	ksq := p.KingSquare[us]

	p.Checkers = p.AttackersByColor(ksq, them, p.AllOccupied)

	p.Pinned = Empty
	snipers := (RookAttacks(ksq, 0) & (p.Pieces[them][Rook] | p.Pieces[them][Queen])) |
		(BishopAttacks(ksq, 0) & (p.Pieces[them][Bishop] | p.Pieces[them][Queen]))
	for snipers != 0 {
		sq := snipers.PopLSB()
		blockers := Between(sq, ksq) & p.AllOccupied
		if blockers != 0 && !blockers.Several() && blockers&p.Occupied[us] != 0 {
			p.Pinned |= blockers
		}
	}
}

// Validate checks the structural sanity of a position built from outside input.
func (p *Position) Validate() error {
	if p.Pieces[White][King].PopCount() != 1 || p.Pieces[Black][King].PopCount() != 1 {
		return fmt.Errorf("each side needs exactly one king")
	}
	if p.TypeBB(Pawn)&(Rank1|Rank8) != 0 {
		return fmt.Errorf("pawns on the first or last rank")
	}
	them := p.SideToMove.Other()
	if p.IsSquareAttacked(p.KingSquare[them], p.SideToMove) {
		return fmt.Errorf("side not to move is in check")
	}
	return nil
}

func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteByte('\n')
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			sb.WriteString(p.mailbox[NewSquare(file, rank)].String())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Fen: %s\n", p.FEN())
	fmt.Fprintf(&sb, "Key: %016x\n", p.Hash)
	return sb.String()
}
