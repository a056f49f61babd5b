package board

// Move generation is pseudo-legal: moves may leave the own king attacked and
// are filtered with IsLegal. Castling is the exception and is only generated
// when fully legal.

// GenerateNoisy appends captures, en passant, capture promotions of every
// kind and queen push promotions.
func (p *Position) GenerateNoisy(ml *MoveList) {
	us, them := p.SideToMove, p.SideToMove.Other()
	p.generatePawnNoisy(ml, us)
	p.generatePieces(ml, us, p.Occupied[them])
}

// GenerateQuiet appends the moves GenerateNoisy leaves out.
func (p *Position) GenerateQuiet(ml *MoveList) {
	us := p.SideToMove
	p.generatePawnQuiet(ml, us)
	p.generatePieces(ml, us, ^p.AllOccupied)
	p.generateCastling(ml, us)
}

// GenerateAll appends every pseudo-legal move, noisy moves first.
func (p *Position) GenerateAll(ml *MoveList) {
	p.GenerateNoisy(ml)
	p.GenerateQuiet(ml)
}

// GenerateLegal appends the legal moves only.
func (p *Position) GenerateLegal(ml *MoveList) {
	var pseudo MoveList
	p.GenerateAll(&pseudo)
	for _, m := range pseudo.Slice() {
		if p.IsLegal(m) {
			ml.Add(m)
		}
	}
}

// LegalMoves is a convenience wrapper around GenerateLegal.
func (p *Position) LegalMoves() *MoveList {
	ml := &MoveList{}
	p.GenerateLegal(ml)
	return ml
}

func (p *Position) generatePieces(ml *MoveList, us Color, targets Bitboard) {
	for pt := Knight; pt <= King; pt++ {
		pieces := p.Pieces[us][pt]
		for pieces != 0 {
			from := pieces.PopLSB()
			attacks := Attacks(pt, from, p.AllOccupied) & targets
			for attacks != 0 {
				ml.Add(NewMove(from, attacks.PopLSB()))
			}
		}
	}
}

func pawnPushDelta(c Color) int {
	if c == White {
		return 8
	}
	return -8
}

func (p *Position) generatePawnNoisy(ml *MoveList, us Color) {
	them := us.Other()
	pawns := p.Pieces[us][Pawn]
	promoRank := Rank8
	if us == Black {
		promoRank = Rank1
	}

	for bb := pawns; bb != 0; {
		from := bb.PopLSB()
		captures := pawnAttacks[us][from] & p.Occupied[them]
		for captures != 0 {
			to := captures.PopLSB()
			if promoRank.Has(to) {
				for promo := Queen; promo >= Knight; promo-- {
					ml.Add(NewPromotion(from, to, promo))
				}
			} else {
				ml.Add(NewMove(from, to))
			}
		}
		if p.EnPassant != NoSquare && pawnAttacks[us][from].Has(p.EnPassant) {
			ml.Add(NewEnPassant(from, p.EnPassant))
		}
	}

	pushes := (pawns.forward(us) &^ p.AllOccupied) & promoRank
	for pushes != 0 {
		to := pushes.PopLSB()
		from := Square(int(to) - pawnPushDelta(us))
		ml.Add(NewPromotion(from, to, Queen))
	}
}

func (p *Position) generatePawnQuiet(ml *MoveList, us Color) {
	pawns := p.Pieces[us][Pawn]
	promoRank, doubleRank := Rank8, Rank3
	if us == Black {
		promoRank, doubleRank = Rank1, Rank6
	}
	delta := pawnPushDelta(us)

	single := pawns.forward(us) &^ p.AllOccupied
	double := (single & doubleRank).forward(us) &^ p.AllOccupied

	for bb := single &^ promoRank; bb != 0; {
		to := bb.PopLSB()
		ml.Add(NewMove(Square(int(to)-delta), to))
	}
	for bb := single & promoRank; bb != 0; {
		to := bb.PopLSB()
		from := Square(int(to) - delta)
		ml.Add(NewPromotion(from, to, Knight))
		ml.Add(NewPromotion(from, to, Rook))
		ml.Add(NewPromotion(from, to, Bishop))
	}
	for double != 0 {
		to := double.PopLSB()
		ml.Add(NewMove(Square(int(to)-2*delta), to))
	}
}

func (p *Position) generateCastling(ml *MoveList, us Color) {
	if p.Checkers != 0 {
		return
	}
	them := us.Other()
	king := E1.Relative(us)
	if p.KingSquare[us] != king {
		return
	}

	kingSide, queenSide := WhiteKingSideCastle, WhiteQueenSideCastle
	if us == Black {
		kingSide, queenSide = BlackKingSideCastle, BlackQueenSideCastle
	}

	if p.CastlingRights&kingSide != 0 &&
		p.mailbox[H1.Relative(us)] == NewPiece(Rook, us) &&
		Between(king, H1.Relative(us))&p.AllOccupied == 0 &&
		!p.IsSquareAttacked(F1.Relative(us), them) &&
		!p.IsSquareAttacked(G1.Relative(us), them) {
		ml.Add(NewCastling(king, G1.Relative(us)))
	}
	if p.CastlingRights&queenSide != 0 &&
		p.mailbox[A1.Relative(us)] == NewPiece(Rook, us) &&
		Between(king, A1.Relative(us))&p.AllOccupied == 0 &&
		!p.IsSquareAttacked(D1.Relative(us), them) &&
		!p.IsSquareAttacked(C1.Relative(us), them) {
		ml.Add(NewCastling(king, C1.Relative(us)))
	}
}

// IsLegal reports whether the pseudo-legal move m leaves the own king safe.
func (p *Position) IsLegal(m Move) bool {
	us, them := p.SideToMove, p.SideToMove.Other()
	from, to := m.From(), m.To()
	ksq := p.KingSquare[us]

	switch {
	case m.IsCastling():
		return true

	case m.IsEnPassant():
		capSq := to ^ 8
		occ := p.AllOccupied&^SquareBB(from)&^SquareBB(capSq) | SquareBB(to)
		return p.AttackersByColor(ksq, them, occ)&^SquareBB(capSq) == 0

	case from == ksq:
		return p.AttackersByColor(to, them, p.AllOccupied&^SquareBB(from)) == 0
	}

	if p.Checkers != 0 {
		if p.Checkers.Several() {
			return false
		}
		checker := p.Checkers.LSB()
		if !(Between(ksq, checker) | SquareBB(checker)).Has(to) {
			return false
		}
	}

	return !p.Pinned.Has(from) || Aligned(from, to, ksq)
}

// IsPseudoLegal reports whether m could have been generated in this position.
// Moves from the transposition table or killer slots must pass this check
// before they are played.
func (p *Position) IsPseudoLegal(m Move) bool {
	if m == NoMove {
		return false
	}
	us, them := p.SideToMove, p.SideToMove.Other()
	from, to := m.From(), m.To()
	pc := p.mailbox[from]

	if pc == NoPiece || pc.Color() != us || p.Occupied[us].Has(to) {
		return false
	}

	if m.IsCastling() {
		if pc.Type() != King {
			return false
		}
		var castles MoveList
		p.generateCastling(&castles, us)
		return castles.Contains(m)
	}

	if pc.Type() != Pawn {
		if m.IsPromotion() || m.IsEnPassant() {
			return false
		}
		return Attacks(pc.Type(), from, p.AllOccupied).Has(to)
	}

	if m.IsEnPassant() {
		return to == p.EnPassant && pawnAttacks[us][from].Has(to)
	}

	lastRank := to.RelativeRank(us) == 7
	if m.IsPromotion() != lastRank {
		return false
	}

	if pawnAttacks[us][from].Has(to) {
		return p.Occupied[them].Has(to)
	}

	delta := pawnPushDelta(us)
	switch int(to) - int(from) {
	case delta:
		return !p.AllOccupied.Has(to)
	case 2 * delta:
		mid := Square(int(from) + delta)
		return from.RelativeRank(us) == 1 && !p.AllOccupied.Has(mid) && !p.AllOccupied.Has(to)
	}
	return false
}

// HasLegalMoves reports whether the side to move has at least one legal move.
func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.GenerateAll(&ml)
	for _, m := range ml.Slice() {
		if p.IsLegal(m) {
			return true
		}
	}
	return false
}

// IsCheckmate reports whether the side to move is mated.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate reports whether the side to move has no moves but is not in check.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}
