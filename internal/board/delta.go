package board

// PieceSquare names one piece on one square.
type PieceSquare struct {
	Piece  Piece
	Square Square
}

// Delta lists the pieces a move removes and adds, in board order. Quiet moves
// and non-capturing promotions are 1+1, captures 2+1, castling 2+2.
type Delta struct {
	Sub    [2]PieceSquare
	Add    [2]PieceSquare
	NumSub int
	NumAdd int
}

func (d *Delta) sub(pc Piece, sq Square) {
	d.Sub[d.NumSub] = PieceSquare{pc, sq}
	d.NumSub++
}

func (d *Delta) add(pc Piece, sq Square) {
	d.Add[d.NumAdd] = PieceSquare{pc, sq}
	d.NumAdd++
}

// Moved returns the piece that left its square, which is the mover for every
// move shape.
func (d *Delta) Moved() PieceSquare {
	for i := 0; i < d.NumSub; i++ {
		if d.Sub[i].Piece.Color() == d.Add[0].Piece.Color() {
			return d.Sub[i]
		}
	}
	return d.Sub[0]
}
