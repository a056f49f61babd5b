package board

import (
	"sort"
	"testing"

	"github.com/dylhunn/dragontoothmg"
)

// Perft counts the number of leaf nodes at the given depth.
func perft(p *Position, depth int) int64 {
	var moves MoveList
	p.GenerateLegal(&moves)
	if depth == 1 {
		return int64(moves.Len())
	}

	var nodes int64
	for _, m := range moves.Slice() {
		next, _ := p.Apply(m)
		nodes += perft(&next, depth-1)
	}
	return nodes
}

func TestPerft(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		nodes []int64
	}{
		{"startpos", StartFEN, []int64{20, 400, 8902, 197281}},
		{"kiwipete", "r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", []int64{48, 2039, 97862}},
		{"position3", "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", []int64{14, 191, 2812, 43238}},
		{"position4", "r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1", []int64{6, 264, 9467}},
		{"position5", "rnbq1k1r/pp1Pbppp/2p5/8/2B5/8/PPP1NnPP/RNBQK2R w KQ - 1 8", []int64{44, 1486, 62379}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos, err := ParseFEN(tc.fen)
			if err != nil {
				t.Fatalf("Failed to parse FEN: %v", err)
			}
			for i, want := range tc.nodes {
				if got := perft(pos, i+1); got != want {
					t.Errorf("perft(%d) = %d, want %d", i+1, got, want)
				}
			}
		})
	}
}

// The black pawn on e4 cannot take en passant: it would expose its king on a4
// to the rook on h4.
func TestEnPassantHorizontalPin(t *testing.T) {
	pos, err := ParseFEN("8/8/8/8/k2Pp2R/8/8/4K3 b - d3 0 1")
	if err != nil {
		t.Fatalf("Failed to parse FEN: %v", err)
	}
	if pos.EnPassant != D3 {
		t.Fatalf("en passant square = %v, want d3", pos.EnPassant)
	}

	moves := pos.LegalMoves()
	for _, m := range moves.Slice() {
		if m.IsEnPassant() {
			t.Errorf("en passant move %v should be illegal", m)
		}
	}
	if moves.Len() != 6 {
		t.Errorf("got %d legal moves, want 6", moves.Len())
	}
}

func TestNoisyQuietPartition(t *testing.T) {
	fens := []string{
		StartFEN,
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1",
		"r3k2r/Pppp1ppp/1b3nbN/nP6/BBP1P3/q4N2/Pp1P2PP/R2Q1RK1 w kq - 0 1",
		"rnbqkbnr/ppp1p1pp/8/3pPp2/8/8/PPPP1PPP/RNBQKBNR w KQkq f6 0 3",
	}
	for _, fen := range fens {
		pos, err := ParseFEN(fen)
		if err != nil {
			t.Fatalf("Failed to parse FEN %q: %v", fen, err)
		}

		var noisy, quiet, all MoveList
		pos.GenerateNoisy(&noisy)
		pos.GenerateQuiet(&quiet)
		pos.GenerateAll(&all)

		if noisy.Len()+quiet.Len() != all.Len() {
			t.Errorf("%s: noisy %d + quiet %d != all %d", fen, noisy.Len(), quiet.Len(), all.Len())
		}
		for _, m := range noisy.Slice() {
			if !pos.IsNoisy(m) {
				t.Errorf("%s: %v generated as noisy but IsNoisy is false", fen, m)
			}
			if quiet.Contains(m) {
				t.Errorf("%s: %v generated twice", fen, m)
			}
		}
		for _, m := range quiet.Slice() {
			if pos.IsNoisy(m) {
				t.Errorf("%s: %v generated as quiet but IsNoisy is true", fen, m)
			}
		}
		for _, m := range all.Slice() {
			if !pos.IsPseudoLegal(m) {
				t.Errorf("%s: generated move %v fails IsPseudoLegal", fen, m)
			}
		}
	}
}

func TestIsPseudoLegalRejectsForeignMoves(t *testing.T) {
	pos := NewPosition()
	reject := []Move{
		NoMove,
		NewMove(E2, E5),             // pawn jumping three squares
		NewMove(E7, E5),             // opponent's piece
		NewMove(G1, G3),             // knight moving like a rook
		NewMove(F1, C4),             // blocked bishop
		NewCastling(E1, G1),         // pieces in between
		NewEnPassant(E2, D3),        // no en passant square
		NewPromotion(A2, A3, Queen), // promotion off the last rank
		NewMove(D1, D2),             // own piece on target
	}
	for _, m := range reject {
		if pos.IsPseudoLegal(m) {
			t.Errorf("IsPseudoLegal(%v) = true, want false", m)
		}
	}
}

// Legal move generation agrees with an independent generator along random
// games.
func TestLegalMovesMatchReference(t *testing.T) {
	rng := newTestRand()
	for game := 0; game < 40; game++ {
		pos := NewPosition()
		for ply := 0; ply < 120; ply++ {
			ours := moveStrings(pos.LegalMoves().Slice())

			ref := dragontoothmg.ParseFen(pos.FEN())
			var theirs []string
			for _, m := range ref.GenerateLegalMoves() {
				theirs = append(theirs, m.String())
			}
			sort.Strings(theirs)

			if !equalStrings(ours, theirs) {
				t.Fatalf("move mismatch in %s\n ours:   %v\n theirs: %v", pos.FEN(), ours, theirs)
			}
			if len(ours) == 0 {
				break
			}

			moves := pos.LegalMoves()
			next, _ := pos.Apply(moves.Get(rng.Intn(moves.Len())))
			pos = &next
		}
	}
}

func moveStrings(moves []Move) []string {
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = m.String()
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
