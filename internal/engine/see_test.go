package engine

import (
	"testing"

	"github.com/hailam/tempest/internal/board"
)

func mustParseFEN(t *testing.T, fen string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	if err != nil {
		t.Fatalf("ParseFEN(%q): %v", fen, err)
	}
	return pos
}

func mustParseMove(t *testing.T, pos *board.Position, s string) board.Move {
	t.Helper()
	m, err := board.ParseMove(s, pos)
	if err != nil {
		t.Fatalf("ParseMove(%q): %v", s, err)
	}
	if !pos.LegalMoves().Contains(m) {
		t.Fatalf("%s is not legal in %s", s, pos.FEN())
	}
	return m
}

func TestSEE(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		move  string
		value int // exact exchange result
	}{
		{"free pawn", "4k3/8/8/4p3/8/8/4Q3/4K3 w - - 0 1", "e2e5", 100},
		{"pawn takes defended knight", "4k3/8/3p4/4n3/3P4/8/8/4K3 w - - 0 1", "d4e5", 350},
		{"queen takes defended pawn", "4k3/8/3p4/4p3/8/8/4Q3/4K3 w - - 0 1", "e2e5", -1150},
		{"knight steps into pawn attack", "4k3/8/3p4/8/8/5N2/8/4K3 w - - 0 1", "f3e5", -450},
		{"pinned defender", "4k3/3n4/8/1B2p3/8/8/8/4R1K1 w - - 0 1", "e1e5", 100},
		{"battery", "4k3/4r3/8/4p3/8/8/4R3/4R1K1 w - - 0 1", "e2e5", 100},
		{"quiet safe move", "4k3/8/8/8/8/8/8/4K1N1 w - - 0 1", "g1f3", 0},
		{"en passant", "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 1", "e5d6", 100},
		{"promotion", "4k3/1P6/8/8/8/8/8/4K3 w - - 0 1", "b7b8q", 1150},
		{"promotion into rook", "1r2k3/P7/8/8/8/8/8/4K3 w - - 0 1", "a7a8q", -100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustParseFEN(t, tt.fen)
			m := mustParseMove(t, pos, tt.move)
			if !SEE(pos, m, tt.value) {
				t.Errorf("SEE(%s, %d) = false, want true", tt.move, tt.value)
			}
			if SEE(pos, m, tt.value+1) {
				t.Errorf("SEE(%s, %d) = true, want false", tt.move, tt.value+1)
			}
		})
	}
}

func TestSEECastlingIsNeutral(t *testing.T) {
	pos := mustParseFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	for _, m := range pos.LegalMoves().Slice() {
		if !m.IsCastling() {
			continue
		}
		if !SEE(pos, m, 0) || SEE(pos, m, 1) {
			t.Errorf("castling %s should have SEE exactly 0", m)
		}
	}
}
