package engine

import (
	"testing"

	"github.com/hailam/tempest/internal/board"
	"github.com/matryer/is"
)

func TestPerft(t *testing.T) {
	tests := []struct {
		fen   string
		depth int
		nodes uint64
	}{
		{board.StartFEN, 1, 20},
		{board.StartFEN, 2, 400},
		{board.StartFEN, 3, 8902},
		{"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R w KQkq - 0 1", 2, 2039},
		{"8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1", 3, 2812},
	}
	for _, tt := range tests {
		pos := mustParseFEN(t, tt.fen)
		var total uint64
		for _, e := range Perft(pos, tt.depth) {
			total += e.Nodes
		}
		if total != tt.nodes {
			t.Errorf("perft(%q, %d) = %d, want %d", tt.fen, tt.depth, total, tt.nodes)
		}
	}
}

func TestPerftDivide(t *testing.T) {
	is := is.New(t)
	pos := board.NewPosition()
	entries := Perft(pos, 2)
	is.Equal(len(entries), 20)
	for _, e := range entries {
		is.Equal(e.Nodes, uint64(20)) // every first move leaves black 20 replies
	}
	is.Equal(len(Perft(pos, 0)), 0)
}
