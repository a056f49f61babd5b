package board

import (
	"math"

	"lukechampine.com/frand"
)

var (
	zobristPiece      [2][6][64]uint64
	zobristEnPassant  [8]uint64
	zobristCastling   [16]uint64
	zobristSideToMove uint64
)

// zobristSeed fixes the keys across runs and builds.
var zobristSeed = [32]byte{0x98, 0xf1, 0x07, 0xa2, 0xbe, 0xef, 0x12, 0x34}

func initZobrist() {
	rng := frand.NewCustom(zobristSeed[:], 1024, 20)

	for c := White; c <= Black; c++ {
		for pt := Pawn; pt <= King; pt++ {
			for sq := A1; sq <= H8; sq++ {
				zobristPiece[c][pt][sq] = rng.Uint64n(math.MaxUint64)
			}
		}
	}
	for file := range zobristEnPassant {
		zobristEnPassant[file] = rng.Uint64n(math.MaxUint64)
	}
	// Each castling key is the xor of one key per individual right.
	var rights [4]uint64
	for i := range rights {
		rights[i] = rng.Uint64n(math.MaxUint64)
	}
	for cr := range zobristCastling {
		for i := range rights {
			if cr&(1<<i) != 0 {
				zobristCastling[cr] ^= rights[i]
			}
		}
	}
	zobristSideToMove = rng.Uint64n(math.MaxUint64)
}

// ZobristSideToMove returns the key toggled on every move.
func ZobristSideToMove() uint64 {
	return zobristSideToMove
}
