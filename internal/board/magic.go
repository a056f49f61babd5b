package board

import (
	"math"
	"math/bits"

	"lukechampine.com/frand"
)

// Fancy magic bitboards. Each square owns a slice of a shared table indexed
// by ((occupancy & mask) * magic) >> shift.
type magicEntry struct {
	mask  Bitboard
	magic uint64
	shift uint8
	table []Bitboard
}

var (
	bishopMagics [64]magicEntry
	rookMagics   [64]magicEntry

	bishopTable [5248]Bitboard
	rookTable   [102400]Bitboard
)

// Known-good starting candidates; a candidate that collides destructively is
// replaced by a searched one, so the tables are always exact.
var bishopMagicSeeds = [64]uint64{
	0x0002020202020200, 0x0002020202020000, 0x0004010202000000, 0x0004040080000000,
	0x0001104000000000, 0x0000821040000000, 0x0000410410400000, 0x0000104104104000,
	0x0000040404040400, 0x0000020202020200, 0x0000040102020000, 0x0000040400800000,
	0x0000011040000000, 0x0000008210400000, 0x0000004104104000, 0x0000002082082000,
	0x0004000808080800, 0x0002000404040400, 0x0001000202020200, 0x0000800802004000,
	0x0000800400A00000, 0x0000200100884000, 0x0000400082082000, 0x0000200041041000,
	0x0002080010101000, 0x0001040008080800, 0x0000208004010400, 0x0000404004010200,
	0x0000840000802000, 0x0000404002011000, 0x0000808001041000, 0x0000404000820800,
	0x0001041000202000, 0x0000820800101000, 0x0000104400080800, 0x0000020080080080,
	0x0000404040040100, 0x0000808100020100, 0x0001010100020800, 0x0000808080010400,
	0x0000820820004000, 0x0000410410002000, 0x0000082088001000, 0x0000002011000800,
	0x0000080100400400, 0x0001010101000200, 0x0002020202000400, 0x0001010101000200,
	0x0000410410400000, 0x0000208208200000, 0x0000002084100000, 0x0000000020880000,
	0x0000001002020000, 0x0000040408020000, 0x0004040404040000, 0x0002020202020000,
	0x0000104104104000, 0x0000002082082000, 0x0000000020841000, 0x0000000000208800,
	0x0000000010020200, 0x0000000404080200, 0x0000040404040400, 0x0002020202020200,
}

var rookMagicSeeds = [64]uint64{
	0x0080001020400080, 0x0040001000200040, 0x0080081000200080, 0x0080040800100080,
	0x0080020400080080, 0x0080010200040080, 0x0080008001000200, 0x0080002040800100,
	0x0000800020400080, 0x0000400020005000, 0x0000801000200080, 0x0000800800100080,
	0x0000800400080080, 0x0000800200040080, 0x0000800100020080, 0x0000800040800100,
	0x0000208000400080, 0x0000404000201000, 0x0000808010002000, 0x0000808008001000,
	0x0000808004000800, 0x0000808002000400, 0x0000010100020004, 0x0000020000408104,
	0x0000208080004000, 0x0000200040005000, 0x0000100080200080, 0x0000080080100080,
	0x0000040080080080, 0x0000020080040080, 0x0000010080800200, 0x0000800080004100,
	0x0000204000800080, 0x0000200040401000, 0x0000100080802000, 0x0000080080801000,
	0x0000040080800800, 0x0000020080800400, 0x0000020001010004, 0x0000800040800100,
	0x0000204000808000, 0x0000200040008080, 0x0000100020008080, 0x0000080010008080,
	0x0000040008008080, 0x0000020004008080, 0x0000010002008080, 0x0000004081020004,
	0x0000204000800080, 0x0000200040008080, 0x0000100020008080, 0x0000080010008080,
	0x0000040008008080, 0x0000020004008080, 0x0000800100020080, 0x0000800041000080,
	0x00FFFCDDFCED714A, 0x007FFCDDFCED714A, 0x003FFFCDFFD88096, 0x0000040810002101,
	0x0001000204080011, 0x0001000204000801, 0x0001000082000401, 0x0001FFFAABFAD1A2,
}

// magicSeed drives the fallback search for squares whose seed magic fails.
var magicSeed = [32]byte{0x25, 0x45, 0xf4, 0x91, 0x4f, 0x6c, 0xdd, 0x1d}

func initMagics() {
	initSliderMagics(bishopMagics[:], bishopTable[:], bishopMagicSeeds[:], bishopMask, bishopAttacksSlow)
	initSliderMagics(rookMagics[:], rookTable[:], rookMagicSeeds[:], rookMask, rookAttacksSlow)
}

func initSliderMagics(entries []magicEntry, table []Bitboard, seeds []uint64,
	maskFn func(Square) Bitboard, slow func(Square, Bitboard) Bitboard) {

	var occupancies, attacks [4096]Bitboard
	var epoch [4096]int
	rng := frand.NewCustom(magicSeed[:], 1024, 8)
	offset := 0
	attempt := 0

	for sq := A1; sq <= H8; sq++ {
		e := &entries[sq]
		e.mask = maskFn(sq)
		n := e.mask.PopCount()
		e.shift = uint8(64 - n)
		size := 1 << n
		e.table = table[offset : offset+size]
		offset += size

		// Carry-rippler walk over every subset of the mask.
		count := 0
		occ := Empty
		for {
			occupancies[count] = occ
			attacks[count] = slow(sq, occ)
			count++
			occ = (occ - e.mask) & e.mask
			if occ == 0 {
				break
			}
		}

		candidate := seeds[sq]
		for {
			attempt++
			if fillMagic(e, candidate, occupancies[:count], attacks[:count], epoch[:], attempt) {
				break
			}
			for {
				candidate = rng.Uint64n(math.MaxUint64) & rng.Uint64n(math.MaxUint64) & rng.Uint64n(math.MaxUint64)
				if bits.OnesCount64((uint64(e.mask)*candidate)>>56) >= 6 {
					break
				}
			}
		}
	}
}

// fillMagic writes the table for one square and reports whether candidate maps
// every occupancy without a destructive collision.
func fillMagic(e *magicEntry, candidate uint64, occs, atts []Bitboard, epoch []int, attempt int) bool {
	for i, occ := range occs {
		idx := (uint64(occ) * candidate) >> e.shift
		if epoch[idx] != attempt {
			epoch[idx] = attempt
			e.table[idx] = atts[i]
		} else if e.table[idx] != atts[i] {
			return false
		}
	}
	e.magic = candidate
	return true
}

func bishopMask(sq Square) Bitboard {
	return bishopAttacksSlow(sq, 0) &^ (Rank1 | Rank8 | FileA | FileH)
}

func rookMask(sq Square) Bitboard {
	file, rank := sq.File(), sq.Rank()
	var mask Bitboard
	for f := 1; f < 7; f++ {
		if f != file {
			mask |= SquareBB(NewSquare(f, rank))
		}
	}
	for r := 1; r < 7; r++ {
		if r != rank {
			mask |= SquareBB(NewSquare(file, r))
		}
	}
	return mask
}

func slide(sq Square, occupied Bitboard, dirs [4][2]int) Bitboard {
	var attacks Bitboard
	for _, d := range dirs {
		f, r := sq.File()+d[0], sq.Rank()+d[1]
		for f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			s := NewSquare(f, r)
			attacks |= SquareBB(s)
			if occupied.Has(s) {
				break
			}
			f += d[0]
			r += d[1]
		}
	}
	return attacks
}

func bishopAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slide(sq, occupied, [4][2]int{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}})
}

func rookAttacksSlow(sq Square, occupied Bitboard) Bitboard {
	return slide(sq, occupied, [4][2]int{{0, 1}, {0, -1}, {1, 0}, {-1, 0}})
}
