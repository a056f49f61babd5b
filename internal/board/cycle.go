package board

// Upcoming-repetition detection with cuckoo tables. Every reversible move of a
// non-pawn piece on an empty board is stored under the key difference it
// causes, so a position whose key differs from an earlier one by exactly one
// such move can be found with two table lookups.

const cuckooSize = 8192

var (
	cuckooKeys  [cuckooSize]uint64
	cuckooMoves [cuckooSize]Move
)

func cuckooH1(key uint64) int { return int(key & 0x1fff) }
func cuckooH2(key uint64) int { return int((key >> 16) & 0x1fff) }

func initCuckoo() {
	count := 0
	for c := White; c <= Black; c++ {
		for pt := Knight; pt <= King; pt++ {
			for s1 := A1; s1 <= H8; s1++ {
				for s2 := s1 + 1; s2 <= H8; s2++ {
					if !Attacks(pt, s1, 0).Has(s2) {
						continue
					}
					m := NewMove(s1, s2)
					key := zobristPiece[c][pt][s1] ^ zobristPiece[c][pt][s2] ^ zobristSideToMove
					i := cuckooH1(key)
					for {
						cuckooKeys[i], key = key, cuckooKeys[i]
						cuckooMoves[i], m = m, cuckooMoves[i]
						if m == NoMove {
							break
						}
						if i == cuckooH1(key) {
							i = cuckooH2(key)
						} else {
							i = cuckooH1(key)
						}
					}
					count++
				}
			}
		}
	}
	if count != 3668 {
		panic("board: cuckoo table has wrong number of entries")
	}
}

// HasCycle reports whether the side to move can reach an earlier position
// with a single reversible move. keys holds the keys of the preceding
// positions, oldest first, ending with the parent. ply is the distance from
// the search root; cycles that close at or before the root only count when
// they are already a repetition there.
func (p *Position) HasCycle(ply int, keys []uint64) bool {
	end := min(p.HalfMoveClock, p.pliesFromNull, len(keys))
	if end < 3 {
		return false
	}
	back := func(n int) uint64 { return keys[len(keys)-n] }

	other := p.Hash ^ back(1) ^ zobristSideToMove
	for i := 3; i <= end; i += 2 {
		other ^= back(i-1) ^ back(i) ^ zobristSideToMove
		if other != 0 {
			continue
		}

		diff := p.Hash ^ back(i)
		j := cuckooH1(diff)
		if cuckooKeys[j] != diff {
			j = cuckooH2(diff)
			if cuckooKeys[j] != diff {
				continue
			}
		}

		m := cuckooMoves[j]
		s1, s2 := m.From(), m.To()
		if Between(s1, s2)&p.AllOccupied != 0 {
			continue
		}
		if ply > i {
			return true
		}

		mover := p.mailbox[s1]
		if mover == NoPiece {
			mover = p.mailbox[s2]
		}
		if mover.Color() != p.SideToMove {
			continue
		}
		if repeatsEarlier(keys, len(keys)-i, len(keys)-end) {
			return true
		}
	}
	return false
}

func repeatsEarlier(keys []uint64, idx, limit int) bool {
	for j := idx - 4; j >= limit && j >= 0; j -= 2 {
		if keys[j] == keys[idx] {
			return true
		}
	}
	return false
}

// IsRepetition reports a draw by repetition: a single repetition inside the
// search tree, or a threefold repetition involving positions before the root.
func (p *Position) IsRepetition(ply int, keys []uint64) bool {
	end := min(p.HalfMoveClock, p.pliesFromNull, len(keys))
	seen := 0
	for i := 4; i <= end; i += 2 {
		if keys[len(keys)-i] != p.Hash {
			continue
		}
		if i < ply {
			return true
		}
		seen++
		if seen == 2 {
			return true
		}
	}
	return false
}
