package nnue

import "github.com/hailam/tempest/internal/board"

// kingBucketLayout maps the perspective king's square (rank-flipped for
// Black) to an input bucket. Files e-h mirror files a-d.
var kingBucketLayout = [64]int{
	0, 1, 2, 3, 3, 2, 1, 0,
	4, 4, 5, 5, 5, 5, 4, 4,
	6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7,
}

func kingBucket(perspective board.Color, ksq board.Square) int {
	return kingBucketLayout[ksq.Relative(perspective)]
}

func mirrored(ksq board.Square) bool {
	return ksq.File() >= 4
}

// refreshIndex selects the refresh table entry for a king placement.
func refreshIndex(perspective board.Color, ksq board.Square) int {
	idx := kingBucket(perspective, ksq) * 2
	if mirrored(ksq) {
		idx++
	}
	return idx
}

// needsRefresh reports whether moving the perspective king from one square to
// another changes the input bucket or the mirroring.
func needsRefresh(perspective board.Color, from, to board.Square) bool {
	return kingBucket(perspective, from) != kingBucket(perspective, to) ||
		mirrored(from) != mirrored(to)
}

// featureIndex returns the input feature of pc on sq seen from perspective,
// whose king stands on ksq.
func featureIndex(perspective board.Color, ksq board.Square, pc board.Piece, sq board.Square) int {
	rel := sq.Relative(perspective)
	if mirrored(ksq) {
		rel = rel.FlipFile()
	}

	plane := kingPlane
	if pc.Type() != board.King {
		plane = int(pc.Type())
		if pc.Color() != perspective {
			plane += 5
		}
	}
	return kingBucket(perspective, ksq)*featuresPerKB + plane*64 + int(rel)
}

// weightOffset is the start of a feature's row in the transformer weights.
func weightOffset(perspective board.Color, ksq board.Square, pc board.Piece, sq board.Square) int {
	return featureIndex(perspective, ksq, pc, sq) * HiddenSize
}

// outputBucket selects the layer stack by material.
func outputBucket(pos *board.Position) int {
	b := (pos.PieceCount() - 2) * OutputBuckets / 32
	return min(max(b, 0), OutputBuckets-1)
}
