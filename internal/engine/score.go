package engine

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Search constants
const (
	MaxDepth = 255

	ScoreInf     = 32767
	ScoreMate    = 32766
	ScoreTBWin   = 30000
	ScoreWin     = 25000
	ScoreDraw    = 0
	ScoreNone    = -ScoreInf
	ScoreMaxMate = ScoreMate - MaxDepth

	ScoreTBWinInMaxPly = ScoreTBWin - MaxDepth
)

// IsMateScore reports whether score encodes a forced mate for either side.
func IsMateScore(score int) bool {
	return abs(score) >= ScoreMaxMate
}

// IsDecisive reports whether score is a mate or a tablebase result.
func IsDecisive(score int) bool {
	return abs(score) >= ScoreTBWinInMaxPly
}

// MatedIn returns the score of being mated ply plies from the root.
func MatedIn(ply int) int {
	return -ScoreMate + ply
}

// MateIn returns the score of mating in ply plies from the root.
func MateIn(ply int) int {
	return ScoreMate - ply
}

// FormatScore renders a score the way the protocol prints it: "cp N" or
// "mate N" with N in full moves.
func FormatScore(score int) string {
	if IsMateScore(score) {
		if score > 0 {
			return fmt.Sprintf("mate %d", (ScoreMate-score+1)/2)
		}
		return fmt.Sprintf("mate %d", -(ScoreMate+score)/2)
	}
	return fmt.Sprintf("cp %d", score)
}

// scoreToTT converts a root-relative mate score to a node-relative one.
func scoreToTT(score, ply int) int {
	switch {
	case score == ScoreNone:
		return score
	case score >= ScoreTBWinInMaxPly:
		return score + ply
	case score <= -ScoreTBWinInMaxPly:
		return score - ply
	}
	return score
}

// scoreFromTT undoes scoreToTT for the probing ply.
func scoreFromTT(score, ply int) int {
	switch {
	case score == ScoreNone:
		return score
	case score >= ScoreTBWinInMaxPly:
		return score - ply
	case score <= -ScoreTBWinInMaxPly:
		return score + ply
	}
	return score
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

func abs[T constraints.Signed](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
