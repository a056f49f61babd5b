package engine

import (
	"time"
)

// TimeControl contains the clock state for the side to move.
type TimeControl struct {
	Remaining time.Duration // time left on our clock
	Increment time.Duration // increment per move
	MovesToGo int           // moves until next time control (0 = sudden death)
	Overhead  time.Duration // communication lag to subtract
	Ply       int           // game ply of the root position
}

const (
	minOptimumTime = 10 * time.Millisecond
	minMaximumTime = 50 * time.Millisecond
)

// allocateTime splits the remaining clock into an optimum time, after which
// no new iteration should start, and a maximum time after which the search
// aborts.
func allocateTime(tc TimeControl) (optimum, maximum time.Duration) {
	timeLeft := max(tc.Remaining-tc.Overhead, time.Millisecond)

	// Estimate moves to go
	mtg := tc.MovesToGo
	if mtg == 0 {
		// Sudden death: expect fewer moves the further the game is
		mtg = clamp(50-tc.Ply/4, 10, 50)
	}

	baseTime := timeLeft/time.Duration(mtg) + tc.Increment*3/4

	optimum = baseTime
	// Slight reduction for very early moves (give some buffer)
	if tc.Ply < 8 {
		optimum = baseTime * 85 / 100
	}

	// Maximum time: 5x optimum or 80% of remaining, whichever is smaller
	maximum = min(optimum*5, timeLeft*8/10)

	// Never plan beyond the clock itself
	optimum = min(optimum, timeLeft*95/100)
	maximum = min(maximum, timeLeft*95/100)

	return max(optimum, minOptimumTime), max(maximum, minMaximumTime)
}

// stabilityScale returns the factor, in percent, applied to the optimum time
// given how many consecutive iterations kept the same best move.
func stabilityScale(stability int) int {
	switch {
	case stability >= 6:
		// Very stable
		return 40
	case stability >= 4:
		return 60
	case stability >= 2:
		return 80
	case stability == 0:
		// The best move just changed
		return 150
	}
	return 100
}

// nodeShareScale returns the factor, in percent, applied to the optimum time
// given the share of root nodes, in permille, spent below the best move.
// A dominant best move lets the search stop earlier.
func nodeShareScale(permille int) int {
	return clamp(200-permille*15/100, 50, 200)
}
