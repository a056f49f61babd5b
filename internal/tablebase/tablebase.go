// Package tablebase defines how the search asks endgame tablebases for
// win/draw/loss results, with a no-op prober, an HTTP prober and a
// persistent cache in front of either.
package tablebase

import (
	"github.com/hailam/tempest/internal/board"
)

// WDL represents a Win/Draw/Loss result from the side to move's view.
type WDL int

const (
	WDLLoss        WDL = -2
	WDLBlessedLoss WDL = -1 // lost, but the fifty-move rule saves it
	WDLDraw        WDL = 0
	WDLCursedWin   WDL = 1 // won, but the fifty-move rule spoils it
	WDLWin         WDL = 2
)

func (w WDL) String() string {
	switch w {
	case WDLLoss:
		return "loss"
	case WDLBlessedLoss:
		return "blessed-loss"
	case WDLCursedWin:
		return "cursed-win"
	case WDLWin:
		return "win"
	}
	return "draw"
}

// ProbeResult contains the result of a tablebase probe.
type ProbeResult struct {
	Found bool
	WDL   WDL
	DTZ   int // distance to the next zeroing move
}

// RootResult contains the best move from the tablebase at the root.
type RootResult struct {
	Found bool
	Move  board.Move
	WDL   WDL
	DTZ   int
}

// Prober is the interface for tablebase probing. Probe is called from every
// search thread and must be safe for concurrent use and must not block.
type Prober interface {
	Probe(pos *board.Position) ProbeResult

	// ProbeRoot finds the best move at the root. It may block.
	ProbeRoot(pos *board.Position) RootResult

	// MaxPieces returns the largest piece count (kings included) covered.
	MaxPieces() int

	Available() bool
}

// NoopProber never finds anything.
type NoopProber struct{}

func (NoopProber) Probe(*board.Position) ProbeResult    { return ProbeResult{} }
func (NoopProber) ProbeRoot(*board.Position) RootResult { return RootResult{} }
func (NoopProber) MaxPieces() int                       { return 0 }
func (NoopProber) Available() bool                      { return false }
