package engine

import (
	"time"

	"github.com/hailam/tempest/internal/board"
)

// SearchInfo contains one progress line.
type SearchInfo struct {
	Depth      int
	SelDepth   int
	MultiPV    int // 1-based line number
	Score      int
	UpperBound bool
	LowerBound bool
	Nodes      uint64
	NPS        uint64
	Time       time.Duration
	HashFull   int // permille of hash table used
	TBHits     uint64
	PV         []board.Move
}

// CurrMoveInfo names the root move being searched during a long iteration.
type CurrMoveInfo struct {
	Depth  int
	Move   board.Move
	Number int // 1-based
}

// SearchResult is the outcome of one search generation.
type SearchResult struct {
	BestMove   board.Move // NoMove when the root has no legal move
	PonderMove board.Move
	Score      int
	Depth      int
	Nodes      uint64
	Time       time.Duration
}

// Reporter receives output from the main worker. Calls never overlap.
type Reporter interface {
	Info(SearchInfo)
	CurrMove(CurrMoveInfo)
	BestMove(SearchResult)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Info(SearchInfo)       {}
func (NopReporter) CurrMove(CurrMoveInfo) {}
func (NopReporter) BestMove(SearchResult) {}
