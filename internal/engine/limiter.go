package engine

import (
	"time"

	"github.com/hailam/tempest/internal/board"
)

type limiterKind uint8

const (
	limitInfinite limiterKind = iota
	limitNodes
	limitMoveTime
	limitClock
	limitCompound
)

// Limiter decides when the main worker stops. It is a closed set of
// variants sharing one struct; Stop is the only dispatch point. A Limiter is
// owned by the main worker for the duration of one search.
type Limiter struct {
	kind  limiterKind
	start time.Time

	maxNodes uint64

	optimum time.Duration
	maximum time.Duration
	scale   int // percent applied to optimum, from the last completed depth

	prevBest  board.Move
	stability int

	parts []Limiter
}

// InfiniteLimit never stops on its own; only Pool.Stop ends the search.
func InfiniteLimit() Limiter {
	return Limiter{kind: limitInfinite, start: time.Now()}
}

// NodeLimit stops once the summed node count of all workers reaches n.
func NodeLimit(n uint64) Limiter {
	return Limiter{kind: limitNodes, start: time.Now(), maxNodes: n}
}

// MoveTimeLimit stops after d has elapsed, minus the overhead.
func MoveTimeLimit(d, overhead time.Duration) Limiter {
	d = max(d-overhead, time.Millisecond)
	return Limiter{kind: limitMoveTime, start: time.Now(), maximum: d}
}

// ClockLimit budgets time from the clock state: iterations stop being
// started past the (scaled) optimum time and the search aborts at the
// maximum time.
func ClockLimit(tc TimeControl) Limiter {
	opt, maxi := allocateTime(tc)
	return Limiter{kind: limitClock, start: time.Now(), optimum: opt, maximum: maxi, scale: 100}
}

// CompoundLimit stops as soon as any of its parts would.
func CompoundLimit(parts ...Limiter) Limiter {
	switch len(parts) {
	case 0:
		return InfiniteLimit()
	case 1:
		return parts[0]
	}
	return Limiter{kind: limitCompound, start: time.Now(), parts: parts}
}

// Elapsed is the time since the limiter was created.
func (l *Limiter) Elapsed() time.Duration {
	return time.Since(l.start)
}

// Stop reports whether the search should end. With soft set the check
// happens between iterations and may stop early; otherwise it is the hard
// check made inside the tree.
func (l *Limiter) Stop(nodes uint64, soft bool) bool {
	switch l.kind {
	case limitNodes:
		return nodes >= l.maxNodes
	case limitMoveTime:
		return l.Elapsed() >= l.maximum
	case limitClock:
		elapsed := l.Elapsed()
		if soft && elapsed >= l.optimum*time.Duration(l.scale)/100 {
			return true
		}
		return elapsed >= l.maximum
	case limitCompound:
		for i := range l.parts {
			if l.parts[i].Stop(nodes, soft) {
				return true
			}
		}
	}
	return false
}

// Update feeds the result of a completed iteration to time-based variants.
// bestShare is the permille of root nodes spent on the best move.
func (l *Limiter) Update(depth int, best board.Move, bestShare int) {
	switch l.kind {
	case limitClock:
		if best == l.prevBest {
			l.stability++
		} else {
			l.stability = 0
		}
		l.prevBest = best
		if depth >= 6 {
			l.scale = stabilityScale(l.stability) * nodeShareScale(bestShare) / 100
		}
	case limitCompound:
		for i := range l.parts {
			l.parts[i].Update(depth, best, bestShare)
		}
	}
}

// HardTimed reports whether the limiter can stop the search in the middle
// of an iteration, so the main worker must poll it inside the tree.
func (l *Limiter) HardTimed() bool {
	switch l.kind {
	case limitNodes, limitMoveTime, limitClock:
		return true
	case limitCompound:
		for i := range l.parts {
			if l.parts[i].HardTimed() {
				return true
			}
		}
	}
	return false
}
