package engine

import (
	"errors"
	"fmt"
	"time"
)

// Option bounds.
const (
	MaxThreads          = 1024
	MaxMultiPV          = 256
	MaxMoveOverhead     = 5 * time.Second
	DefaultMoveOverhead = 10 * time.Millisecond
	MaxSyzygyPieces     = 7
)

// ErrOption reports an option value outside its range.
var ErrOption = errors.New("engine: option out of range")

// Options is the immutable engine configuration. The protocol layer builds a
// new value whenever an option changes and hands it to the pool between
// searches; nothing in the search writes to it.
type Options struct {
	Threads          int
	HashMiB          int
	MultiPV          int
	MoveOverhead     time.Duration
	EvalFile         string
	SyzygyProbeDepth int
	SyzygyProbeLimit int
	TBCache          string
}

// DefaultOptions returns the configuration the engine starts with.
func DefaultOptions() Options {
	return Options{
		Threads:          1,
		HashMiB:          DefaultHashMiB,
		MultiPV:          1,
		MoveOverhead:     DefaultMoveOverhead,
		SyzygyProbeDepth: 1,
		SyzygyProbeLimit: MaxSyzygyPieces,
	}
}

// Validate checks every field against its range.
func (o *Options) Validate() error {
	switch {
	case o.Threads < 1 || o.Threads > MaxThreads:
		return fmt.Errorf("%w: Threads %d", ErrOption, o.Threads)
	case o.HashMiB < 1 || o.HashMiB > MaxHashMiB:
		return fmt.Errorf("%w: Hash %d", ErrOption, o.HashMiB)
	case o.MultiPV < 1 || o.MultiPV > MaxMultiPV:
		return fmt.Errorf("%w: MultiPV %d", ErrOption, o.MultiPV)
	case o.MoveOverhead < 0 || o.MoveOverhead > MaxMoveOverhead:
		return fmt.Errorf("%w: Move Overhead %v", ErrOption, o.MoveOverhead)
	case o.SyzygyProbeDepth < 1 || o.SyzygyProbeDepth > MaxDepth:
		return fmt.Errorf("%w: SyzygyProbeDepth %d", ErrOption, o.SyzygyProbeDepth)
	case o.SyzygyProbeLimit < 0 || o.SyzygyProbeLimit > MaxSyzygyPieces:
		return fmt.Errorf("%w: SyzygyProbeLimit %d", ErrOption, o.SyzygyProbeLimit)
	}
	return nil
}
