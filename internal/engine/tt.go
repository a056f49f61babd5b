package engine

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync/atomic"

	"github.com/hailam/tempest/internal/board"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Bound tells how a stored score relates to the true score of a position.
type Bound uint8

const (
	BoundNone  Bound = iota // static eval only
	BoundUpper              // failed low: true score <= stored score
	BoundLower              // failed high: true score >= stored score
	BoundExact
)

func (b Bound) String() string {
	return [...]string{"none", "upper", "lower", "exact"}[b&3]
}

const (
	DefaultHashMiB = 64
	MaxHashMiB     = 131072

	clusterEntries = 4
	ageBits        = 5
	ageCycle       = 1 << ageBits
	ageMask        = ageCycle - 1

	fullSample = 1000
)

// ErrTTAlloc is returned when the requested table cannot be allocated.
var ErrTTAlloc = errors.New("engine: transposition table allocation failed")

// ttEntry is one 16-byte slot stored as two words so that each half can be
// read and written atomically without locks.
//
//	data: key16 | score16 | eval16 | move16
//	meta: depth8 | age5 pv1 bound2 | key16
//
// The key fragment is written to both words. A reader that sees the two words
// from different writes almost always sees different fragments and treats the
// slot as a miss.
type ttEntry struct {
	data atomic.Uint64
	meta atomic.Uint64
}

type ttCluster [clusterEntries]ttEntry

type unpackedEntry struct {
	key        uint16
	score      int16
	staticEval int16
	move       board.Move
	depth      uint8
	age        uint8
	pv         bool
	bound      Bound
}

func packEntry(e unpackedEntry) (data, meta uint64) {
	data = uint64(e.key) |
		uint64(uint16(e.score))<<16 |
		uint64(uint16(e.staticEval))<<32 |
		uint64(e.move)<<48
	flags := e.age<<3 | uint8(e.bound)
	if e.pv {
		flags |= 1 << 2
	}
	meta = uint64(e.depth) | uint64(flags)<<8 | uint64(e.key)<<16
	return data, meta
}

// load returns the entry and whether its two words belong to the same write.
func (e *ttEntry) load() (unpackedEntry, bool) {
	data, meta := e.data.Load(), e.meta.Load()
	flags := uint8(meta >> 8)
	u := unpackedEntry{
		key:        uint16(data),
		score:      int16(data >> 16),
		staticEval: int16(data >> 32),
		move:       board.Move(data >> 48),
		depth:      uint8(meta),
		age:        flags >> 3,
		pv:         flags&(1<<2) != 0,
		bound:      Bound(flags & 3),
	}
	return u, uint16(meta>>16) == u.key
}

func (e *ttEntry) store(u unpackedEntry) {
	data, meta := packEntry(u)
	e.data.Store(data)
	e.meta.Store(meta)
}

// ProbedEntry is what a successful Probe returns. Scores are already
// re-based to the probing ply.
type ProbedEntry struct {
	Score      int
	StaticEval int
	Move       board.Move
	Depth      int
	Bound      Bound
	WasPV      bool
}

// TT is the transposition table shared by every search worker.
//
// Concurrency contract: Probe, Put and Prefetch may run concurrently from any
// number of workers without locks. A reader may observe an entry whose two
// words come from different writes; such tears are detected through the
// duplicated key fragment in almost every case, and otherwise behave like a
// key fragment collision. Stale data is at most one write old. Callers verify
// every stored move for pseudo-legality and legality before playing it.
// Resize, Clear, Finalize and Age must only be called while no search runs.
type TT struct {
	clusters []ttCluster
	age      uint8
	pending  bool
	sizeMiB  int
}

// NewTT allocates a table of sizeMiB mebibytes.
func NewTT(sizeMiB int) (*TT, error) {
	tt := &TT{}
	if err := tt.Resize(sizeMiB); err != nil {
		return nil, err
	}
	return tt, nil
}

// Resize replaces the table with a new one of sizeMiB mebibytes. On failure
// the current table is kept and ErrTTAlloc is returned.
func (tt *TT) Resize(sizeMiB int) error {
	if sizeMiB < 1 || sizeMiB > MaxHashMiB {
		return fmt.Errorf("%w: %d MiB out of range", ErrTTAlloc, sizeMiB)
	}
	n := uint64(sizeMiB) << 20 / uint64(clusterEntries*16)

	clusters, err := allocClusters(n)
	if err != nil {
		log.Warn().Int("mib", sizeMiB).Err(err).Msg("tt-resize-failed")
		return err
	}
	tt.clusters = clusters
	tt.sizeMiB = sizeMiB
	tt.age = 0
	tt.pending = false
	log.Debug().Int("mib", sizeMiB).Uint64("clusters", n).Msg("tt-resized")
	return nil
}

func allocClusters(n uint64) (clusters []ttCluster, err error) {
	defer func() {
		if r := recover(); r != nil {
			clusters, err = nil, fmt.Errorf("%w: %v", ErrTTAlloc, r)
		}
	}()
	return make([]ttCluster, n), nil
}

// SizeMiB returns the configured size.
func (tt *TT) SizeMiB() int {
	return tt.sizeMiB
}

// Clear schedules the table to be wiped. The work happens in Finalize.
func (tt *TT) Clear() {
	tt.pending = true
	tt.age = 0
}

// Finalize performs a pending clear and reports whether there was one. The
// pool calls it as every search generation starts.
func (tt *TT) Finalize() bool {
	if !tt.pending {
		return false
	}
	tt.pending = false

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(tt.clusters) + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < len(tt.clusters); start += chunk {
		part := tt.clusters[start:min(start+chunk, len(tt.clusters))]
		g.Go(func() error {
			clear(part)
			return nil
		})
	}
	_ = g.Wait()
	return true
}

// Age advances the generation counter. Called once per search.
func (tt *TT) Age() {
	tt.age = (tt.age + 1) & ageMask
}

func (tt *TT) cluster(key uint64) *ttCluster {
	hi, _ := bits.Mul64(key, uint64(len(tt.clusters)))
	return &tt.clusters[hi]
}

// Prefetch touches the cluster for key. It is only a hint.
func (tt *TT) Prefetch(key uint64) {
	_ = tt.cluster(key)[0].meta.Load()
}

// Probe looks key up. Mate scores in the result are relative to ply.
func (tt *TT) Probe(key uint64, ply int) (ProbedEntry, bool) {
	frag := uint16(key)
	c := tt.cluster(key)
	for i := range c {
		u, ok := c[i].load()
		if !ok || u.key != frag {
			continue
		}
		// An all-zero slot has fragment 0 and no bound; treat it as empty.
		if u.bound == BoundNone && u.depth == 0 && u.move == board.NoMove && u.staticEval == 0 && u.age == 0 {
			continue
		}
		return ProbedEntry{
			Score:      scoreFromTT(int(u.score), ply),
			StaticEval: int(u.staticEval),
			Move:       u.move,
			Depth:      int(u.depth),
			Bound:      u.bound,
			WasPV:      u.pv,
		}, true
	}
	return ProbedEntry{}, false
}

func (tt *TT) relativeAge(age uint8) int {
	return int((ageCycle + tt.age - age) & ageMask)
}

// Put stores a search result. score is root-relative and is converted with
// ply before storing.
func (tt *TT) Put(key uint64, score, staticEval int, move board.Move, depth, ply int, bound Bound, pv bool) {
	frag := uint16(key)
	c := tt.cluster(key)

	var slot *ttEntry
	var old unpackedEntry
	for i := range c {
		if u, _ := c[i].load(); u.key == frag {
			slot, old = &c[i], u
			break
		}
	}
	if slot == nil {
		// Replace an empty slot, else the shallowest after aging.
		worst := ScoreInf
		for i := range c {
			u, _ := c[i].load()
			v := int(u.depth) - 4*tt.relativeAge(u.age)
			if u.bound == BoundNone && u.depth == 0 {
				v = -ScoreInf
			}
			if v < worst {
				worst = v
				slot, old = &c[i], u
			}
		}
	}

	sameKey := old.key == frag
	if move == board.NoMove && sameKey {
		move = old.move
	}

	pvBonus := 0
	if pv {
		pvBonus = 2
	}
	if bound != BoundExact && sameKey && old.age == tt.age && depth+4+pvBonus <= int(old.depth) {
		return
	}

	slot.store(unpackedEntry{
		key:        frag,
		score:      int16(scoreToTT(score, ply)),
		staticEval: int16(staticEval),
		move:       move,
		depth:      uint8(clamp(depth, 0, 255)),
		age:        tt.age,
		pv:         pv,
		bound:      bound,
	})
}

// Full returns how many of the sampled entries belong to the current search,
// in permille.
func (tt *TT) Full() int {
	n := min(fullSample, len(tt.clusters))
	if n == 0 {
		return 0
	}
	used := 0
	for i := 0; i < n; i++ {
		for j := range tt.clusters[i] {
			u, _ := tt.clusters[i][j].load()
			if u.bound != BoundNone && u.age == tt.age {
				used++
			}
		}
	}
	return used * 1000 / (n * clusterEntries)
}
