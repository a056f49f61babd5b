package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/nnue"
	"github.com/hailam/tempest/internal/tablebase"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoNetwork   = errors.New("engine: no network loaded")
	ErrSearching   = errors.New("engine: search in progress")
	ErrIllegalMove = errors.New("engine: illegal move")
)

// SearchRoot describes what to search: a base position, the moves played
// since then (used for repetition detection), an optional restriction of
// the root moves and an optional depth limit.
type SearchRoot struct {
	Base        board.Position
	Moves       []board.Move
	SearchMoves []board.Move
	MaxDepth    int // 0 means no limit

	// Infinite keeps the result back until Stop is called, even when the
	// depth limit was reached.
	Infinite bool
}

// Pool runs Lazy SMP: every worker searches the same root with its own
// stack and histories, sharing only the transposition table.
//
// A generation goes through four barriers. resetBarrier and idleBarrier
// include the controlling goroutine, so Start can publish the new root while
// every worker is parked; setupBarrier and searchEndBarrier are between the
// workers only.
type Pool struct {
	opts   *Options
	tt     *TT
	net    *nnue.Network
	prober tablebase.Prober

	workers []*worker
	group   *errgroup.Group

	resetBarrier     *barrier
	idleBarrier      *barrier
	setupBarrier     *barrier
	searchEndBarrier *barrier

	mu      sync.Mutex
	cond    *sync.Cond
	running int
	result  SearchResult

	stop atomic.Bool
	quit atomic.Bool

	// Written by the controller between generations, read-only inside one.
	root    SearchRoot
	limiter Limiter
	rep     Reporter

	// exhaustive turns off pruning and reductions in every worker. Only
	// tests set it, to compare against the selective search.
	exhaustive bool
}

// NewPool starts opts.Threads parked workers. A nil prober disables
// tablebase probing.
func NewPool(opts *Options, tt *TT, net *nnue.Network, prober tablebase.Prober) *Pool {
	if prober == nil {
		prober = tablebase.NoopProber{}
	}
	p := &Pool{
		opts:   opts,
		tt:     tt,
		net:    net,
		prober: prober,
		rep:    NopReporter{},
	}
	p.cond = sync.NewCond(&p.mu)
	p.spawn(max(opts.Threads, 1))
	return p
}

func (p *Pool) spawn(n int) {
	p.quit.Store(false)
	p.resetBarrier = newBarrier(n + 1)
	p.idleBarrier = newBarrier(n + 1)
	p.setupBarrier = newBarrier(n)
	p.searchEndBarrier = newBarrier(n)

	p.workers = make([]*worker, n)
	p.group = new(errgroup.Group)
	for i := range n {
		w := &worker{id: i, pool: p}
		p.workers[i] = w
		p.group.Go(w.run)
	}
}

// shutdown stops any search, releases the workers from their loop and
// joins them.
func (p *Pool) shutdown() error {
	if p.workers == nil {
		return nil
	}
	p.Stop()
	p.Wait()

	p.resetBarrier.arriveAndWait()
	p.quit.Store(true)
	p.idleBarrier.arriveAndWait()

	err := p.group.Wait()
	p.workers = nil
	return err
}

// SetThreads replaces the workers with n fresh ones. Histories start empty.
func (p *Pool) SetThreads(n int) error {
	if n < 1 || n > MaxThreads {
		return fmt.Errorf("%w: Threads %d", ErrOption, n)
	}
	if err := p.shutdown(); err != nil {
		return err
	}
	p.spawn(n)
	log.Debug().Int("threads", n).Msg("pool-resized")
	return nil
}

// Threads is the current worker count.
func (p *Pool) Threads() int {
	return len(p.workers)
}

// SetOptions applies a new configuration between searches, resizing the
// table and the pool when needed. On error the previous table is kept.
func (p *Pool) SetOptions(opts *Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	p.Stop()
	p.Wait()

	if opts.HashMiB != p.tt.SizeMiB() {
		if err := p.tt.Resize(opts.HashMiB); err != nil {
			return err
		}
	}
	if opts.Threads != len(p.workers) {
		if err := p.SetThreads(opts.Threads); err != nil {
			return err
		}
	}
	p.opts = opts
	return nil
}

// SetNetwork swaps the evaluation network. Workers pick it up at the next
// generation.
func (p *Pool) SetNetwork(net *nnue.Network) {
	p.Stop()
	p.Wait()
	p.net = net
}

// Network returns the network in use, possibly nil.
func (p *Pool) Network() *nnue.Network {
	return p.net
}

// SetProber replaces the tablebase prober; nil disables probing.
func (p *Pool) SetProber(prober tablebase.Prober) {
	if prober == nil {
		prober = tablebase.NoopProber{}
	}
	p.Stop()
	p.Wait()
	p.prober = prober
}

// Clear forgets everything learned in previous searches: the transposition
// table and every worker's histories.
func (p *Pool) Clear() {
	p.Stop()
	p.Wait()
	p.tt.Clear()
	for _, w := range p.workers {
		w.hist.clear()
		w.corr.Clear()
	}
}

// Start begins a search generation and returns at once. Results arrive
// through rep; Wait blocks until the generation ends.
func (p *Pool) Start(root SearchRoot, limiter Limiter, rep Reporter) error {
	if p.net == nil {
		return ErrNoNetwork
	}
	if p.IsSearching() {
		return ErrSearching
	}

	pos := root.Base
	for _, m := range root.Moves {
		if !pos.LegalMoves().Contains(m) {
			return fmt.Errorf("%w: %s in %s", ErrIllegalMove, m, pos.FEN())
		}
		pos, _ = pos.Apply(m)
	}
	if rep == nil {
		rep = NopReporter{}
	}
	root.SearchMoves = p.tablebaseRoot(&pos, root.SearchMoves)

	p.resetBarrier.arriveAndWait()

	p.root, p.limiter, p.rep = root, limiter, rep
	p.stop.Store(false)
	p.mu.Lock()
	p.running = len(p.workers)
	p.result = SearchResult{}
	p.mu.Unlock()

	if p.tt.Finalize() {
		log.Debug().Int("hash", p.tt.SizeMiB()).Msg("tt-cleared")
	}
	p.tt.Age()

	p.idleBarrier.arriveAndWait()
	return nil
}

// tablebaseRoot narrows the root to the tablebase move when pos is covered.
// It may block on the prober.
func (p *Pool) tablebaseRoot(pos *board.Position, only []board.Move) []board.Move {
	limit := min(p.opts.SyzygyProbeLimit, p.prober.MaxPieces())
	if !p.prober.Available() || pos.PieceCount() > limit || pos.CastlingRights != board.NoCastling {
		return only
	}
	res := p.prober.ProbeRoot(pos)
	if !res.Found || !pos.LegalMoves().Contains(res.Move) {
		return only
	}
	if len(only) > 0 && !slices.Contains(only, res.Move) {
		return only
	}
	log.Debug().Str("move", res.Move.String()).Str("wdl", res.WDL.String()).Int("dtz", res.DTZ).Msg("tb-root")
	return []board.Move{res.Move}
}

// Stop asks the running search to end. It does not wait.
func (p *Pool) Stop() {
	p.stop.Store(true)
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Wait blocks until the current generation has reported its best move and
// returns that result. Without a running search it returns the last one.
func (p *Pool) Wait() SearchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.running > 0 {
		p.cond.Wait()
	}
	return p.result
}

// IsSearching reports whether a generation is in progress.
func (p *Pool) IsSearching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running > 0
}

// Close stops and joins every worker. The pool cannot be used afterwards.
func (p *Pool) Close() error {
	return p.shutdown()
}

func (p *Pool) totalNodes() uint64 {
	var n uint64
	for _, w := range p.workers {
		n += w.nodes.Load()
	}
	return n
}

func (p *Pool) totalTBHits() uint64 {
	var n uint64
	for _, w := range p.workers {
		n += w.tbHits.Load()
	}
	return n
}
