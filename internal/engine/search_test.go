package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/nnue"
	"github.com/hailam/tempest/internal/tablebase"
	"github.com/matryer/is"
	"lukechampine.com/frand"
)

var testNetwork = sync.OnceValue(func() *nnue.Network {
	return nnue.Synthetic(1)
})

func testOptions(threads int) *Options {
	opts := DefaultOptions()
	opts.Threads = threads
	opts.HashMiB = 8
	return &opts
}

func newTestPool(t *testing.T, opts *Options) *Pool {
	t.Helper()
	tt, err := NewTT(opts.HashMiB)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPool(opts, tt, testNetwork(), nil)
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return p
}

// newTestWorker returns a helper worker set up on fen outside any search
// generation, for calling search internals directly.
func newTestWorker(t *testing.T, fen string) *worker {
	t.Helper()
	p := newTestPool(t, testOptions(1))
	p.root = SearchRoot{Base: *mustParseFEN(t, fen)}
	w := &worker{id: 1, pool: p}
	w.setup()
	return w
}

// recorder collects everything a search reports.
type recorder struct {
	mu    sync.Mutex
	infos []SearchInfo
	best  []SearchResult
}

func (r *recorder) Info(info SearchInfo) {
	r.mu.Lock()
	r.infos = append(r.infos, info)
	r.mu.Unlock()
}

func (r *recorder) CurrMove(CurrMoveInfo) {}

func (r *recorder) BestMove(res SearchResult) {
	r.mu.Lock()
	r.best = append(r.best, res)
	r.mu.Unlock()
}

func (r *recorder) bestMoves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.best)
}

func searchFEN(t *testing.T, p *Pool, fen string, depth int) (SearchResult, *recorder) {
	t.Helper()
	rec := &recorder{}
	root := SearchRoot{Base: *mustParseFEN(t, fen), MaxDepth: depth}
	if err := p.Start(root, InfiniteLimit(), rec); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := p.Wait()
	if n := rec.bestMoves(); n != 1 {
		t.Fatalf("got %d best moves, want 1", n)
	}
	return res, rec
}

func TestMateInOne(t *testing.T) {
	tests := []struct {
		name string
		fen  string
	}{
		{"back rank", "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1"},
		{"scholar", "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4"},
		{"queen and king", "k7/8/1K6/8/8/8/8/6Q1 w - - 0 1"},
		{"black to move", "r5k1/8/8/8/8/8/5PPP/6K1 b - - 0 1"},
	}
	for _, threads := range []int{1, 3} {
		p := newTestPool(t, testOptions(threads))
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, _ := searchFEN(t, p, tt.fen, 4)
				if res.Score != MateIn(1) {
					t.Errorf("threads %d: score %s, want mate 1", threads, FormatScore(res.Score))
				}
				pos := mustParseFEN(t, tt.fen)
				next, _ := pos.Apply(res.BestMove)
				if !next.IsCheckmate() {
					t.Errorf("threads %d: %s does not mate", threads, res.BestMove)
				}
			})
		}
	}
}

func TestMateInTwo(t *testing.T) {
	p := newTestPool(t, testOptions(1))
	for depth := 3; depth <= 9; depth++ {
		p.Clear()
		res, _ := searchFEN(t, p, "7k/8/8/8/8/8/R7/1R4K1 w - - 0 1", depth)
		if res.Score != MateIn(3) {
			t.Errorf("depth %d: score %s, want mate 2", depth, FormatScore(res.Score))
		}
	}
}

// Pruning may change scores and move choice but a forced mate found by the
// full-width search at some depth must be found by the selective one too,
// and the other way round.
func TestPruningKeepsMateClassification(t *testing.T) {
	tests := []struct {
		name  string
		fen   string
		depth int
		mate  bool
	}{
		{"back rank", "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", 5, true},
		{"scholar", "r1bqkb1r/pppp1ppp/2n2n2/4p2Q/2B1P3/8/PPPP1PPP/RNB1K1NR w KQkq - 4 4", 3, true},
		{"rook roller", "7k/8/8/8/8/8/R7/1R4K1 w - - 0 1", 5, true},
		{"queen net", "k7/8/1K6/8/8/8/8/6Q1 w - - 0 1", 5, true},
		{"mated next move", "k7/8/1K6/8/8/8/8/6Q1 b - - 0 1", 5, true},
		{"start", board.StartFEN, 4, false},
		{"knight and pawns", "4k3/8/3p4/4n3/3P4/8/8/4K3 w - - 0 1", 5, false},
	}
	p := newTestPool(t, testOptions(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.exhaustive = false
			p.Clear()
			selective, _ := searchFEN(t, p, tt.fen, tt.depth)

			p.exhaustive = true
			p.Clear()
			full, _ := searchFEN(t, p, tt.fen, tt.depth)
			p.exhaustive = false

			if IsMateScore(selective.Score) != IsMateScore(full.Score) {
				t.Errorf("selective %s, full width %s", FormatScore(selective.Score), FormatScore(full.Score))
			}
			if IsMateScore(full.Score) != tt.mate {
				t.Errorf("full width %s, want mate %v", FormatScore(full.Score), tt.mate)
			}
		})
	}
}

func TestCheckStopPollsOnlyBoundedLimits(t *testing.T) {
	is := is.New(t)
	w := newTestWorker(t, board.StartFEN)
	w.id, w.rootDepth = 0, 2
	w.nodes.Store(checkInterval)

	is.True(!w.polling)
	is.True(!w.checkStop())

	w.pool.limiter = NodeLimit(0)
	w.setup()
	w.rootDepth = 2
	w.nodes.Store(checkInterval)
	is.True(w.polling)
	is.True(w.checkStop())
	is.True(w.pool.stop.Load())
}

func TestRootWithoutMoves(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(2))

	res, rec := searchFEN(t, p, "R6k/6pp/8/8/8/8/8/K7 b - - 0 1", 5)
	is.Equal(res.BestMove, board.NoMove)
	is.Equal(res.Score, MatedIn(0))
	is.Equal(len(rec.infos), 0)

	res, _ = searchFEN(t, p, "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1", 5)
	is.Equal(res.BestMove, board.NoMove)
	is.Equal(res.Score, ScoreDraw)
}

func TestMultiPVListsEveryRootMove(t *testing.T) {
	is := is.New(t)
	opts := testOptions(1)
	opts.MultiPV = MaxMultiPV
	p := newTestPool(t, opts)

	_, rec := searchFEN(t, p, board.StartFEN, 1)

	start := board.NewPosition()
	seen := map[board.Move]bool{}
	lines := 0
	for _, info := range rec.infos {
		if info.Depth != 1 {
			continue
		}
		lines++
		is.Equal(info.MultiPV, lines)
		is.True(len(info.PV) > 0)
		m := info.PV[0]
		is.True(start.LegalMoves().Contains(m))
		pc := start.PieceAt(m.From())
		is.True(pc != board.NoPiece)
		is.Equal(pc.Color(), board.White)
		seen[m] = true
	}
	is.Equal(lines, 20)
	is.Equal(len(seen), 20)
}

func TestSearchMovesRestrictRoot(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(2))

	start := board.NewPosition()
	only := board.NewMove(board.A2, board.A3)
	root := SearchRoot{Base: *start, SearchMoves: []board.Move{only}, MaxDepth: 4}
	is.NoErr(p.Start(root, InfiniteLimit(), nil))
	res := p.Wait()
	is.Equal(res.BestMove, only)
}

func TestRootMovesReplayHistory(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(1))

	start := board.NewPosition()
	moves := []board.Move{
		board.NewMove(board.G1, board.F3), board.NewMove(board.G8, board.F6),
		board.NewMove(board.F3, board.G1), board.NewMove(board.F6, board.G8),
	}
	root := SearchRoot{Base: *start, Moves: moves, MaxDepth: 3}
	is.NoErr(p.Start(root, InfiniteLimit(), nil))
	res := p.Wait()
	is.True(start.LegalMoves().Contains(res.BestMove)) // same position as the start

	bad := SearchRoot{Base: *start, Moves: []board.Move{board.NewMove(board.E2, board.E5)}}
	err := p.Start(bad, InfiniteLimit(), nil)
	is.True(errors.Is(err, ErrIllegalMove))
	is.True(!p.IsSearching())
}

func TestNodeLimitStopsSearch(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(1))

	root := SearchRoot{Base: *board.NewPosition()}
	is.NoErr(p.Start(root, NodeLimit(20000), nil))
	res := p.Wait()
	is.True(res.BestMove != board.NoMove)
	is.True(res.Nodes >= 20000 || res.Depth == MaxDepth-1)
	is.True(res.Nodes < 20000+4*checkInterval)
}

func TestStopEndsInfiniteSearch(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(2))
	rec := &recorder{}

	root := SearchRoot{Base: *board.NewPosition(), MaxDepth: 1, Infinite: true}
	is.NoErr(p.Start(root, InfiniteLimit(), rec))

	time.Sleep(50 * time.Millisecond)
	is.True(p.IsSearching())
	is.Equal(rec.bestMoves(), 0) // depth 1 is done but the result waits for stop

	err := p.Start(root, InfiniteLimit(), rec)
	is.True(errors.Is(err, ErrSearching))

	p.Stop()
	res := p.Wait()
	is.Equal(rec.bestMoves(), 1)
	is.True(board.NewPosition().LegalMoves().Contains(res.BestMove))
	is.Equal(res.Depth, 1)
}

func TestStopWithoutDepthLimit(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(4))

	root := SearchRoot{Base: *board.NewPosition()}
	is.NoErr(p.Start(root, InfiniteLimit(), nil))
	time.Sleep(100 * time.Millisecond)
	p.Stop()
	res := p.Wait()
	is.True(res.Depth >= 1)
	is.True(res.BestMove != board.NoMove)
	is.True(!p.IsSearching())
}

func TestPoolReconfiguration(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(1))

	is.NoErr(p.SetThreads(3))
	is.Equal(p.Threads(), 3)
	res, _ := searchFEN(t, p, board.StartFEN, 3)
	is.True(res.BestMove != board.NoMove)

	opts := testOptions(2)
	opts.HashMiB = 4
	opts.MultiPV = 3
	is.NoErr(p.SetOptions(opts))
	is.Equal(p.Threads(), 2)
	is.Equal(p.tt.SizeMiB(), 4)
	_, rec := searchFEN(t, p, board.StartFEN, 2)
	multi := 0
	for _, info := range rec.infos {
		multi = max(multi, info.MultiPV)
	}
	is.Equal(multi, 3)

	bad := testOptions(0)
	is.True(errors.Is(p.SetOptions(bad), ErrOption))
	is.Equal(p.Threads(), 2)

	p.Clear()
	res, _ = searchFEN(t, p, board.StartFEN, 2)
	is.True(res.BestMove != board.NoMove)
}

func TestStartWithoutNetwork(t *testing.T) {
	is := is.New(t)
	opts := testOptions(1)
	tt, err := NewTT(opts.HashMiB)
	is.NoErr(err)
	p := NewPool(opts, tt, nil, nil)
	defer p.Close()

	err = p.Start(SearchRoot{Base: *board.NewPosition()}, InfiniteLimit(), nil)
	is.True(errors.Is(err, ErrNoNetwork))

	p.SetNetwork(testNetwork())
	is.NoErr(p.Start(SearchRoot{Base: *board.NewPosition(), MaxDepth: 2}, InfiniteLimit(), nil))
	is.True(p.Wait().BestMove != board.NoMove)
}

func TestScoresStayInRange(t *testing.T) {
	p := newTestPool(t, testOptions(2))
	rng := frand.NewCustom(make([]byte, 32), 1024, 12)

	for i := range 20 {
		pos := board.NewPosition()
		for range 6 + rng.Intn(20) {
			moves := pos.LegalMoves().Slice()
			if len(moves) == 0 {
				break
			}
			next, _ := pos.Apply(moves[rng.Intn(len(moves))])
			pos = &next
		}

		if err := p.Start(SearchRoot{Base: *pos}, NodeLimit(5000), nil); err != nil {
			t.Fatal(err)
		}
		res := p.Wait()
		if res.Score > ScoreMate || res.Score < -ScoreMate {
			t.Errorf("position %d (%s): score %d out of range", i, pos.FEN(), res.Score)
		}
		if pos.HasLegalMoves() && !pos.LegalMoves().Contains(res.BestMove) {
			t.Errorf("position %d (%s): best move %s is not legal", i, pos.FEN(), res.BestMove)
		}
	}
}

// wdlProber claims every position with at most three pieces is won for
// white.
type wdlProber struct{}

func (wdlProber) Probe(pos *board.Position) tablebase.ProbeResult {
	if pos.PieceCount() > 3 {
		return tablebase.ProbeResult{}
	}
	wdl := tablebase.WDLWin
	if pos.SideToMove == board.Black {
		wdl = tablebase.WDLLoss
	}
	return tablebase.ProbeResult{Found: true, WDL: wdl}
}

func (wdlProber) ProbeRoot(*board.Position) tablebase.RootResult { return tablebase.RootResult{} }
func (wdlProber) MaxPieces() int                                 { return 3 }
func (wdlProber) Available() bool                                { return true }

func TestTablebaseScores(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(1))
	p.SetProber(wdlProber{})

	res, rec := searchFEN(t, p, "4k3/8/8/8/n7/8/8/R3K3 w - - 0 1", 4)
	is.Equal(res.BestMove, board.NewMove(board.A1, board.A4))
	is.True(res.Score >= ScoreTBWinInMaxPly)
	is.True(!IsMateScore(res.Score))
	is.True(rec.infos[len(rec.infos)-1].TBHits > 0)

	// Disabled by the piece limit option.
	opts := testOptions(1)
	opts.SyzygyProbeLimit = 0
	is.NoErr(p.SetOptions(opts))
	p.Clear()
	res, _ = searchFEN(t, p, "4k3/8/8/8/n7/8/8/R3K3 w - - 0 1", 4)
	is.True(res.Score < ScoreTBWinInMaxPly)
}

// rootProber knows only the best root move of small positions.
type rootProber struct {
	move      board.Move
	available bool
	asked     atomic.Int32
}

func (r *rootProber) Probe(*board.Position) tablebase.ProbeResult { return tablebase.ProbeResult{} }
func (r *rootProber) MaxPieces() int                              { return 3 }
func (r *rootProber) Available() bool                             { return r.available }

func (r *rootProber) ProbeRoot(*board.Position) tablebase.RootResult {
	r.asked.Add(1)
	return tablebase.RootResult{Found: true, Move: r.move, WDL: tablebase.WDLWin, DTZ: 20}
}

func TestTablebaseRootMove(t *testing.T) {
	is := is.New(t)
	p := newTestPool(t, testOptions(2))
	const krk = "4k3/8/8/8/8/8/8/R3K3 w Q - 0 1"
	const noCastling = "4k3/8/8/8/8/8/8/R3K3 w - - 0 1"
	kingMove := board.NewMove(board.E1, board.D2)

	prober := &rootProber{move: kingMove, available: true}
	p.SetProber(prober)

	res, _ := searchFEN(t, p, noCastling, 4)
	is.Equal(res.BestMove, kingMove)
	is.Equal(prober.asked.Load(), int32(1))

	// Castling rights are not covered by tablebases.
	searchFEN(t, p, krk, 2)
	is.Equal(prober.asked.Load(), int32(1))

	// A searchmoves restriction without the tablebase move wins.
	only := board.NewMove(board.A1, board.A7)
	root := SearchRoot{Base: *mustParseFEN(t, noCastling), SearchMoves: []board.Move{only}, MaxDepth: 2}
	is.NoErr(p.Start(root, InfiniteLimit(), nil))
	is.Equal(p.Wait().BestMove, only)

	prober.available = false
	searchFEN(t, p, noCastling, 2)
	is.Equal(prober.asked.Load(), int32(2))
}

func TestQsearchFailsHighMonotonically(t *testing.T) {
	fens := []string{
		board.StartFEN,
		"4k3/8/3p4/4n3/3P4/8/8/4K3 w - - 0 1",
		"4k3/8/8/3q4/8/8/3R4/4K3 w - - 0 1",
	}
	for _, fen := range fens {
		w := newTestWorker(t, fen)
		qs := func(alpha, beta int) int {
			w.tt.Clear()
			w.tt.Finalize()
			return w.qsearch(0, 0, alpha, beta, true)
		}

		exact := qs(-ScoreInf, ScoreInf)
		if exact <= -ScoreWin || exact >= ScoreWin {
			t.Errorf("%s: quiescence score %d out of the normal range", fen, exact)
		}

		failedLow := false
		for beta := exact - 600; beta <= exact+600; beta += 25 {
			score := qs(beta-1, beta)
			high := score >= beta
			if high && failedLow {
				t.Errorf("%s: fails high at beta %d after failing low below it", fen, beta)
			}
			failedLow = failedLow || !high
		}
	}
}
