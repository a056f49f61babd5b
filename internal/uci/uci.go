// Package uci implements the Universal Chess Interface front end.
package uci

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/engine"
	"github.com/hailam/tempest/internal/nnue"
	"github.com/hailam/tempest/internal/storage"
	"github.com/hailam/tempest/internal/tablebase"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	engineName   = "Tempest"
	engineAuthor = "the Tempest developers"
	tbCacheSize  = 1 << 16

	tbCacheDefault = "default"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	outMu sync.Mutex
	out   io.Writer

	opts engine.Options
	tt   *engine.TT
	pool *engine.Pool

	// Game state: the position set up by "position" and the moves played
	// from it.
	base  board.Position
	moves []board.Move
	pos   board.Position

	store  *storage.Storage
	prober *tablebase.CachedProber
}

// New creates a protocol handler writing to out. net may be nil; "go" then
// answers with a null move until EvalFile is set.
func New(out io.Writer, net *nnue.Network, opts engine.Options) (*UCI, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	tt, err := engine.NewTT(opts.HashMiB)
	if err != nil {
		return nil, err
	}
	u := &UCI{
		out:  out,
		opts: opts,
		tt:   tt,
	}
	u.pool = engine.NewPool(&u.opts, tt, net, nil)
	u.setStartPos()
	return u, nil
}

func (u *UCI) setStartPos() {
	u.base = *board.NewPosition()
	u.moves = u.moves[:0]
	u.pos = u.base
}

func (u *UCI) send(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	fmt.Fprintf(u.out, format+"\n", args...)
}

func (u *UCI) infoString(format string, args ...any) {
	u.send("info string "+format, args...)
}

// Run reads commands from in until "quit" or end of input.
func (u *UCI) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if !u.Handle(fields[0], fields[1:]) {
			return nil
		}
	}
	return scanner.Err()
}

// Handle runs one command. It returns false on "quit".
func (u *UCI) Handle(cmd string, args []string) bool {
	log.Debug().Str("cmd", cmd).Strs("args", args).Msg("uci-command")

	switch cmd {
	case "uci":
		u.handleUCI()
	case "isready":
		u.send("readyok")
	case "ucinewgame":
		u.pool.Clear()
		u.setStartPos()
	case "setoption":
		u.handleSetOption(args)
	case "position":
		u.handlePosition(args)
	case "go":
		u.handleGo(args)
	case "stop":
		u.pool.Stop()
		u.pool.Wait()
	case "quit":
		u.pool.Stop()
		u.pool.Wait()
		return false
	case "d":
		u.send("%s", u.pos.String())
	case "eval":
		u.handleEval()
	case "perft":
		u.handlePerft(args)
	default:
		u.infoString("unknown command %s", cmd)
	}
	return true
}

// Close releases the pool and the tablebase cache.
func (u *UCI) Close() error {
	err := u.pool.Close()
	return errors.Join(err, u.closeTablebase())
}

func (u *UCI) handleUCI() {
	u.send("id name %s", engineName)
	u.send("id author %s", engineAuthor)
	u.send("")
	for _, o := range options {
		u.send("%s", o)
	}
	u.send("uciok")
}

func (u *UCI) handleSetOption(args []string) {
	name, value := parseSetOption(args)
	opt, ok := findOption(name)
	if !ok {
		u.infoString("%v: %s", errUnknownOption, name)
		return
	}

	next := u.opts
	if err := opt.set(u, &next, value); err != nil {
		u.infoString("setoption failed: %v", err)
		return
	}
	if err := u.pool.SetOptions(&next); err != nil {
		u.infoString("setoption failed: %v", err)
		return
	}
	u.opts = next
	log.Debug().Str("name", opt.name).Str("value", value).Msg("option-set")
}

// handlePosition parses
//   - position startpos [moves ...]
//   - position fen <fen> [moves ...]
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := slices.Index(args, "moves")
	head, tail := args, []string(nil)
	if movesAt >= 0 {
		head, tail = args[:movesAt], args[movesAt+1:]
	}

	var base board.Position
	switch head[0] {
	case "startpos":
		base = *board.NewPosition()
	case "fen":
		pos, err := board.ParseFEN(strings.Join(head[1:], " "))
		if err != nil {
			u.infoString("invalid fen: %v", err)
			return
		}
		base = *pos
	default:
		return
	}

	pos := base
	moves := make([]board.Move, 0, len(tail))
	for _, s := range tail {
		m, err := parseLegalMove(s, &pos)
		if err != nil {
			u.infoString("invalid move %s: %v", s, err)
			return
		}
		moves = append(moves, m)
		pos, _ = pos.Apply(m)
	}

	u.base, u.moves, u.pos = base, moves, pos
}

var errIllegal = errors.New("illegal in this position")

func parseLegalMove(s string, pos *board.Position) (board.Move, error) {
	m, err := board.ParseMove(s, pos)
	if err != nil {
		return board.NoMove, err
	}
	if !pos.LegalMoves().Contains(m) {
		return board.NoMove, errIllegal
	}
	return m, nil
}

// goParams holds the parsed "go" arguments.
type goParams struct {
	depth       int
	nodes       uint64
	moveTime    time.Duration
	infinite    bool
	wtime       time.Duration
	btime       time.Duration
	winc        time.Duration
	binc        time.Duration
	movesToGo   int
	searchMoves []string
	clock       bool
}

func parseGo(args []string) goParams {
	var p goParams
	ms := func(s string) time.Duration {
		n, _ := strconv.Atoi(s)
		return time.Duration(n) * time.Millisecond
	}

	for i := 0; i < len(args); i++ {
		hasValue := i+1 < len(args)
		switch args[i] {
		case "infinite":
			p.infinite = true
			continue
		case "searchmoves":
			p.searchMoves = append(p.searchMoves, args[i+1:]...)
			return p
		}
		if !hasValue {
			break
		}
		v := args[i+1]
		switch args[i] {
		case "depth":
			p.depth, _ = strconv.Atoi(v)
		case "nodes":
			p.nodes, _ = strconv.ParseUint(v, 10, 64)
		case "movetime":
			p.moveTime = ms(v)
		case "wtime":
			p.wtime, p.clock = ms(v), true
		case "btime":
			p.btime, p.clock = ms(v), true
		case "winc":
			p.winc = ms(v)
		case "binc":
			p.binc = ms(v)
		case "movestogo":
			p.movesToGo, _ = strconv.Atoi(v)
		default:
			continue
		}
		i++
	}
	return p
}

func (u *UCI) limiter(p goParams) engine.Limiter {
	var parts []engine.Limiter
	if p.nodes > 0 {
		parts = append(parts, engine.NodeLimit(p.nodes))
	}
	if p.moveTime > 0 {
		parts = append(parts, engine.MoveTimeLimit(p.moveTime, u.opts.MoveOverhead))
	}
	if p.clock && !p.infinite {
		remaining, inc := p.wtime, p.winc
		if u.pos.SideToMove == board.Black {
			remaining, inc = p.btime, p.binc
		}
		parts = append(parts, engine.ClockLimit(engine.TimeControl{
			Remaining: remaining,
			Increment: inc,
			MovesToGo: p.movesToGo,
			Overhead:  u.opts.MoveOverhead,
			Ply:       (u.pos.FullMoveNumber-1)*2 + int(u.pos.SideToMove),
		}))
	}
	return engine.CompoundLimit(parts...)
}

func (u *UCI) handleGo(args []string) {
	if u.pool.IsSearching() {
		u.pool.Stop()
		u.pool.Wait()
	}

	p := parseGo(args)
	searchMoves := lo.FilterMap(p.searchMoves, func(s string, _ int) (board.Move, bool) {
		m, err := parseLegalMove(s, &u.pos)
		return m, err == nil
	})

	root := engine.SearchRoot{
		Base:        u.base,
		Moves:       slices.Clone(u.moves),
		SearchMoves: searchMoves,
		MaxDepth:    p.depth,
		Infinite:    p.infinite,
	}
	rep := &reporter{u: u, pos: u.pos, tb: u.prober}

	if err := u.pool.Start(root, u.limiter(p), rep); err != nil {
		u.infoString("search not started: %v", err)
		u.send("bestmove 0000")
	}
}

func (u *UCI) handleEval() {
	net := u.pool.Network()
	if net == nil {
		u.infoString("%v", engine.ErrNoNetwork)
		return
	}
	u.send("NNUE evaluation: %d (side to move)", net.EvaluateScratch(&u.pos))
}

func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			depth = n
		}
	}

	start := time.Now()
	entries := engine.Perft(&u.pos, depth)
	elapsed := time.Since(start)

	var total uint64
	for _, e := range entries {
		u.send("%s: %d", e.Move, e.Nodes)
		total += e.Nodes
	}
	u.send("")
	u.send("Nodes searched: %d", total)
	u.send("Time: %d ms", elapsed.Milliseconds())
}

func (u *UCI) loadNetwork(path string) error {
	if path == "" || path == "<empty>" {
		return nil
	}
	net, err := nnue.LoadFile(path)
	if err != nil {
		return err
	}
	u.pool.SetNetwork(net)
	u.infoString("loaded network %s", path)
	return nil
}

// openTablebase enables online tablebase probing with a persistent cache in
// dir, or in the data directory when dir is "default". An empty value
// disables probing.
func (u *UCI) openTablebase(dir string) error {
	if err := u.closeTablebase(); err != nil {
		return err
	}
	switch dir {
	case "", "<empty>":
		u.pool.SetProber(nil)
		return nil
	case tbCacheDefault:
		var err error
		if dir, err = storage.TBCacheDir(); err != nil {
			return err
		}
	}

	store, err := storage.Open(dir)
	if err != nil {
		return err
	}
	u.store = store
	u.prober = tablebase.NewCachedProber(tablebase.NewHTTPProber(""), store, tbCacheSize)
	u.pool.SetProber(u.prober)
	log.Info().Str("dir", dir).Msg("tb-cache-opened")
	return nil
}

func (u *UCI) closeTablebase() error {
	var errs []error
	if u.prober != nil {
		u.pool.SetProber(nil)
		errs = append(errs, u.prober.Close())
		u.prober = nil
	}
	if u.store != nil {
		errs = append(errs, u.store.Close())
		u.store = nil
	}
	return errors.Join(errs...)
}

// reporter turns search output into protocol lines.
type reporter struct {
	u   *UCI
	pos board.Position
	tb  *tablebase.CachedProber
}

func (r *reporter) Info(info engine.SearchInfo) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "info depth %d seldepth %d multipv %d score %s",
		info.Depth, info.SelDepth, info.MultiPV, engine.FormatScore(info.Score))
	switch {
	case info.LowerBound:
		sb.WriteString(" lowerbound")
	case info.UpperBound:
		sb.WriteString(" upperbound")
	}
	fmt.Fprintf(&sb, " nodes %d nps %d hashfull %d tbhits %d time %d",
		info.Nodes, info.NPS, info.HashFull, info.TBHits, info.Time.Milliseconds())
	if len(info.PV) > 0 {
		sb.WriteString(" pv ")
		sb.WriteString(strings.Join(lo.Map(info.PV, func(m board.Move, _ int) string {
			return m.String()
		}), " "))
	}
	r.u.send("%s", sb.String())
}

func (r *reporter) CurrMove(info engine.CurrMoveInfo) {
	r.u.send("info depth %d currmove %s currmovenumber %d", info.Depth, info.Move, info.Number)
}

func (r *reporter) BestMove(res engine.SearchResult) {
	if r.tb != nil {
		r.u.infoString("tbcache hitrate %.1f%%", r.tb.HitRate())
	}
	if res.BestMove == board.NoMove {
		r.u.send("bestmove 0000")
		return
	}
	if res.PonderMove != board.NoMove {
		r.u.send("bestmove %s ponder %s", res.BestMove, res.PonderMove)
		return
	}
	r.u.send("bestmove %s", res.BestMove)
}
