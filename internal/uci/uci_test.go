package uci

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/engine"
	"github.com/hailam/tempest/internal/nnue"
	"github.com/hailam/tempest/internal/storage"
	"github.com/matryer/is"
)

// syncBuffer is written by search goroutines while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) lines() []string {
	return strings.Split(strings.TrimSpace(b.String()), "\n")
}

var testNetwork = sync.OnceValue(func() *nnue.Network {
	return nnue.Synthetic(1)
})

func newTestUCI(t *testing.T, net *nnue.Network) (*UCI, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opts := engine.DefaultOptions()
	opts.HashMiB = 8
	u, err := New(out, net, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := u.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return u, out
}

func run(u *UCI, script string) {
	for _, line := range strings.Split(strings.TrimSpace(script), "\n") {
		fields := strings.Fields(line)
		u.Handle(fields[0], fields[1:])
	}
}

func TestHandshake(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "uci\nisready")
	got := out.String()
	is.True(strings.HasPrefix(got, "id name Tempest\n"))
	is.True(strings.Contains(got, "option name Threads type spin default 1 min 1 max 1024\n"))
	is.True(strings.Contains(got, "option name Clear Hash type button\n"))
	is.True(strings.Contains(got, "option name EvalFile type string default <empty>\n"))
	is.True(strings.Contains(got, "uciok\nreadyok\n"))
}

func TestRunStopsAtQuit(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	err := u.Run(strings.NewReader("isready\n\nquit\nisready\n"))
	is.NoErr(err)
	is.Equal(out.String(), "readyok\n")
}

func TestGoDepth(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position startpos moves e2e4 e7e5\ngo depth 4")
	u.pool.Wait()

	lines := out.lines()
	last := lines[len(lines)-1]
	is.True(strings.HasPrefix(last, "bestmove "))

	fields := strings.Fields(last)
	m, err := parseLegalMove(fields[1], &u.pos)
	is.NoErr(err)
	is.True(m != board.NoMove)

	depths := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "info depth ") && strings.Contains(l, " score ") {
			depths++
			is.True(strings.Contains(l, " pv "))
		}
	}
	is.True(depths >= 4)
}

func TestGoSearchMoves(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position startpos\ngo depth 3 searchmoves h2h3 junk")
	u.pool.Wait()
	lines := out.lines()
	is.True(strings.HasPrefix(lines[len(lines)-1], "bestmove h2h3"))
}

func TestGoInfiniteWaitsForStop(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position startpos\ngo depth 1 infinite")
	time.Sleep(50 * time.Millisecond)
	is.True(!strings.Contains(out.String(), "bestmove"))

	run(u, "stop")
	is.True(strings.Contains(out.String(), "bestmove"))
}

func TestGoMateReportsMateScore(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position fen 6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1\ngo depth 3")
	u.pool.Wait()
	got := out.String()
	is.True(strings.Contains(got, "score mate 1"))
	is.True(strings.Contains(got, "bestmove a1a8"))
}

func TestGoWithoutNetwork(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, nil)

	run(u, "go depth 1")
	got := out.String()
	is.True(strings.Contains(got, "info string search not started"))
	is.True(strings.HasSuffix(got, "bestmove 0000\n"))

	run(u, "eval")
	is.True(strings.Contains(out.String(), engine.ErrNoNetwork.Error()))
}

func TestPosition(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position startpos moves e2e4 c7c5 g1f3")
	is.Equal(u.pos.FEN(), "rnbqkbnr/pp1ppppp/8/2p5/4P3/5N2/PPPP1PPP/RNBQKB1R b KQkq - 1 2")
	is.Equal(len(u.moves), 3)

	fen := "8/2p5/3p4/KP5r/1R3p1k/8/4P1P1/8 w - - 0 1"
	run(u, "position fen "+fen)
	is.Equal(u.pos.FEN(), fen)
	is.Equal(len(u.moves), 0)

	// An illegal move rejects the whole command.
	run(u, "position startpos moves e2e4 e2e4")
	is.Equal(u.pos.FEN(), fen)
	is.True(strings.Contains(out.String(), "info string invalid move e2e4"))

	run(u, "position fen not a fen")
	is.Equal(u.pos.FEN(), fen)

	run(u, "ucinewgame")
	is.Equal(u.pos.FEN(), board.StartFEN)
}

func TestSetOption(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "setoption name MultiPV value 3\nsetoption name threads value 2\nsetoption name Move Overhead value 50")
	is.Equal(u.opts.MultiPV, 3)
	is.Equal(u.opts.Threads, 2)
	is.Equal(u.pool.Threads(), 2)
	is.Equal(u.opts.MoveOverhead, 50*time.Millisecond)

	run(u, "setoption name Hash value 0")
	is.Equal(u.opts.HashMiB, 8)
	is.True(strings.Contains(out.String(), "info string setoption failed: Hash: 0 outside"))

	run(u, "setoption name Hash value lots")
	is.Equal(u.opts.HashMiB, 8)

	run(u, "setoption name Contempt value 10")
	is.True(strings.Contains(out.String(), "info string unknown option: Contempt"))

	run(u, "setoption name EvalFile value /does/not/exist.nnue")
	is.Equal(u.opts.EvalFile, "")
	is.True(u.pool.Network() == testNetwork())

	run(u, "setoption name Clear Hash\nisready")
	is.True(strings.HasSuffix(out.String(), "readyok\n"))
}

func TestDisplay(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())

	run(u, "position startpos moves e2e4\nd")
	got := out.String()
	is.Equal(strings.Count(got, "Fen: "), 1)
	is.Equal(strings.Count(got, "Key: "), 1)
	is.True(strings.Contains(got, "Fen: "+u.pos.FEN()+"\n"))
}

func TestTBCacheOption(t *testing.T) {
	is := is.New(t)
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	u, out := newTestUCI(t, testNetwork())

	run(u, "setoption name TBCache value default")
	is.True(u.store != nil)
	is.True(u.prober != nil)
	is.Equal(u.opts.TBCache, "default")

	dir, err := storage.TBCacheDir()
	is.NoErr(err)
	entries, err := os.ReadDir(dir)
	is.NoErr(err)
	is.True(len(entries) > 0) // badger files

	run(u, "position startpos\ngo depth 2")
	u.pool.Wait()
	lines := out.lines()
	is.Equal(lines[len(lines)-2], "info string tbcache hitrate 0.0%")
	is.True(strings.HasPrefix(lines[len(lines)-1], "bestmove "))

	run(u, "setoption name TBCache value <empty>")
	is.True(u.store == nil)
	is.True(u.prober == nil)
}

func TestPerft(t *testing.T) {
	is := is.New(t)
	u, out := newTestUCI(t, testNetwork())
	run(u, "perft 3")
	is.True(strings.Contains(out.String(), "Nodes searched: 8902\n"))
	is.True(strings.Contains(out.String(), "e2e4: 600\n"))
}

func TestParseGo(t *testing.T) {
	tests := []struct {
		args string
		want goParams
	}{
		{"depth 7", goParams{depth: 7}},
		{"nodes 100000", goParams{nodes: 100000}},
		{"movetime 250", goParams{moveTime: 250 * time.Millisecond}},
		{"infinite", goParams{infinite: true}},
		{
			"wtime 60000 btime 59000 winc 1000 binc 900 movestogo 20",
			goParams{wtime: time.Minute, btime: 59 * time.Second, winc: time.Second, binc: 900 * time.Millisecond, movesToGo: 20, clock: true},
		},
		{"depth", goParams{}},
		{"ponder depth 3", goParams{depth: 3}},
		{"depth 2 searchmoves e2e4 d2d4", goParams{depth: 2, searchMoves: []string{"e2e4", "d2d4"}}},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			is := is.New(t)
			got := parseGo(strings.Fields(tt.args))
			is.Equal(got, tt.want)
		})
	}
}

func TestParseSetOption(t *testing.T) {
	is := is.New(t)
	name, value := parseSetOption(strings.Fields("name Move Overhead value 30"))
	is.Equal(name, "Move Overhead")
	is.Equal(value, "30")

	name, value = parseSetOption(strings.Fields("name EvalFile value /tmp/my net.nnue"))
	is.Equal(name, "EvalFile")
	is.Equal(value, "/tmp/my net.nnue")

	name, value = parseSetOption(strings.Fields("name Clear Hash"))
	is.Equal(name, "Clear Hash")
	is.Equal(value, "")
}
