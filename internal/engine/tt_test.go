package engine

import (
	"errors"
	"testing"

	"github.com/hailam/tempest/internal/board"
	"github.com/matryer/is"
	"lukechampine.com/frand"
)

func newTestTT(t *testing.T, mib int) *TT {
	t.Helper()
	tt, err := NewTT(mib)
	if err != nil {
		t.Fatalf("NewTT(%d): %v", mib, err)
	}
	return tt
}

func TestTTRoundTrip(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	key := uint64(0x9e3779b97f4a7c15)
	m := board.NewMove(board.E2, board.E4)
	tt.Put(key, 37, -12, m, 9, 0, BoundExact, true)

	e, ok := tt.Probe(key, 0)
	is.True(ok)
	is.Equal(e.Score, 37)
	is.Equal(e.StaticEval, -12)
	is.Equal(e.Move, m)
	is.Equal(e.Depth, 9)
	is.Equal(e.Bound, BoundExact)
	is.True(e.WasPV)

	_, ok = tt.Probe(key^0xffff, 0)
	is.True(!ok) // different fragment in the same cluster
}

func TestTTMateScoresAreRebased(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	key := uint64(0x1234_5678_9abc_def1)
	// Mate in 7 plies from the root, found at ply 3: mate in 4 from the node.
	tt.Put(key, MateIn(7), ScoreNone, board.NoMove, 5, 3, BoundLower, false)

	e, ok := tt.Probe(key, 5)
	is.True(ok)
	is.Equal(e.Score, MateIn(9))

	tt.Put(key, MatedIn(6), ScoreNone, board.NoMove, 6, 2, BoundUpper, false)
	e, ok = tt.Probe(key, 0)
	is.True(ok)
	is.Equal(e.Score, MatedIn(4))
}

func TestTTKeepsMoveWithoutNewOne(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	key := uint64(0xdead_beef_0000_0042)
	m := board.NewMove(board.G1, board.F3)
	tt.Put(key, 10, 0, m, 4, 0, BoundLower, false)
	tt.Put(key, 20, 0, board.NoMove, 6, 0, BoundUpper, false)

	e, ok := tt.Probe(key, 0)
	is.True(ok)
	is.Equal(e.Move, m)
	is.Equal(e.Score, 20)
	is.Equal(e.Bound, BoundUpper)
}

func TestTTShallowWriteDoesNotReplaceDeep(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	key := uint64(0x0bad_cafe_1111_2222)
	tt.Put(key, 50, 0, board.NoMove, 20, 0, BoundLower, false)
	tt.Put(key, -50, 0, board.NoMove, 2, 0, BoundUpper, false)

	e, ok := tt.Probe(key, 0)
	is.True(ok)
	is.Equal(e.Depth, 20)
	is.Equal(e.Score, 50)

	// Exact bounds always overwrite.
	tt.Put(key, 5, 0, board.NoMove, 1, 0, BoundExact, false)
	e, _ = tt.Probe(key, 0)
	is.Equal(e.Bound, BoundExact)
	is.Equal(e.Score, 5)
}

func TestTTReplacesShallowestInCluster(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	// Keys that differ only in the low bits share a cluster.
	base := uint64(0xabcd_ef01_2345_0000)
	keys := make([]uint64, clusterEntries+1)
	for i := range keys {
		keys[i] = base | uint64(i+1)
	}
	for i := range clusterEntries {
		tt.Put(keys[i], i, 0, board.NoMove, 10*(i+1), 0, BoundLower, false)
	}
	tt.Put(keys[clusterEntries], 99, 0, board.NoMove, 50, 0, BoundLower, false)

	_, ok := tt.Probe(keys[0], 0)
	is.True(!ok) // depth 10 was the victim
	for _, k := range keys[1:] {
		_, ok := tt.Probe(k, 0)
		is.True(ok)
	}
}

func TestTTOldEntriesAreReplacedFirst(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	base := uint64(0x7777_0000_1111_0000)
	tt.Put(base|1, 0, 0, board.NoMove, 12, 0, BoundLower, false)
	tt.Age()
	tt.Age()
	tt.Age()
	for i := 2; i <= clusterEntries; i++ {
		tt.Put(base|uint64(i), 0, 0, board.NoMove, 8, 0, BoundLower, false)
	}
	tt.Put(base|0xff, 0, 0, board.NoMove, 8, 0, BoundLower, false)

	_, ok := tt.Probe(base|1, 0)
	is.True(!ok) // 12 - 4*3 < 8
}

func TestTTClearIsLazy(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	key := uint64(0x5555_aaaa_5555_aaab)
	tt.Put(key, 1, 0, board.NoMove, 3, 0, BoundExact, false)

	tt.Clear()
	_, ok := tt.Probe(key, 0)
	is.True(ok) // still there until Finalize

	is.True(tt.Finalize())
	is.True(!tt.Finalize())
	_, ok = tt.Probe(key, 0)
	is.True(!ok)
}

func TestTTFull(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)
	is.Equal(tt.Full(), 0)

	rng := frand.NewCustom(make([]byte, 32), 1024, 12)
	for range 200000 {
		tt.Put(rng.Uint64n(1<<63)|1, 0, 0, board.NoMove, 1, 0, BoundExact, false)
	}
	full := tt.Full()
	is.True(full > 500)
	is.True(full <= 1000)

	tt.Age()
	is.Equal(tt.Full(), 0) // entries from older searches do not count
}

func TestTTResize(t *testing.T) {
	is := is.New(t)
	tt := newTestTT(t, 1)

	is.NoErr(tt.Resize(2))
	is.Equal(tt.SizeMiB(), 2)

	err := tt.Resize(MaxHashMiB + 1)
	is.True(errors.Is(err, ErrTTAlloc))
	is.Equal(tt.SizeMiB(), 2) // failed resize keeps the table

	_, err = NewTT(0)
	is.True(err != nil)
}

func TestScoreFormatting(t *testing.T) {
	is := is.New(t)
	is.Equal(FormatScore(35), "cp 35")
	is.Equal(FormatScore(-120), "cp -120")
	is.Equal(FormatScore(MateIn(1)), "mate 1")
	is.Equal(FormatScore(MateIn(3)), "mate 2")
	is.Equal(FormatScore(MatedIn(0)), "mate 0")
	is.Equal(FormatScore(MatedIn(2)), "mate -1")
	is.True(IsMateScore(MateIn(MaxDepth)))
	is.True(!IsMateScore(ScoreTBWin))
	is.True(IsDecisive(ScoreTBWin - 10))
}
