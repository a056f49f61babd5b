package engine

import (
	"testing"

	"github.com/matryer/is"
	"lukechampine.com/frand"
)

func TestHistoryEntryStaysBounded(t *testing.T) {
	is := is.New(t)

	var h historyEntry
	for range 1000 {
		h.update(historyLimit * 4)
	}
	is.True(h.value() <= historyLimit)
	is.True(h.value() > historyLimit*9/10) // saturates close to the bound

	for range 1000 {
		h.update(-historyLimit * 4)
	}
	is.True(h.value() >= -historyLimit)

	rng := frand.NewCustom(make([]byte, 32), 1024, 12)
	for range 100000 {
		h.update(int(rng.Uint64n(2*historyBonusMax+1)) - historyBonusMax)
		if v := h.value(); v > historyLimit || v < -historyLimit {
			t.Fatalf("history escaped its bound: %d", v)
		}
	}
}

func TestHistoryBonusShape(t *testing.T) {
	is := is.New(t)
	for d := 1; d < MaxDepth; d++ {
		is.True(historyBonus(d) <= historyBonusMax)
		is.True(historyMalus(d) >= -historyMalusMax)
		is.True(historyBonus(d+1) >= historyBonus(d))
	}
}

func TestCorrectionEntryStaysBounded(t *testing.T) {
	rng := frand.NewCustom(make([]byte, 32), 1024, 12)
	var c correctionEntry
	for range 100000 {
		c.update(int(rng.Uint64n(4001)) - 2000)
		if c > correctionLimit || c < -correctionLimit {
			t.Fatalf("correction escaped its bound: %d", c)
		}
	}
}

func TestCorrectionMovesEvalTowardsScore(t *testing.T) {
	is := is.New(t)
	w := newTestWorker(t, "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3")
	pos := &w.ss(0).pos

	is.Equal(w.correct(pos, 0, 40), 40) // nothing learned yet

	for range 50 {
		w.updateCorrection(pos, 0, 12, 240, 40)
	}
	corrected := w.correct(pos, 0, 40)
	is.True(corrected > 40)
	is.True(corrected < ScoreWin)

	// Decisive inputs never leave the normal range.
	is.True(w.correct(pos, 0, ScoreWin+500) < ScoreWin)

	w.corr.Clear()
	is.Equal(w.correct(pos, 0, 40), 40)
}
