package tablebase

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/hailam/tempest/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	keyPrefix    = "tb/"
	fetchBacklog = 256

	// Stored results expire so a long-lived cache directory stays bounded.
	storeTTL = 30 * 24 * time.Hour
)

// CachedProber answers Probe from memory and a persistent store only, so
// the search never waits on the inner prober. A miss queues the position and
// a background goroutine fills the cache from the inner prober; the next
// probe of the same position finds it.
type CachedProber struct {
	inner Prober
	store *storage.Storage

	mu      sync.RWMutex
	mem     map[uint64]ProbeResult
	pending map[uint64]struct{}
	maxSize int

	queue chan board.Position
	group errgroup.Group
	once  sync.Once

	hits   atomic.Uint64
	misses atomic.Uint64
}

type cachedResult struct {
	Found bool `json:"found"`
	WDL   WDL  `json:"wdl"`
	DTZ   int  `json:"dtz"`
}

// NewCachedProber starts the background fill loop. store may be nil for a
// memory-only cache.
func NewCachedProber(inner Prober, store *storage.Storage, maxSize int) *CachedProber {
	cp := &CachedProber{
		inner:   inner,
		store:   store,
		mem:     make(map[uint64]ProbeResult, maxSize),
		pending: make(map[uint64]struct{}),
		maxSize: maxSize,
		queue:   make(chan board.Position, fetchBacklog),
	}
	cp.group.Go(cp.fill)
	return cp
}

func cacheKey(hash uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte(keyPrefix), hash)
}

func (cp *CachedProber) Probe(pos *board.Position) ProbeResult {
	if pos.PieceCount() > cp.inner.MaxPieces() {
		return ProbeResult{}
	}

	cp.mu.RLock()
	res, ok := cp.mem[pos.Hash]
	cp.mu.RUnlock()
	if ok {
		cp.hits.Add(1)
		return res
	}

	if cp.store != nil {
		var cr cachedResult
		err := cp.store.GetJSON(cacheKey(pos.Hash), &cr)
		if err == nil {
			res = ProbeResult(cr)
			cp.remember(pos.Hash, res)
			cp.hits.Add(1)
			return res
		}
		if !errors.Is(err, storage.ErrNotFound) {
			log.Debug().Err(err).Msg("tb-cache-read-failed")
		}
	}

	cp.misses.Add(1)
	cp.request(pos)
	return ProbeResult{}
}

// request queues pos for the fill loop unless it is already queued or the
// queue is full.
func (cp *CachedProber) request(pos *board.Position) {
	cp.mu.Lock()
	if _, ok := cp.pending[pos.Hash]; ok {
		cp.mu.Unlock()
		return
	}
	cp.pending[pos.Hash] = struct{}{}
	cp.mu.Unlock()

	select {
	case cp.queue <- *pos:
	default:
		cp.mu.Lock()
		delete(cp.pending, pos.Hash)
		cp.mu.Unlock()
	}
}

func (cp *CachedProber) fill() error {
	for pos := range cp.queue {
		res := cp.inner.Probe(&pos)
		cp.mu.Lock()
		delete(cp.pending, pos.Hash)
		cp.mu.Unlock()
		if !res.Found {
			continue
		}
		cp.remember(pos.Hash, res)
		if cp.store != nil {
			if err := cp.store.PutJSON(cacheKey(pos.Hash), cachedResult(res), storeTTL); err != nil {
				log.Warn().Err(err).Msg("tb-cache-write-failed")
			}
		}
	}
	return nil
}

func (cp *CachedProber) remember(hash uint64, res ProbeResult) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if len(cp.mem) >= cp.maxSize {
		// Drop about half; which half does not matter.
		n := 0
		for k := range cp.mem {
			if n >= cp.maxSize/2 {
				break
			}
			delete(cp.mem, k)
			n++
		}
	}
	cp.mem[hash] = res
}

// ProbeRoot is not cached; it is called once per search.
func (cp *CachedProber) ProbeRoot(pos *board.Position) RootResult {
	return cp.inner.ProbeRoot(pos)
}

func (cp *CachedProber) MaxPieces() int { return cp.inner.MaxPieces() }

func (cp *CachedProber) Available() bool { return cp.inner.Available() }

// HitRate returns the cache hit rate as a percentage.
func (cp *CachedProber) HitRate() float64 {
	hits, misses := cp.hits.Load(), cp.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

// Close stops the fill loop. Probe must not be called afterwards; the
// store is owned by the caller.
func (cp *CachedProber) Close() error {
	cp.once.Do(func() { close(cp.queue) })
	return cp.group.Wait()
}
