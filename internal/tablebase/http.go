package tablebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hailam/tempest/internal/board"
	"github.com/rs/zerolog/log"
)

// DefaultEndpoint is the public Lichess tablebase API.
const DefaultEndpoint = "https://tablebase.lichess.ovh/standard"

// ErrUnavailable is returned when the remote service did not answer usefully.
var ErrUnavailable = errors.New("tablebase: service unavailable")

// HTTPProber asks a Lichess-compatible tablebase server. Every probe is a
// network round trip, so it is meant to sit behind a CachedProber.
type HTTPProber struct {
	endpoint  string
	client    *http.Client
	maxPieces int
}

// NewHTTPProber creates a prober for endpoint; an empty endpoint selects
// DefaultEndpoint.
func NewHTTPProber(endpoint string) *HTTPProber {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &HTTPProber{
		endpoint:  endpoint,
		client:    &http.Client{Timeout: 5 * time.Second},
		maxPieces: 7,
	}
}

type httpResponse struct {
	Category string `json:"category"`
	DTZ      int    `json:"dtz"`
	Moves    []struct {
		UCI      string `json:"uci"`
		Category string `json:"category"`
		DTZ      int    `json:"dtz"`
	} `json:"moves"`
}

// fetch performs one lookup.
func (hp *HTTPProber) fetch(ctx context.Context, fen string) (*httpResponse, error) {
	u := hp.endpoint + "?fen=" + url.QueryEscape(strings.ReplaceAll(fen, " ", "_"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var r httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("tablebase: decode: %w", err)
	}
	return &r, nil
}

// Probe blocks on the network.
func (hp *HTTPProber) Probe(pos *board.Position) ProbeResult {
	if pos.PieceCount() > hp.maxPieces {
		return ProbeResult{}
	}
	r, err := hp.fetch(context.Background(), pos.FEN())
	if err != nil {
		log.Debug().Err(err).Msg("tb-probe-failed")
		return ProbeResult{}
	}
	return ProbeResult{Found: true, WDL: categoryToWDL(r.Category), DTZ: r.DTZ}
}

func (hp *HTTPProber) ProbeRoot(pos *board.Position) RootResult {
	if pos.PieceCount() > hp.maxPieces {
		return RootResult{}
	}
	r, err := hp.fetch(context.Background(), pos.FEN())
	if err != nil || len(r.Moves) == 0 {
		return RootResult{}
	}

	// Moves come best first.
	best := r.Moves[0]
	m, err := board.ParseMove(best.UCI, pos)
	if err != nil {
		return RootResult{}
	}
	return RootResult{
		Found: true,
		Move:  m,
		WDL:   -categoryToWDL(best.Category),
		DTZ:   best.DTZ,
	}
}

func (hp *HTTPProber) MaxPieces() int { return hp.maxPieces }

func (hp *HTTPProber) Available() bool { return true }

func categoryToWDL(category string) WDL {
	switch category {
	case "win":
		return WDLWin
	case "cursed-win", "maybe-win":
		return WDLCursedWin
	case "blessed-loss", "maybe-loss":
		return WDLBlessedLoss
	case "loss":
		return WDLLoss
	}
	return WDLDraw
}
