// Command tempest is a UCI chess engine.
package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/hailam/tempest/internal/engine"
	"github.com/hailam/tempest/internal/nnue"
	"github.com/hailam/tempest/internal/storage"
	"github.com/hailam/tempest/internal/uci"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultNetName = "tempest.nnue"

var (
	cpuprofile = flag.Bool("cpuprofile", false, "write a cpu profile to -profiledir")
	memprofile = flag.Bool("memprofile", false, "write a heap profile to -profiledir")
	profileDir = flag.String("profiledir", ".", "directory for profiles")
	debug      = flag.Bool("debug", false, "enable debug logging on stderr")
	evalFile   = flag.String("eval", "", "network file to load at startup")
	synthetic  = flag.Uint64("synthetic", 0, "use a synthetic network with this seed when no network file is found")
	tbCache    = flag.String("tbcache", "", `online tablebase cache directory, "default" for the data directory`)
)

func main() {
	flag.Parse()

	// stdout belongs to the protocol.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	switch {
	case *cpuprofile:
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.Quiet).Stop()
	case *memprofile:
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*profileDir), profile.Quiet).Stop()
	}

	net, path, err := autoLoadNetwork(*evalFile)
	switch {
	case err == nil:
		log.Info().Str("path", path).Str("name", net.Header.Name).Msg("network-loaded")
	case *synthetic != 0:
		net = nnue.Synthetic(*synthetic)
		log.Warn().Uint64("seed", *synthetic).Msg("synthetic-network")
	default:
		log.Warn().Err(err).Msg("no-network")
	}

	opts := engine.DefaultOptions()
	opts.EvalFile = path
	protocol, err := uci.New(os.Stdout, net, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("startup-failed")
	}

	if *tbCache != "" {
		protocol.Handle("setoption", []string{"name", "TBCache", "value", *tbCache})
	}

	runErr := protocol.Run(os.Stdin)
	if err := errors.Join(runErr, protocol.Close()); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// autoLoadNetwork tries the explicit path, then $TEMPEST_EVALFILE, then the
// default file name next to the executable, in the working directory and in
// the data directory.
func autoLoadNetwork(explicit string) (*nnue.Network, string, error) {
	if explicit != "" {
		net, err := nnue.LoadFile(explicit)
		return net, explicit, err
	}

	var candidates []string
	if env := os.Getenv("TEMPEST_EVALFILE"); env != "" {
		candidates = append(candidates, env)
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), defaultNetName))
	}
	candidates = append(candidates, defaultNetName)
	if dir, err := storage.NetworkDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, defaultNetName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		net, err := nnue.LoadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("network-load-failed")
			continue
		}
		return net, path, nil
	}
	return nil, "", os.ErrNotExist
}
