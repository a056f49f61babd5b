//go:build tempestdebug

package debug

import "github.com/rs/zerolog/log"

// Enabled reports whether invariant checks are compiled in.
const Enabled = true

// Assert panics with msg when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		log.Error().Str("invariant", msg).Msg("assertion-failed")
		panic("tempest: assertion failed: " + msg)
	}
}
