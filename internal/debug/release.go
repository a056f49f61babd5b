//go:build !tempestdebug

// Package debug holds invariant checks that only exist in builds tagged
// tempestdebug. In release builds every check compiles to nothing.
package debug

// Enabled reports whether invariant checks are compiled in.
const Enabled = false

// Assert is a no-op in release builds.
func Assert(bool, string) {}
