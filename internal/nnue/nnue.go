// Package nnue implements NNUE (Efficiently Updatable Neural Network)
// evaluation: the network file format, the king-bucketed feature set, the
// incrementally updated accumulator stack and the inference layers.
package nnue

import "errors"

// Feature transformer dimensions. Inputs are king-bucketed with horizontal
// mirroring and both kings merged into a single plane.
const (
	HiddenSize    = 256
	InputBuckets  = 8
	OutputBuckets = 8

	planes         = 11 // 5 piece types per relative colour plus one king plane
	kingPlane      = 10
	featuresPerKB  = planes * 64
	InputSize      = InputBuckets * featuresPerKB
	refreshEntries = InputBuckets * 2
)

// Quantisation. The feature transformer works on a 0..255 scale, the dense
// layers on 0..127 inputs with weights scaled by 64.
const (
	ftQuant     = 255
	weightScale = 64
	evalScale   = 400
)

// StackSize bounds the search depth the accumulator stack can follow.
const StackSize = 256 + 8

var (
	ErrBadMagic     = errors.New("nnue: bad magic")
	ErrBadVersion   = errors.New("nnue: unsupported version")
	ErrArchMismatch = errors.New("nnue: network architecture does not match this build")
	ErrSize         = errors.New("nnue: payload size mismatch")
	ErrMisaligned   = errors.New("nnue: payload is not aligned for a zero-copy view")
)
