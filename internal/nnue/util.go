package nnue

import "golang.org/x/exp/constraints"

func clamp[T constraints.Integer](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
