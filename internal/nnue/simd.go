package nnue

import "github.com/hailam/chessplay/sfnnue"

// Accumulator vector kernels. Single row updates use the sfnnue kernels,
// which carry NEON and amd64 SIMD variants; the fused variants walk the
// accumulator once for several weight rows.

func vecCopy(dst, src []int16) {
	sfnnue.SIMDCopyInt16(dst[:HiddenSize], src[:HiddenSize])
}

func vecAdd(acc, w []int16, add int) {
	sfnnue.SIMDAddInt16Offset(acc[:HiddenSize], w, add, HiddenSize)
}

func vecSub(acc, w []int16, sub int) {
	sfnnue.SIMDSubInt16Offset(acc[:HiddenSize], w, sub, HiddenSize)
}

func vecAddSub(dst, src, w []int16, add, sub int) {
	a := w[add : add+HiddenSize]
	s := w[sub : sub+HiddenSize]
	src = src[:HiddenSize]
	dst = dst[:HiddenSize]
	for i := range dst {
		dst[i] = src[i] + a[i] - s[i]
	}
}

func vecAddSubSub(dst, src, w []int16, add, sub1, sub2 int) {
	a := w[add : add+HiddenSize]
	s1 := w[sub1 : sub1+HiddenSize]
	s2 := w[sub2 : sub2+HiddenSize]
	src = src[:HiddenSize]
	dst = dst[:HiddenSize]
	for i := range dst {
		dst[i] = src[i] + a[i] - s1[i] - s2[i]
	}
}

func vecAddAddSubSub(dst, src, w []int16, add1, add2, sub1, sub2 int) {
	a1 := w[add1 : add1+HiddenSize]
	a2 := w[add2 : add2+HiddenSize]
	s1 := w[sub1 : sub1+HiddenSize]
	s2 := w[sub2 : sub2+HiddenSize]
	src = src[:HiddenSize]
	dst = dst[:HiddenSize]
	for i := range dst {
		dst[i] = src[i] + a1[i] + a2[i] - s1[i] - s2[i]
	}
}

func vecAdd4(acc, w []int16, o [4]int) {
	w0 := w[o[0] : o[0]+HiddenSize]
	w1 := w[o[1] : o[1]+HiddenSize]
	w2 := w[o[2] : o[2]+HiddenSize]
	w3 := w[o[3] : o[3]+HiddenSize]
	acc = acc[:HiddenSize]
	for i := range acc {
		acc[i] += w0[i] + w1[i] + w2[i] + w3[i]
	}
}

func vecSub4(acc, w []int16, o [4]int) {
	w0 := w[o[0] : o[0]+HiddenSize]
	w1 := w[o[1] : o[1]+HiddenSize]
	w2 := w[o[2] : o[2]+HiddenSize]
	w3 := w[o[3] : o[3]+HiddenSize]
	acc = acc[:HiddenSize]
	for i := range acc {
		acc[i] -= w0[i] + w1[i] + w2[i] + w3[i]
	}
}

// pairwiseActivate multiplies the clipped first half of acc with the clipped
// second half: out[i] = clamp(a[i]) * clamp(a[i+H/2]) >> 9, in 0..127.
func pairwiseActivate(out []uint8, acc []int16) {
	const half = HiddenSize / 2
	lo := acc[:half]
	hi := acc[half:HiddenSize]
	out = out[:half]
	for i := range out {
		a := int32(clamp(lo[i], 0, ftQuant))
		b := int32(clamp(hi[i], 0, ftQuant))
		out[i] = uint8((a * b) >> 9)
	}
}
