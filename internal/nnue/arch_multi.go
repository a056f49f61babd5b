//go:build !nnue_single

package nnue

import (
	"encoding/binary"
	"io"

	"github.com/hailam/chessplay/sfnnue/common"
	"github.com/hailam/chessplay/sfnnue/layers"
	"lukechampine.com/frand"
)

// Multi-layer architecture: pairwise feature transformer, sparse L1, dual
// activation, dense L2 and a single output.
const (
	archID       = archMultiLayer
	activationID = activationDual

	l1In    = HiddenSize // both perspectives after pairwise halving
	l1Size  = 16
	l2In    = 2 * l1Size
	l2Size  = 32
	l1Chunk = 4

	l2Padded = (l2In + common.MaxSimdWidth - 1) / common.MaxSimdWidth * common.MaxSimdWidth
	l3Padded = (l2Size + common.MaxSimdWidth - 1) / common.MaxSimdWidth * common.MaxSimdWidth

	layerStackBytes = l1In*l1Size + l1Size*4 +
		l2Size*l2Padded + l2Size*4 +
		l3Padded + 4
)

type layerStack struct {
	// l1Weights is chunk-major: weight (input chunk c, output k, byte b) is at
	// (c*l1Size+k)*4+b, the layout SIMDSparseChunkMulAcc consumes.
	l1Weights []int8
	l1Biases  []int32

	l2 *layers.AffineTransform
	l3 *layers.AffineTransform

	sqr   *layers.SqrClippedReLU
	relu1 *layers.ClippedReLU
	relu2 *layers.ClippedReLU
}

func newLayerStack() layerStack {
	return layerStack{
		l1Weights: make([]int8, l1In*l1Size),
		l1Biases:  make([]int32, l1Size),
		l2:        layers.NewAffineTransform(l2In, l2Size),
		l3:        layers.NewAffineTransform(l2Size, 1),
		sqr:       layers.NewSqrClippedReLU(l1Size),
		relu1:     layers.NewClippedReLU(l1Size),
		relu2:     layers.NewClippedReLU(l2Size),
	}
}

// Dense weights are stored row-major with padded rows, exactly the layout
// AffineTransform.Propagate reads, so they are filled directly rather than
// through the scrambling ReadParameters.
func (ls *layerStack) read(r io.Reader) error {
	for _, err := range []error{
		common.ReadLittleEndianSlice(r, ls.l1Weights),
		common.ReadLittleEndianSlice(r, ls.l1Biases),
		common.ReadLittleEndianSlice(r, ls.l2.Weights),
		common.ReadLittleEndianSlice(r, ls.l2.Biases),
		common.ReadLittleEndianSlice(r, ls.l3.Weights),
		common.ReadLittleEndianSlice(r, ls.l3.Biases),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (ls *layerStack) write(w io.Writer) error {
	for _, v := range []any{ls.l1Weights, ls.l1Biases, ls.l2.Weights, ls.l2.Biases, ls.l3.Weights, ls.l3.Biases} {
		if err := common.WriteLittleEndian(w, v); err != nil {
			return err
		}
	}
	return nil
}

func (ls *layerStack) randomize(rng *frand.RNG) {
	for i := range ls.l1Weights {
		ls.l1Weights[i] = int8(rng.Intn(65) - 32)
	}
	for i := range ls.l1Biases {
		ls.l1Biases[i] = int32(rng.Intn(2049) - 1024)
	}
	for _, l := range []*layers.AffineTransform{ls.l2, ls.l3} {
		for row := 0; row < l.OutputDimensions; row++ {
			for col := 0; col < l.InputDimensions; col++ {
				l.Weights[row*l.PaddedInputDimensions+col] = int8(rng.Intn(65) - 32)
			}
		}
		for i := range l.Biases {
			l.Biases[i] = int32(rng.Intn(2049) - 1024)
		}
	}
}

// forward runs the layer stack on the two perspective accumulators, side to
// move first, and returns the raw output on the 127*64 scale.
func (ls *layerStack) forward(stm, nstm []int16) int32 {
	var ft [l1In]uint8
	pairwiseActivate(ft[:HiddenSize/2], stm)
	pairwiseActivate(ft[HiddenSize/2:], nstm)

	var nnz [l1In / l1Chunk]uint16
	count := 0
	for c := 0; c < l1In/l1Chunk; c++ {
		if binary.LittleEndian.Uint32(ft[c*l1Chunk:]) != 0 {
			nnz[count] = uint16(c)
			count++
		}
	}

	var l1Out [l1Size]int32
	copy(l1Out[:], ls.l1Biases)
	for _, c := range nnz[:count] {
		chunk := binary.LittleEndian.Uint32(ft[int(c)*l1Chunk:])
		off := int(c) * l1Size * l1Chunk
		layers.SIMDSparseChunkMulAcc(l1Out[:], ls.l1Weights[off:off+l1Size*l1Chunk], l1Size, chunk)
	}

	var act [l2In]uint8
	ls.sqr.Propagate(l1Out[:], act[:l1Size])
	ls.relu1.Propagate(l1Out[:], act[l1Size:])

	var l2Out [l2Size]int32
	ls.l2.Propagate(act[:], l2Out[:])
	var l2Act [l2Size]uint8
	ls.relu2.Propagate(l2Out[:], l2Act[:])

	var out [1]int32
	ls.l3.Propagate(l2Act[:], out[:])
	return out[0]
}
