//go:build nnue_single

package nnue

import (
	"io"

	"github.com/hailam/chessplay/sfnnue/common"
	"lukechampine.com/frand"
)

// Single-layer architecture: pairwise feature transformer straight into one
// int16 output neuron per bucket.
const (
	archID       = archSingleLayer
	activationID = activationClipped

	layerStackBytes = HiddenSize*2 + 4
)

type layerStack struct {
	weights []int16
	bias    int32
}

func newLayerStack() layerStack {
	return layerStack{weights: make([]int16, HiddenSize)}
}

func (ls *layerStack) read(r io.Reader) error {
	if err := common.ReadLittleEndianSlice(r, ls.weights); err != nil {
		return err
	}
	bias, err := common.ReadLittleEndian[int32](r)
	ls.bias = bias
	return err
}

func (ls *layerStack) write(w io.Writer) error {
	if err := common.WriteLittleEndian(w, ls.weights); err != nil {
		return err
	}
	return common.WriteLittleEndian(w, ls.bias)
}

func (ls *layerStack) randomize(rng *frand.RNG) {
	for i := range ls.weights {
		ls.weights[i] = int16(rng.Intn(129) - 64)
	}
	ls.bias = int32(rng.Intn(2049) - 1024)
}

func (ls *layerStack) forward(stm, nstm []int16) int32 {
	var ft [HiddenSize]uint8
	pairwiseActivate(ft[:HiddenSize/2], stm)
	pairwiseActivate(ft[HiddenSize/2:], nstm)

	sum := ls.bias
	for i, v := range ft {
		sum += int32(v) * int32(ls.weights[i])
	}
	return sum
}
