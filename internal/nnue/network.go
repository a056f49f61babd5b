package nnue

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/hailam/chessplay/sfnnue/common"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/frand"
)

const (
	ftWeightCount = InputSize * HiddenSize
	ftBytes       = (ftWeightCount + HiddenSize) * 2
	payloadSize   = ftBytes + OutputBuckets*layerStackBytes
	cacheLine     = 64
)

// Network holds the weights of one evaluation network. It is immutable after
// loading and shared by every search thread.
type Network struct {
	Header    Header
	FTWeights []int16 // InputSize rows of HiddenSize
	FTBiases  []int16
	stacks    [OutputBuckets]layerStack
}

// LoadFile reads a network file from disk.
func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file: %w", err)
	}
	defer f.Close()

	net, err := Load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return net, nil
}

// Load reads a network in the tempest file format.
func Load(r io.Reader) (*Network, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("nnue: read: %w", err)
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	payload := raw[headerSize:]
	if h.Flags&FlagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("nnue: zstd: %w", err)
		}
		payload, err = dec.DecodeAll(payload, make([]byte, 0, payloadSize))
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("nnue: decompress: %w", err)
		}
	}
	if len(payload) != payloadSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSize, len(payload), payloadSize)
	}

	net := &Network{Header: h}
	r2 := bytes.NewReader(payload)

	if view, err := viewInt16(payload[:ftWeightCount*2]); err == nil {
		net.FTWeights = view
		r2.Seek(int64(ftWeightCount*2), io.SeekStart)
	} else {
		net.FTWeights = make([]int16, ftWeightCount)
		if err := common.ReadLittleEndianSlice(r2, net.FTWeights); err != nil {
			return nil, fmt.Errorf("nnue: feature weights: %w", err)
		}
	}
	net.FTBiases = make([]int16, HiddenSize)
	if err := common.ReadLittleEndianSlice(r2, net.FTBiases); err != nil {
		return nil, fmt.Errorf("nnue: feature biases: %w", err)
	}
	for i := range net.stacks {
		net.stacks[i] = newLayerStack()
		if err := net.stacks[i].read(r2); err != nil {
			return nil, fmt.Errorf("nnue: layer stack %d: %w", i, err)
		}
	}
	return net, nil
}

var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// viewInt16 reinterprets b as int16 values without copying. It requires a
// little-endian host and a cache-line aligned buffer.
func viewInt16(b []byte) ([]int16, error) {
	if len(b) == 0 || len(b)%2 != 0 || !hostLittleEndian {
		return nil, ErrMisaligned
	}
	if uintptr(unsafe.Pointer(&b[0]))%cacheLine != 0 {
		return nil, ErrMisaligned
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b[0])), len(b)/2), nil
}

// WriteTo writes the network, compressing the payload when the header
// carries FlagZstd.
func (n *Network) WriteTo(w io.Writer) (int64, error) {
	hdr, err := n.Header.MarshalBinary()
	if err != nil {
		return 0, err
	}

	var payload bytes.Buffer
	payload.Grow(payloadSize)
	if err := common.WriteLittleEndian(&payload, n.FTWeights); err != nil {
		return 0, err
	}
	if err := common.WriteLittleEndian(&payload, n.FTBiases); err != nil {
		return 0, err
	}
	for i := range n.stacks {
		if err := n.stacks[i].write(&payload); err != nil {
			return 0, err
		}
	}

	body := payload.Bytes()
	if n.Header.Flags&FlagZstd != 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return 0, fmt.Errorf("nnue: zstd: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		enc.Close()
	}

	written, err := w.Write(hdr)
	if err != nil {
		return int64(written), err
	}
	m, err := w.Write(body)
	return int64(written + m), err
}

// Save writes the network to path.
func (n *Network) Save(path string, compress bool) error {
	if compress {
		n.Header.Flags |= FlagZstd
	} else {
		n.Header.Flags &^= FlagZstd
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create network file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if _, err := n.WriteTo(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Synthetic builds a deterministic network with small random weights. It
// plays poorly but exercises every layer, which is what tests and benches
// need when no trained network is available.
func Synthetic(seed uint64) *Network {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	copy(key[8:], "tempest synthetic net")
	rng := frand.NewCustom(key[:], 4096, 12)

	net := &Network{
		Header:    defaultHeader(fmt.Sprintf("synthetic-%d", seed)),
		FTWeights: make([]int16, ftWeightCount),
		FTBiases:  make([]int16, HiddenSize),
	}
	for i := range net.FTWeights {
		net.FTWeights[i] = int16(rng.Intn(33) - 16)
	}
	for i := range net.FTBiases {
		net.FTBiases[i] = int16(rng.Intn(129))
	}
	for i := range net.stacks {
		net.stacks[i] = newLayerStack()
		net.stacks[i].randomize(rng)
	}
	return net
}
