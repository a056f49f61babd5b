package nnue

import (
	"encoding/binary"
	"fmt"
)

const (
	headerSize    = 64
	headerVersion = 1
	maxNameLength = 48
)

var headerMagic = [4]byte{'T', 'P', 'N', 'N'}

// Flags describe how a network file was trained and stored.
type Flags uint16

const (
	FlagZstd Flags = 1 << iota
	FlagMirrored
	FlagMergedKings
	FlagPairwise
)

// requiredFlags are the feature-set flags every supported network carries.
const requiredFlags = FlagMirrored | FlagMergedKings | FlagPairwise

// Activation ids stored in the header.
const (
	activationClipped    = 0
	activationSqrClipped = 1
	activationDual       = 2
)

// Arch ids stored in the header.
const (
	archSingleLayer = 1
	archMultiLayer  = 2
)

// Header is the fixed 64-byte little-endian prefix of a network file.
type Header struct {
	Version       uint16
	Flags         Flags
	Arch          uint8
	Activation    uint8
	HiddenSize    uint16
	InputBuckets  uint8
	OutputBuckets uint8
	Name          string
}

// defaultHeader describes a network matching this build.
func defaultHeader(name string) Header {
	return Header{
		Version:       headerVersion,
		Flags:         requiredFlags,
		Arch:          archID,
		Activation:    activationID,
		HiddenSize:    HiddenSize,
		InputBuckets:  InputBuckets,
		OutputBuckets: OutputBuckets,
		Name:          name,
	}
}

// MarshalBinary encodes the header into its 64-byte form.
func (h Header) MarshalBinary() ([]byte, error) {
	if len(h.Name) > maxNameLength {
		return nil, fmt.Errorf("nnue: network name longer than %d bytes", maxNameLength)
	}
	b := make([]byte, headerSize)
	copy(b[0:4], headerMagic[:])
	binary.LittleEndian.PutUint16(b[4:], h.Version)
	binary.LittleEndian.PutUint16(b[6:], uint16(h.Flags))
	b[9] = h.Arch
	b[10] = h.Activation
	binary.LittleEndian.PutUint16(b[11:], h.HiddenSize)
	b[13] = h.InputBuckets
	b[14] = h.OutputBuckets
	b[15] = uint8(len(h.Name))
	copy(b[16:], h.Name)
	return b, nil
}

// parseHeader decodes and validates a header against this build.
func parseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < headerSize {
		return h, fmt.Errorf("%w: file shorter than header", ErrSize)
	}
	if [4]byte(b[0:4]) != headerMagic {
		return h, ErrBadMagic
	}
	h.Version = binary.LittleEndian.Uint16(b[4:])
	if h.Version != headerVersion {
		return h, fmt.Errorf("%w: %d", ErrBadVersion, h.Version)
	}
	h.Flags = Flags(binary.LittleEndian.Uint16(b[6:]))
	h.Arch = b[9]
	h.Activation = b[10]
	h.HiddenSize = binary.LittleEndian.Uint16(b[11:])
	h.InputBuckets = b[13]
	h.OutputBuckets = b[14]
	n := int(b[15])
	if n > maxNameLength {
		return h, fmt.Errorf("%w: name length %d", ErrSize, n)
	}
	h.Name = string(b[16 : 16+n])

	switch {
	case h.Arch != archID || h.Activation != activationID:
		return h, fmt.Errorf("%w: arch %d activation %d", ErrArchMismatch, h.Arch, h.Activation)
	case h.HiddenSize != HiddenSize:
		return h, fmt.Errorf("%w: hidden size %d", ErrArchMismatch, h.HiddenSize)
	case h.InputBuckets != InputBuckets || h.OutputBuckets != OutputBuckets:
		return h, fmt.Errorf("%w: buckets %d/%d", ErrArchMismatch, h.InputBuckets, h.OutputBuckets)
	case h.Flags&requiredFlags != requiredFlags:
		return h, fmt.Errorf("%w: flags %#x", ErrArchMismatch, h.Flags)
	}
	return h, nil
}
