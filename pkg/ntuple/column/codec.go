package column

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/quasar/pkg/errors"
)

// The codecs translate between the canonical in-memory layout of a page buffer
// (UnpackedSize bytes per element, little-endian) and the packed on-disk
// layout (PackedSize bytes per element, possibly bit-packed, byte-split or
// delta-encoded). Packing runs when a cluster page is sealed; unpacking when a
// page is loaded.

// Pack converts n canonical elements into their on-disk form.
func Pack(elem ElementType, unpacked []byte, n int) ([]byte, error) {
	if len(unpacked) < n*elem.UnpackedSize() {
		return nil, errors.Newf(errors.ErrorTypeInternal,
			"pack %s: have %d bytes, need %d", elem, len(unpacked), n*elem.UnpackedSize())
	}
	unpacked = unpacked[:n*elem.UnpackedSize()]

	switch elem {
	case ElementBit:
		return packBits(unpacked, n), nil
	case ElementReal16:
		return packHalf(unpacked, n), nil
	case ElementSplitReal16:
		return splitBytes(packHalf(unpacked, n), 2, n), nil
	case ElementIndex32:
		return narrowIndex(unpacked, n), nil
	case ElementIndex64:
		out := make([]byte, n*8)
		copy(out, unpacked)
		return out, nil
	case ElementSplitIndex32:
		return splitBytes(narrowIndex(deltaEncode(unpacked, n), n), 4, n), nil
	case ElementSplitIndex64:
		return splitBytes(deltaEncode(unpacked, n), 8, n), nil
	case ElementSwitch:
		out := make([]byte, n*12)
		for i := 0; i < n; i++ {
			copy(out[i*12:(i+1)*12], unpacked[i*16:i*16+12])
		}
		return out, nil
	case ElementSplitInt16, ElementSplitUInt16, ElementSplitInt32, ElementSplitUInt32,
		ElementSplitInt64, ElementSplitUInt64, ElementSplitReal32, ElementSplitReal64:
		return splitBytes(unpacked, elem.PackedSize(), n), nil
	default:
		out := make([]byte, n*elem.PackedSize())
		copy(out, unpacked)
		return out, nil
	}
}

// Unpack converts n on-disk elements back into canonical form.
func Unpack(elem ElementType, packed []byte, n int) ([]byte, error) {
	need := packedBytes(elem, n)
	if len(packed) < need {
		return nil, errors.Newf(errors.ErrorTypeIO,
			"unpack %s: have %d bytes, need %d", elem, len(packed), need)
	}
	packed = packed[:need]

	switch elem {
	case ElementBit:
		return unpackBits(packed, n), nil
	case ElementReal16:
		return unpackHalf(packed, n), nil
	case ElementSplitReal16:
		return unpackHalf(unsplitBytes(packed, 2, n), n), nil
	case ElementIndex32:
		return widenIndex(packed, n), nil
	case ElementIndex64:
		out := make([]byte, n*8)
		copy(out, packed)
		return out, nil
	case ElementSplitIndex32:
		return deltaDecode(widenIndex(unsplitBytes(packed, 4, n), n), n), nil
	case ElementSplitIndex64:
		return deltaDecode(unsplitBytes(packed, 8, n), n), nil
	case ElementSwitch:
		out := make([]byte, n*16)
		for i := 0; i < n; i++ {
			copy(out[i*16:i*16+12], packed[i*12:(i+1)*12])
		}
		return out, nil
	case ElementSplitInt16, ElementSplitUInt16, ElementSplitInt32, ElementSplitUInt32,
		ElementSplitInt64, ElementSplitUInt64, ElementSplitReal32, ElementSplitReal64:
		return unsplitBytes(packed, elem.PackedSize(), n), nil
	default:
		out := make([]byte, n*elem.UnpackedSize())
		copy(out, packed)
		return out, nil
	}
}

// packedBytes returns the size of n packed elements; bit columns round up to
// whole bytes.
func packedBytes(elem ElementType, n int) int {
	if elem == ElementBit {
		return (n + 7) / 8
	}
	return n * elem.PackedSize()
}

func packBits(src []byte, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if src[i] != 0 {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(src []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if src[i/8]&(1<<(i%8)) != 0 {
			out[i] = 1
		}
	}
	return out
}

// splitBytes interleaves the bytes of n size-byte elements: all first bytes,
// then all second bytes, and so on.
func splitBytes(src []byte, size, n int) []byte {
	out := make([]byte, n*size)
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			out[j*n+i] = src[i*size+j]
		}
	}
	return out
}

func unsplitBytes(src []byte, size, n int) []byte {
	out := make([]byte, n*size)
	for i := 0; i < n; i++ {
		for j := 0; j < size; j++ {
			out[i*size+j] = src[j*n+i]
		}
	}
	return out
}

// deltaEncode rewrites a canonical uint64 buffer so that every element but the
// first holds the difference to its predecessor.
func deltaEncode(src []byte, n int) []byte {
	out := make([]byte, n*8)
	var prev uint64
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint64(src[i*8:])
		binary.LittleEndian.PutUint64(out[i*8:], v-prev)
		prev = v
	}
	return out
}

func deltaDecode(src []byte, n int) []byte {
	out := make([]byte, n*8)
	var acc uint64
	for i := 0; i < n; i++ {
		acc += binary.LittleEndian.Uint64(src[i*8:])
		binary.LittleEndian.PutUint64(out[i*8:], acc)
	}
	return out
}

// narrowIndex converts canonical uint64 index elements to their 4-byte form.
func narrowIndex(src []byte, n int) []byte {
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(binary.LittleEndian.Uint64(src[i*8:])))
	}
	return out
}

func widenIndex(src []byte, n int) []byte {
	out := make([]byte, n*8)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(binary.LittleEndian.Uint32(src[i*4:])))
	}
	return out
}

func packHalf(src []byte, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		binary.LittleEndian.PutUint16(out[i*2:], halfFromFloat32(f))
	}
	return out
}

func unpackHalf(src []byte, n int) []byte {
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		f := halfToFloat32(binary.LittleEndian.Uint16(src[i*2:]))
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// halfFromFloat32 converts to IEEE 754 binary16 with round-to-nearest-even.
func halfFromFloat32(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f: // overflow or inf/nan
		if bits&0x7fffffff > 0x7f800000 {
			return sign | 0x7e00 // nan
		}
		return sign | 0x7c00 // inf
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		guard := mant>>(shift-1)&1 != 0
		sticky := mant&(1<<(shift-1)-1) != 0
		if guard && (sticky || half&1 != 0) {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		if mant&0x1000 != 0 && mant&0x2fff != 0 {
			half++
		}
		return half
	}
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h >> 10 & 0x1f)
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal: normalize
		shifts := uint32(0)
		for mant&0x400 == 0 {
			mant <<= 1
			shifts++
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | (113-shifts)<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | mant<<13)
	}
}
