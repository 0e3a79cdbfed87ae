// Package bigint implements the arithmetic capability trait used to
// accumulate MMDB unsigned integers of up to 128 bits: add a byte, shift
// left by up to 8 bits, selecting native fixed-width arithmetic whenever
// the accumulating value demonstrably fits and falling back to
// arbitrary-precision arithmetic otherwise.
package bigint

import (
	"math/big"
	"math/bits"
	"strconv"

	"github.com/haldane-io/mmdb/internal/mmdberrors"
)

// Number is the sum type returned by the decoder for an unsigned integer:
// either it fits a native uint64 (Big == nil) or it required
// arbitrary-precision arithmetic (Big != nil). Callers that only care
// about the decimal value can call String or Uint64 and check ok.
type Number struct {
	small uint64
	Big   *big.Int
}

// FromUint64 builds a Number known to fit in a native word.
func FromUint64(v uint64) Number { return Number{small: v} }

// Uint64 returns the value as a uint64 along with whether it fit without
// truncation.
func (n Number) Uint64() (uint64, bool) {
	if n.Big == nil {
		return n.small, true
	}
	if n.Big.IsUint64() {
		return n.Big.Uint64(), true
	}
	return 0, false
}

// IsBig reports whether the value required the arbitrary-precision path.
func (n Number) IsBig() bool { return n.Big != nil }

// AsBigInt returns the value as a *big.Int regardless of which backend
// produced it.
func (n Number) AsBigInt() *big.Int {
	if n.Big != nil {
		return n.Big
	}
	return new(big.Int).SetUint64(n.small)
}

// String renders the canonical decimal representation.
func (n Number) String() string {
	if n.Big != nil {
		return n.Big.String()
	}
	return strconv.FormatUint(n.small, 10)
}

// nativeWordBytes is the width, in bytes, of the platform's widest
// native unsigned integer this package accumulates in before promoting
// to the big-integer backend. Go's uint64 is used uniformly regardless
// of GOARCH so behavior does not vary by platform.
const nativeWordBytes = 8

// FitsNative reports whether decoding size bytes into an unsigned
// integer is guaranteed to fit a native uint64 given only the
// most-significant byte, per the decision rule in the format spec: use
// native arithmetic if size < native word width, or if size equals the
// native word width and the top bit of the most-significant byte is
// clear.
func FitsNative(size uint, msb byte) bool {
	if size < nativeWordBytes {
		return true
	}
	if size == nativeWordBytes {
		return msb&0x80 == 0
	}
	return false
}

// Accumulator accumulates bytes big-endian into a Number, promoting from
// native uint64 to a fixed 128-bit pair and finally to math/big as
// needed. It implements the "add / shift_left_by_bits(0..=8)" capability
// trait: Add appends one more byte (an 8-bit left shift followed by an
// add), matching how the format spec derives unsigned integers.
type Accumulator struct {
	// native holds the value while it still fits in 64 bits.
	native  uint64
	usedBig bool
	hi, lo  uint64 // 128-bit accumulator, used once native overflows
	big     *big.Int
}

// Add folds one more big-endian byte into the accumulator: shift left by
// 8 bits, then add b. There is no separate shift method: Add always
// shifts by a full byte, matching the decode loop in the format spec.
func (a *Accumulator) Add(b byte) {
	switch {
	case a.big != nil:
		a.big.Lsh(a.big, 8)
		a.big.Or(a.big, big.NewInt(int64(b)))
	case a.usedBig:
		if a.hi>>56 != 0 {
			// Shifting would push bits off the top of the 128-bit pair;
			// promote the unshifted value first and shift it there.
			a.promoteToBig()
			a.big.Lsh(a.big, 8)
			a.big.Or(a.big, big.NewInt(int64(b)))
			return
		}
		var carryHi byte
		a.lo, carryHi = shiftInByte(a.lo, b)
		a.hi, _ = shiftInByte(a.hi, carryHi)
	default:
		hi, lo := bits.Mul64(a.native, 256)
		sum, carry := bits.Add64(lo, uint64(b), 0)
		if hi != 0 || carry != 0 {
			// The value no longer fits in 64 bits; promote to the
			// 128-bit accumulator and redo this byte there.
			a.usedBig = true
			a.hi, a.lo = 0, a.native
			var carryHi byte
			a.lo, carryHi = shiftInByte(a.lo, b)
			a.hi, _ = shiftInByte(a.hi, carryHi)
			return
		}
		a.native = sum
	}
}

// shiftInByte shifts v left by 8 bits and ors in b, returning the byte
// that overflowed off the top (the new carry for the next-higher word).
func shiftInByte(v uint64, b byte) (result uint64, carry byte) {
	carry = byte(v >> 56)
	return (v << 8) | uint64(b), carry
}

// forcePromoted starts the accumulator directly in the 128-bit tier,
// skipping the native fast path. DecodeUnsigned uses this once
// FitsNative has already determined the value cannot be native, so the
// returned Number's representation reflects that decision even for a
// value that would technically still fit in 64 bits (the size==8,
// top-bit-set case).
func (a *Accumulator) forcePromoted() {
	a.usedBig = true
}

func (a *Accumulator) promoteToBig() {
	a.big = new(big.Int)
	hi := new(big.Int).SetUint64(a.hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(a.lo)
	a.big.Or(hi, lo)
}

// Number returns the accumulated value.
func (a *Accumulator) Number() Number {
	switch {
	case a.big != nil:
		return Number{Big: new(big.Int).Set(a.big)}
	case a.usedBig:
		hi := new(big.Int).SetUint64(a.hi)
		hi.Lsh(hi, 64)
		lo := new(big.Int).SetUint64(a.lo)
		return Number{Big: new(big.Int).Or(hi, lo)}
	default:
		return Number{small: a.native}
	}
}

// DecodeUnsigned accumulates size big-endian bytes from buf into a
// Number, choosing the native fast path when FitsNative reports the
// value will not overflow a uint64 and falling back to the promoting
// accumulator otherwise. buf must have exactly size bytes.
func DecodeUnsigned(buf []byte) Number {
	if len(buf) == 0 {
		return FromUint64(0)
	}
	if FitsNative(uint(len(buf)), buf[0]) {
		var v uint64
		for _, b := range buf {
			v = (v << 8) | uint64(b)
		}
		return FromUint64(v)
	}
	var acc Accumulator
	acc.forcePromoted()
	for _, b := range buf {
		acc.Add(b)
	}
	return acc.Number()
}

// RequireUint64 returns n as a uint64, or a platform-limit error naming
// its decimal value if it does not fit one. This is the boundary where
// the arbitrary-precision backend meets a caller that only wants a
// native integer.
func RequireUint64(n Number) (uint64, error) {
	if v, ok := n.Uint64(); ok {
		return v, nil
	}
	return 0, mmdberrors.NewPlatformLimitError(
		"value %s exceeds the range of a 64-bit unsigned integer", n.String())
}
