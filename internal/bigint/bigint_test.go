package bigint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesFor(v uint64, n int) []byte {
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

func TestDecodeUnsignedNative(t *testing.T) {
	cases := []struct {
		v uint64
		n int
	}{
		{0, 1},
		{1, 1},
		{255, 1},
		{256, 2},
		{1<<31 - 1, 4},
		{1 << 31, 5}, // padded to 5 bytes, top byte 0 so still native
		{1<<63 - 1, 8},
	}
	for _, tc := range cases {
		buf := bytesFor(tc.v, tc.n)
		got := DecodeUnsigned(buf)
		assert.False(t, got.IsBig(), "value %d should decode via the native path", tc.v)
		u, ok := got.Uint64()
		require.True(t, ok)
		assert.Equal(t, tc.v, u)
	}
}

func TestDecodeUnsignedPromotesAtEightBytesWithTopBitSet(t *testing.T) {
	// 2^63 requires the 8-byte MSB's top bit set, so per FitsNative this
	// must take the big-integer path even though it's only 8 bytes wide.
	buf := make([]byte, 8)
	buf[0] = 0x80
	got := DecodeUnsigned(buf)
	assert.True(t, got.IsBig())
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 63).String(), got.String())
}

func TestDecodeUnsigned128Bit(t *testing.T) {
	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	got := DecodeUnsigned(buf)
	require.True(t, got.IsBig())
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	assert.Equal(t, want, got.AsBigInt())
	assert.Equal(t, want.String(), got.String())
	_, ok := got.Uint64()
	assert.False(t, ok)
}

func TestFitsNative(t *testing.T) {
	assert.True(t, FitsNative(7, 0xFF))
	assert.True(t, FitsNative(8, 0x7F))
	assert.False(t, FitsNative(8, 0x80))
	assert.False(t, FitsNative(9, 0x00))
}

func TestRequireUint64(t *testing.T) {
	small := FromUint64(42)
	v, err := RequireUint64(small)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	buf := make([]byte, 16)
	buf[15] = 1
	buf[0] = 0x01
	big := DecodeUnsigned(buf)
	_, err = RequireUint64(big)
	assert.Error(t, err)
}

func TestAccumulatorPromotionSequence(t *testing.T) {
	// Feed enough 0xFF bytes to force native -> 128-bit -> math/big
	// promotion within a single accumulation and confirm the value is
	// exactly 2^96 - 1 midway and 2^136 - 1 at the end.
	var acc Accumulator
	for i := 0; i < 12; i++ {
		acc.Add(0xFF)
	}
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
	assert.Equal(t, want.String(), acc.Number().String())

	for i := 0; i < 5; i++ {
		acc.Add(0xFF)
	}
	want = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 136), big.NewInt(1))
	assert.Equal(t, want.String(), acc.Number().String())
}
