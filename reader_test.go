package mmdb

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMetadataMap encodes the standard nine metadata fields as an MMDB
// map value, in the order a real writer would emit them.
func buildMetadataMap(nodeCount, recordSize uint32, ipVersion uint16) []byte {
	return encMap(
		encString("binary_format_major_version"), encUint16(2),
		encString("binary_format_minor_version"), encUint16(0),
		encString("build_epoch"), encUint64(1700000000),
		encString("database_type"), encString("Test-DB"),
		encString("description"), encMap(encString("en"), encString("Test Database")),
		encString("ip_version"), encUint16(ipVersion),
		encString("languages"), encArray(encString("en")),
		encString("node_count"), encUint32(nodeCount),
		encString("record_size"), encUint32(recordSize),
	)
}

// buildIPv4Database assembles a tiny, fully synthetic MMDB image: an
// 8-level search tree routing exactly 1.0.0.0/8 to a data-section map,
// everything else to "no data".
func buildIPv4Database(t *testing.T) []byte {
	t.Helper()
	const nodeCount = 8
	tree := buildTerminalRightTree(nodeCount, nodeCount+16)

	separator := make([]byte, dataSectionSeparatorSize)
	data := encMap(encString("country"), encString("US"))

	buf := append([]byte{}, tree...)
	buf = append(buf, separator...)
	buf = append(buf, data...)
	buf = append(buf, metadataMarker...)
	buf = append(buf, buildMetadataMap(nodeCount, 24, 4)...)
	return buf
}

// buildIPv6Database assembles a 128-bit-tree database that embeds
// 1.0.0.0/8 under the IPv4-compatible ::/96 prefix: 96 nodes walking the
// all-zero prefix followed by the same 8-node shape buildIPv4Database
// uses, so an IPv4 lookup against it exercises the 96-bit skip.
func buildIPv6Database(t *testing.T) []byte {
	t.Helper()
	const nodeCount = 104
	tree := buildTerminalRightTree(nodeCount, nodeCount+16)

	separator := make([]byte, dataSectionSeparatorSize)
	data := encMap(encString("country"), encString("JP"))

	buf := append([]byte{}, tree...)
	buf = append(buf, separator...)
	buf = append(buf, data...)
	buf = append(buf, metadataMarker...)
	buf = append(buf, buildMetadataMap(nodeCount, 24, 6)...)
	return buf
}

func TestFromBytesLookupIPv4(t *testing.T) {
	r, err := FromBytes(buildIPv4Database(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint(4), r.Metadata.IPVersion)
	assert.Equal(t, uint(8), r.Metadata.NodeCount)
	assert.Equal(t, uint(24), r.Metadata.RecordSize)
	assert.Equal(t, "Test-DB", r.Metadata.DatabaseType)
	assert.Equal(t, map[string]string{"en": "Test Database"}, r.Metadata.Description)
	assert.Equal(t, []string{"en"}, r.Metadata.Languages)
	assert.Equal(t, uint64(1700000000), r.Metadata.BuildEpoch)

	res, err := r.LookupString("1.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, 8, res.Prefix.Bits())

	v, err := res.Decode()
	require.NoError(t, err)
	m, ok := v.(*Map)
	require.True(t, ok)
	country, _ := m.Get("country")
	assert.Equal(t, "US", country)

	kind, err := res.PeekType()
	require.NoError(t, err)
	assert.Equal(t, KindMap, kind)

	var target struct {
		Country string `mmdb:"country"`
	}
	require.NoError(t, res.Unmarshal(&target))
	assert.Equal(t, "US", target.Country)
}

func TestLookupMissReturnsNotFoundWithoutError(t *testing.T) {
	r, err := FromBytes(buildIPv4Database(t))
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("8.8.8.8")
	require.NoError(t, err)
	assert.False(t, res.Found())

	v, err := res.Decode()
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, res.Unmarshal(&struct{}{}))
}

func TestLookupStringRejectsGarbage(t *testing.T) {
	r, err := FromBytes(buildIPv4Database(t))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.LookupString("not-an-ip")
	assert.Error(t, err)
}

func TestLookupIPv6AddressAgainstIPv4DatabaseErrors(t *testing.T) {
	r, err := FromBytes(buildIPv4Database(t))
	require.NoError(t, err)
	defer r.Close()

	ip := netip.MustParseAddr("::1.1.1.1")
	_, err = r.Lookup(ip)
	assert.Error(t, err)
}

func TestFromBytesLookupIPv4EmbeddedInIPv6Database(t *testing.T) {
	r, err := FromBytes(buildIPv6Database(t))
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("1.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Found())

	v, err := res.Decode()
	require.NoError(t, err)
	m := v.(*Map)
	country, _ := m.Get("country")
	assert.Equal(t, "JP", country)

	// The reported prefix is translated back into IPv4 terms even
	// though the tree walk consumed 96+8 bits.
	assert.Equal(t, 8, res.Prefix.Bits())
	assert.True(t, res.Prefix.Addr().Is4())
}

func TestFromBytesLookupNativeIPv6AgainstIPv6Database(t *testing.T) {
	r, err := FromBytes(buildIPv6Database(t))
	require.NoError(t, err)
	defer r.Close()

	// This address's first 104 bits are not the tree's only populated
	// path, so it must miss.
	ip := netip.MustParseAddr("::2")
	res, err := r.Lookup(ip)
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestOpenFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.mmdb")
	require.NoError(t, os.WriteFile(path, buildIPv4Database(t), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("1.0.0.5")
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestOpenRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir)
	assert.Error(t, err)
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.mmdb"))
	assert.Error(t, err)
}

func TestUint128Value(t *testing.T) {
	const nodeCount = 8
	tree := buildTerminalRightTree(nodeCount, nodeCount+16)
	separator := make([]byte, dataSectionSeparatorSize)

	maxUint128 := make([]byte, 16)
	for i := range maxUint128 {
		maxUint128[i] = 0xFF
	}
	data := encCtrl(10, 16)
	data = append(data, maxUint128...)

	buf := append([]byte{}, tree...)
	buf = append(buf, separator...)
	buf = append(buf, data...)
	buf = append(buf, metadataMarker...)
	buf = append(buf, buildMetadataMap(nodeCount, 24, 4)...)

	r, err := FromBytes(buf)
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("1.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Found())

	v, err := res.Decode()
	require.NoError(t, err)
	n, ok := v.(Number)
	require.True(t, ok)
	assert.True(t, n.IsBig())
	assert.Equal(t, "340282366920938463463374607431768211455", n.String())

	_, err = Uint64(n)
	assert.Error(t, err)
}

func TestDecodeBytesAndBoolValues(t *testing.T) {
	const nodeCount = 8
	tree := buildTerminalRightTree(nodeCount, nodeCount+16)
	separator := make([]byte, dataSectionSeparatorSize)

	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	data := encMap(
		encString("raw"), encBytes(raw),
		encString("active"), encBool(true),
		encString("retired"), encBool(false),
	)

	buf := append([]byte{}, tree...)
	buf = append(buf, separator...)
	buf = append(buf, data...)
	buf = append(buf, metadataMarker...)
	buf = append(buf, buildMetadataMap(nodeCount, 24, 4)...)

	r, err := FromBytes(buf)
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("1.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Found())

	v, err := res.Decode()
	require.NoError(t, err)
	m, ok := v.(*Map)
	require.True(t, ok)

	rawVal, _ := m.Get("raw")
	assert.Equal(t, raw, rawVal)

	activeVal, _ := m.Get("active")
	assert.Equal(t, true, activeVal)

	retiredVal, _ := m.Get("retired")
	assert.Equal(t, false, retiredVal)
}

func TestUnmarshalMapIntoScalarFieldReturnsTypedError(t *testing.T) {
	const nodeCount = 8
	tree := buildTerminalRightTree(nodeCount, nodeCount+16)
	separator := make([]byte, dataSectionSeparatorSize)

	data := encMap(encString("country"), encMap(encString("name"), encString("US")))

	buf := append([]byte{}, tree...)
	buf = append(buf, separator...)
	buf = append(buf, data...)
	buf = append(buf, metadataMarker...)
	buf = append(buf, buildMetadataMap(nodeCount, 24, 4)...)

	r, err := FromBytes(buf)
	require.NoError(t, err)
	defer r.Close()

	res, err := r.LookupString("1.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Found())

	var target struct {
		Country string `mmdb:"country"`
	}
	err = res.Unmarshal(&target)
	require.Error(t, err)

	var typeErr mmdberrors.UnmarshalTypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "string", typeErr.Type.String())
}
