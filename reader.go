// Package mmdb reads MaxMind DB (MMDB) files: a binary search tree
// mapping IP prefixes to offsets into a self-describing, pointer-linked
// data section.
package mmdb

import (
	"bytes"
	"net/netip"
	"os"

	"github.com/haldane-io/mmdb/internal/decoder"
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/haldane-io/mmdb/internal/stream"
)

// dataSectionSeparatorSize is the width of the all-zero separator
// between the search tree and the data section.
const dataSectionSeparatorSize = 16

// Reader is an open MMDB file. A Reader is not safe for concurrent use
// by multiple goroutines: Lookup writes the memoized IPv4 start-node
// cache without synchronization. Separate Readers over the same file
// are independent.
type Reader struct {
	src            stream.Source
	dataDecoder    decoder.Decoder
	searchTreeSize uint
	dataSectionEnd uint

	// Metadata is the database's decoded metadata section.
	Metadata Metadata

	ipv4Start    uint
	ipv4StartSet bool
}

type openConfig struct {
	useMmap bool
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// WithMmap opens the database with a memory-mapped stream backend
// instead of positioned reads through the *os.File. This trades a
// one-time mmap syscall for zero per-lookup syscalls; it is unavailable
// when reading from a non-regular file.
func WithMmap() OpenOption {
	return func(c *openConfig) { c.useMmap = true }
}

// Open reads and validates the metadata section of the database at
// path and returns a Reader ready for Lookup. The returned Reader must
// be closed with Close once it is no longer needed.
func Open(path string, opts ...OpenOption) (*Reader, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, mmdberrors.NewConfigurationError("%s is a directory, not a database file", path)
	}
	size := uint(info.Size())

	var src stream.Source
	if cfg.useMmap {
		src, err = stream.NewMmap(f, size)
		if err != nil {
			f.Close()
			return nil, err
		}
	} else {
		src = stream.NewFile(f, f, size)
	}

	r, err := newReader(src)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// FromBytes builds a Reader over an in-memory database image, without
// touching the filesystem. The returned Reader owns no file descriptor;
// Close is a no-op.
func FromBytes(data []byte) (*Reader, error) {
	src := stream.NewFile(bytes.NewReader(data), nil, uint(len(data)))
	return newReader(src)
}

func newReader(src stream.Source) (*Reader, error) {
	meta, err := loadMetadata(src)
	if err != nil {
		return nil, err
	}

	searchTreeSize := meta.NodeCount * (2 * meta.RecordSize / 8)
	dataSectionStart := searchTreeSize + dataSectionSeparatorSize

	return &Reader{
		src:            src,
		dataDecoder:    decoder.New(src, dataSectionStart),
		searchTreeSize: searchTreeSize,
		dataSectionEnd: src.Len(),
		Metadata:       meta,
	}, nil
}

// Close releases the resources backing the Reader, closing the
// underlying file if Open opened one.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	return r.src.Close()
}

// Result is the outcome of a Lookup: either the address was found in
// the tree and has an associated record (Found reports true), or it was found
// but has no data, or it was entirely absent from the tree (Prefix
// still describes how much of the tree was matched either way).
type Result struct {
	r      *Reader
	offset uint
	found  bool

	// Prefix is the network containing the looked-up address that maps
	// to this result, derived from how many bits of the tree were
	// walked before reaching a terminal node.
	Prefix netip.Prefix
}

// Found reports whether the looked-up address resolved to a record in
// the data section. A zero Result (no record) is not an error: it
// means the address is simply outside every network the database
// describes.
func (res Result) Found() bool { return res.found }

// Decode reads the record's raw value into a generic Go representation:
// a *decoder.OrderedMap-shaped tree of map/slice/scalar values, or nil
// if the record was not Found.
func (res Result) Decode() (any, error) {
	if !res.found {
		return nil, nil
	}
	value, _, err := res.r.dataDecoder.Decode(res.offset)
	return value, err
}

// PeekType reports the on-disk kind of the record's value without
// fully decoding it, following any leading pointer.
func (res Result) PeekType() (Kind, error) {
	if !res.found {
		return 0, mmdberrors.NewInputError("result has no record to peek")
	}
	return res.r.dataDecoder.PeekKind(res.offset)
}

// Unmarshal decodes the record into v using mapstructure, following the
// same "mmdb" struct tag convention as Metadata. It is a no-op,
// returning nil, when the result was not Found.
func (res Result) Unmarshal(v any) error {
	if !res.found {
		return nil
	}
	raw, _, err := res.r.dataDecoder.Decode(res.offset)
	if err != nil {
		return err
	}
	return decodeInto(raw, v)
}

// Lookup finds the network containing ip and returns a Result
// describing it. It returns an error only for malformed input or a
// corrupt database; an address with no matching network is a
// not-Found Result (its Prefix still set) with a nil error.
func (r *Reader) Lookup(ip netip.Addr) (Result, error) {
	addr, err := r.normalizeAddr(ip)
	if err != nil {
		return Result{}, err
	}

	record, depth, err := r.findAddressInTree(addr)
	if err != nil {
		return Result{}, err
	}

	embedded := r.Metadata.IPVersion == 6 && len(addr) == 4
	prefix := prefixFromDepth(ip, depth, embedded)

	if record == r.Metadata.NodeCount {
		return Result{r: r, found: false, Prefix: prefix}, nil
	}
	if record > r.Metadata.NodeCount {
		offset, err := r.resolveDataPointer(record)
		if err != nil {
			return Result{}, err
		}
		return Result{r: r, found: true, offset: offset, Prefix: prefix}, nil
	}

	return Result{}, mmdberrors.NewInvalidDatabaseError(
		"invalid search tree: record %d points into the tree itself", record)
}

// LookupString parses s as an IP address and calls Lookup.
func (r *Reader) LookupString(s string) (Result, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Result{}, mmdberrors.NewInputError("could not parse %q as an IP address", s)
	}
	return r.Lookup(addr)
}

func (r *Reader) resolveDataPointer(record uint) (uint, error) {
	dataOffset := record - r.Metadata.NodeCount - dataSectionSeparatorSize
	absolute := r.searchTreeSize + dataSectionSeparatorSize + dataOffset
	if absolute >= r.dataSectionEnd {
		return 0, mmdberrors.NewInvalidDatabaseError("data pointer %d is outside the database", absolute)
	}
	return absolute, nil
}

// normalizeAddr returns the address bytes to walk the tree with,
// rejecting an IPv6 address against an IPv4-only database. An IPv4
// address looked up against an IPv6 database is passed through as
// just its 4 bytes, not padded to 16: the tree's fixed 96-bit ::/96
// prefix is accounted for separately by startNode, which walks it once
// and caches the resulting node rather than re-deriving it from a
// padded address on every lookup.
func (r *Reader) normalizeAddr(ip netip.Addr) ([]byte, error) {
	if r.Metadata.IPVersion == 4 {
		if ip.Is6() && !ip.Is4In6() {
			return nil, mmdberrors.NewInputError(
				"cannot look up an IPv6 address in an IPv4-only database")
		}
		v4 := ip.As4()
		return v4[:], nil
	}

	if ip.Is4() || ip.Is4In6() {
		v4 := ip.As4()
		return v4[:], nil
	}

	v16 := ip.As16()
	return v16[:], nil
}

// prefixFromDepth builds the netip.Prefix that a tree walk of the given
// depth matched. embedded is true when the walk started 96 bits into
// an IPv6 tree on an IPv4 address's behalf, in which case those 96
// bits are not part of the reported IPv4 prefix length.
func prefixFromDepth(ip netip.Addr, depth int, embedded bool) netip.Prefix {
	ip = ip.Unmap()
	bits := depth
	if embedded {
		bits -= 96
		if bits < 0 {
			bits = 0
		}
	}
	p, err := ip.Prefix(bits)
	if err != nil {
		return netip.PrefixFrom(ip, ip.BitLen())
	}
	return p
}
