package mmdb

import (
	"github.com/haldane-io/mmdb/internal/mmdberrors"
	"github.com/haldane-io/mmdb/internal/stream"
)

// readRecord reads one record (left when which==0, right when which==1)
// out of the node at nodeIndex, handling the 24/28/32-bit packings. For
// 28-bit records the middle byte of the 7-byte node is a shared nibble:
// its high nibble belongs to the left record, its low nibble to the
// right, so the two records cannot be read independently of each other.
func readRecord(src stream.Source, recordSize, nodeIndex uint, which int) (uint, error) {
	if which != 0 && which != 1 {
		return 0, mmdberrors.NewInputError("record index must be 0 or 1, got %d", which)
	}

	nodeSizeBytes := recordSize / 4
	base := nodeIndex * nodeSizeBytes

	switch recordSize {
	case 24:
		off := base + uint(which)*3
		buf, err := src.ReadAt(off, 3, true)
		if err != nil {
			return 0, err
		}
		return beUint(buf), nil

	case 32:
		off := base + uint(which)*4
		buf, err := src.ReadAt(off, 4, true)
		if err != nil {
			return 0, err
		}
		return beUint(buf), nil

	case 28:
		middleByte, err := src.ReadAt(base+3, 1, true)
		if err != nil {
			return 0, err
		}
		var middle uint
		var off uint
		if which == 0 {
			middle = uint(middleByte[0]&0xF0) >> 4
			off = base
		} else {
			middle = uint(middleByte[0] & 0x0F)
			off = base + 4
		}
		buf, err := src.ReadAt(off, 3, true)
		if err != nil {
			return 0, err
		}
		return (middle << 24) | beUint(buf), nil

	default:
		return 0, mmdberrors.NewInvalidDatabaseError("unknown record size: %d", recordSize)
	}
}

func beUint(buf []byte) uint {
	var v uint
	for _, b := range buf {
		v = (v << 8) | uint(b)
	}
	return v
}

// findAddressInTree walks the search tree bit-by-bit for addr (already
// normalized to the database's address width) and returns the terminal
// record value together with the number of bits consumed. A record
// value equal to node_count means "no data"; greater means a
// data-section pointer; findAddressInTree never returns a value less
// than node_count except when the loop runs out of address bits first.
func (r *Reader) findAddressInTree(addr []byte) (record uint, depth int, err error) {
	nodeCount := r.Metadata.NodeCount
	bitCount := len(addr) * 8

	node, startBit, err := r.startNode(bitCount)
	if err != nil {
		return 0, 0, err
	}

	j := 0
	for ; j < bitCount && node < nodeCount; j++ {
		bit := uint(addr[j/8]>>(7-uint(j%8))) & 1
		node, err = readRecord(r.src, r.Metadata.RecordSize, node, int(bit))
		if err != nil {
			return 0, 0, err
		}
	}

	return node, startBit + j, nil
}

// startNode returns the tree node to begin descent from along with how
// many leading bits of the database's full address width it already
// accounts for. addrBitCount is the width of the address bytes the
// caller is about to walk with, not the database's tree width: looking
// up an IPv4 address against an IPv6 database passes just the 4
// address bytes (addrBitCount == 32), and startNode walks the fixed
// 96-bit all-zero ::/96 prefix on the caller's behalf before returning
// the node those 4 bytes should resume from, since every well-formed
// IPv6 database routes that prefix the same way. A native lookup
// (addrBitCount == 128, or any IPv4-only database) needs no such skip.
func (r *Reader) startNode(addrBitCount int) (node uint, startBit int, err error) {
	if r.Metadata.IPVersion != 6 || addrBitCount != 32 {
		return 0, 0, nil
	}

	if r.ipv4StartSet {
		return r.ipv4Start, 96, nil
	}

	node = uint(0)
	for i := 0; i < 96 && node < r.Metadata.NodeCount; i++ {
		node, err = readRecord(r.src, r.Metadata.RecordSize, node, 0)
		if err != nil {
			return 0, 0, err
		}
	}
	r.ipv4Start = node
	r.ipv4StartSet = true
	return node, 96, nil
}
