package mmdb

import "net/netip"

// networksFrame is one pending node in the traversal stack: the tree
// node to visit next and the address prefix that reaching it
// represents.
type networksFrame struct {
	node uint
	ip   []byte
	bits int
}

// Networks iterates over every network the database assigns a record
// to. It is grounded on the same left-first, depth-first tree walk
// Lookup performs, but instead of stopping at the first terminal node
// for one address it continues into both children of every internal
// node, and only emits a network at a node whose record is a data
// pointer.
type Networks struct {
	r            *Reader
	stack        []networksFrame
	includeEmpty bool

	current      netip.Prefix
	currentOff   uint
	currentFound bool
	err          error
}

// NetworksOption configures a Networks traversal.
type NetworksOption func(*Networks)

// IncludeEmptyNetworks makes Networks yield networks that terminate at
// an empty node (no associated record) in addition to ones with data.
// Result.Found will be false for those entries.
func IncludeEmptyNetworks() NetworksOption {
	return func(n *Networks) { n.includeEmpty = true }
}

// Networks returns an iterator over every network in the database.
func (r *Reader) Networks(opts ...NetworksOption) *Networks {
	bits := 32
	if r.Metadata.IPVersion == 6 {
		bits = 128
	}
	n := &Networks{
		r:     r,
		stack: []networksFrame{{node: 0, ip: make([]byte, bits/8), bits: 0}},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next advances to the next network, returning false once the
// traversal is exhausted or an error occurred (check Err).
func (n *Networks) Next() bool {
	for len(n.stack) > 0 {
		frame := n.stack[len(n.stack)-1]
		n.stack = n.stack[:len(n.stack)-1]

		if frame.node < n.r.Metadata.NodeCount {
			left, err := readRecord(n.r.src, n.r.Metadata.RecordSize, frame.node, 0)
			if err != nil {
				n.err = err
				return false
			}
			right, err := readRecord(n.r.src, n.r.Metadata.RecordSize, frame.node, 1)
			if err != nil {
				n.err = err
				return false
			}

			leftIP := extendPrefix(frame.ip, frame.bits, 0)
			rightIP := extendPrefix(frame.ip, frame.bits, 1)
			n.stack = append(n.stack,
				networksFrame{node: right, ip: rightIP, bits: frame.bits + 1},
				networksFrame{node: left, ip: leftIP, bits: frame.bits + 1},
			)
			continue
		}

		addr, ok := netip.AddrFromSlice(frame.ip)
		if !ok {
			continue
		}
		prefix := netip.PrefixFrom(addr, frame.bits)

		if frame.node == n.r.Metadata.NodeCount {
			if !n.includeEmpty {
				continue
			}
			n.current = prefix
			n.currentOff = 0
			n.currentFound = false
			return true
		}

		offset, err := n.r.resolveDataPointer(frame.node)
		if err != nil {
			n.err = err
			return false
		}
		n.current = prefix
		n.currentOff = offset
		n.currentFound = true
		return true
	}
	return false
}

// Network returns the prefix and decoded record for the current
// traversal position.
func (n *Networks) Network() (netip.Prefix, Result) {
	res := Result{r: n.r, found: n.currentFound, offset: n.currentOff, Prefix: n.current}
	return n.current, res
}

// Err returns the first error encountered during traversal, if any.
func (n *Networks) Err() error { return n.err }

func extendPrefix(base []byte, bits int, bit byte) []byte {
	out := make([]byte, len(base))
	copy(out, base)
	byteIdx := bits / 8
	if byteIdx < len(out) {
		shift := 7 - uint(bits%8)
		if bit == 1 {
			out[byteIdx] |= 1 << shift
		} else {
			out[byteIdx] &^= 1 << shift
		}
	}
	return out
}

// LookupNetwork finds the network containing ip and returns it as a
// netip.Prefix without decoding the associated record. It is a
// convenience wrapper for callers that only care about the matched
// network, not its data.
func (r *Reader) LookupNetwork(ip netip.Addr) (netip.Prefix, bool, error) {
	res, err := r.Lookup(ip)
	if err != nil {
		return netip.Prefix{}, false, err
	}
	return res.Prefix, res.Found(), nil
}
