package ip4set

import "math"

// node is a node in the aggregation trie.  A node with nil children is a
// leaf.  A leaf with nonzero coverage covers its whole subnet; partially
// covered subnets always keep their internal structure.  The only
// zero-coverage leaf is the root of an empty set.
type node struct {
	// children are the child subnets, indexed by the next BitsPerLevel bits
	// of the address.  nil for leaves.
	children []*node

	// coverage is the number of addresses in this subtree.  For an internal
	// node it is the sum of the children's coverage.
	coverage uint64

	// addr is the network address of the subnet.  The low 32-plen bits are
	// zero.
	addr uint32

	// plen is the prefix length of the subnet, 0 to 32.
	plen uint8
}

// hostMask returns the inverse of the netmask for a subnet of length plen.
func hostMask(plen uint8) (mask uint32) {
	return math.MaxUint32 >> plen
}

// size returns the number of addresses in a subnet of length plen.
func size(plen uint8) (n uint64) {
	return uint64(hostMask(plen)) + 1
}

// collapse replaces the subtree of n with a single leaf covering the whole
// subnet.
func (n *node) collapse() {
	n.children = nil
	n.coverage = size(n.plen)
}

// insert adds the inclusive range [first, last], clipped to the subnet of n,
// to the subtree of n.  It keeps the coverage of n exact, so repeated and
// overlapping inserts are safe.
func (s *Set) insert(n *node, first, last uint32) {
	mask := hostMask(n.plen)

	// Clip the range to this subnet so that the child loop below doesn't have
	// to.
	if first < n.addr {
		first = n.addr
	}
	if last > n.addr|mask {
		last = n.addr | mask
	}

	// Already fully covered.
	if n.coverage == size(n.plen) {
		return
	}

	// Either the new range covers the entire subnet or descending further
	// would exceed the maximum prefix length, in which case the range is
	// rounded up to the whole subnet.
	if n.plen >= s.minPLen &&
		((first == n.addr && last == n.addr|mask) || n.plen+s.bits > s.maxPLen) {
		n.collapse()

		return
	}

	splen := n.plen + s.bits
	fsub := (first >> (32 - splen)) & hostMask(32-s.bits)
	lsub := (last >> (32 - splen)) & hostMask(32-s.bits)

	if n.children == nil {
		n.children = make([]*node, 1<<s.bits)
	}

	for i := fsub; i <= lsub; i++ {
		sn := n.children[i]
		if sn == nil {
			sn = &node{
				addr: n.addr | i<<(32-splen),
				plen: splen,
			}
			n.children[i] = sn
		}

		// Track the coverage delta rather than the child's whole coverage so
		// that reinserting an already covered range doesn't inflate the
		// count.
		prev := sn.coverage
		s.insert(sn, first, last)
		n.coverage += sn.coverage - prev
	}

	// Aggregate, unless this is the root.  The root is never collapsed, so an
	// all-covering set still dumps as its MinPrefixLen-sized parts.
	if n.plen > 0 && n.plen >= s.minPLen && n.coverage == size(n.plen) {
		n.collapse()
	}
}

// lookup returns true if addr is covered by the subtree of n.
func (s *Set) lookup(n *node, addr uint32) (ok bool) {
	mask := hostMask(n.plen)

	// Within this subnet?
	if addr < n.addr || addr > n.addr|mask {
		return false
	}

	// Fully covered?
	if n.coverage == size(n.plen) {
		return true
	}

	if n.children == nil {
		return false
	}

	sub := (addr >> (32 - n.plen - s.bits)) & hostMask(32-s.bits)
	if sn := n.children[sub]; sn != nil {
		return s.lookup(sn, addr)
	}

	return false
}

// walkLeaves calls f for each covering leaf of the subtree of n in ascending
// address order.  The order holds because children are visited by increasing
// index and indexes correspond to increasing addresses.
func (s *Set) walkLeaves(n *node, f func(n *node)) {
	if n.children == nil {
		if n.coverage != 0 {
			f(n)
		}

		return
	}

	for _, sn := range n.children {
		if sn != nil {
			s.walkLeaves(sn, f)
		}
	}
}
