package arptable

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// bitsPerLevel is the number of address bits consumed per trie level.  The
// depth of the trie is fixed at 32/bitsPerLevel levels.
const bitsPerLevel = 4

// fanout is the number of children of an internal node.
const fanout = 1 << bitsPerLevel

// errCorrupted is returned when a /32 node is found under a path that doesn't
// match its address.  The indexing scheme guarantees uniqueness, so this
// indicates a bug or memory corruption, not bad input.
const errCorrupted errors.Error = "trie node address mismatch"

// node is a node in the neighbor trie.  Exactly one of children and rec is
// non-nil, except in the root of an empty table, where both are nil.  rec is
// only set on /32 nodes.
type node struct {
	children *[fanout]*node
	rec      *record

	// addr is the network address of the subnet.  The low 32-plen bits are
	// zero.
	addr uint32

	// plen is the prefix length of the subnet, 0 to 32.
	plen uint8
}

// record is the per-address payload of a /32 node.
type record struct {
	// mac is the last known hardware address.  Zero means unknown.
	mac [6]byte

	// firstSeen and lastSeen are the bounds of the current observation
	// window, in milliseconds.
	firstSeen uint64
	lastSeen  uint64

	// nreq is the number of pending requests in the current observation
	// window.
	nreq uint32

	// claimed is true once flytrap actively impersonates the address.
	claimed bool

	// reserved is true if the address is excluded from claiming by operator
	// policy.  Reservation is permanent and takes precedence over claiming.
	reserved bool
}

// childIdx returns the child index for addr at a node whose children have
// prefix length plen.
func childIdx(addr uint32, plen uint8) (idx uint32) {
	return (addr >> (32 - plen)) & (fanout - 1)
}

// insert returns the record for addr, descending the fixed path and creating
// any missing nodes with both window bounds set to when.
func (t *Table) insert(addr uint32, when uint64) (rec *record, err error) {
	n := t.root
	for n.plen < 32 {
		if n.children == nil {
			n.children = &[fanout]*node{}
		}

		splen := n.plen + bitsPerLevel
		sub := childIdx(addr, splen)
		sn := n.children[sub]
		if sn == nil {
			sn = &node{
				addr: n.addr | sub<<(32-splen),
				plen: splen,
			}
			if splen == 32 {
				sn.rec = &record{
					firstSeen: when,
					lastSeen:  when,
				}
				t.logger.Debug("added neighbor node", "ip", uint32ToAddr(sn.addr))
			}

			n.children[sub] = sn
		}

		n = sn
	}

	if n.addr != addr {
		return nil, fmt.Errorf("%w: node %#08x, address %#08x", errCorrupted, n.addr, addr)
	}

	return n.rec, nil
}

// addrToUint32 converts an IPv4 address into its numeric form.
func addrToUint32(ip netip.Addr) (addr uint32, err error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return 0, fmt.Errorf("bad ipv4 address %q", ip)
	}

	a := ip.As4()

	return binary.BigEndian.Uint32(a[:]), nil
}

// uint32ToAddr converts the numeric form of an IPv4 address back into a
// netip.Addr.
func uint32ToAddr(addr uint32) (ip netip.Addr) {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], addr)

	return netip.AddrFrom4(a)
}
