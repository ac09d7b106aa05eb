// Package ip4set implements a compressing set of IPv4 address ranges.
//
// The set is a multiway trie over the 32-bit address space.  Each node
// represents a subnet; a range is stored as the smallest collection of
// fully-covered subnets, and a subtree whose children together cover the whole
// subnet collapses into a single leaf.  Point lookups therefore never descend
// more than 32/BitsPerLevel levels, and memory grows with range fragmentation
// only, bounded below by MinPrefixLen.
package ip4set

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// Default values for [Config] fields with a zero value.
const (
	// DefaultBitsPerLevel is the default number of address bits consumed per
	// trie level.
	DefaultBitsPerLevel uint8 = 4

	// DefaultMinPrefixLen is the default minimum prefix length.  Subnets
	// shorter than this are never collapsed, which keeps single inserted
	// ranges from being rounded up into enormous subnets.
	DefaultMinPrefixLen uint8 = 8

	// DefaultMaxPrefixLen is the default maximum prefix length.  Ranges finer
	// than this are rounded up to a full subnet of this length.
	DefaultMaxPrefixLen uint8 = 32
)

// Config is the configuration for the address set.
type Config struct {
	// BitsPerLevel is the number of address bits consumed per trie level.  It
	// must divide 32 evenly.  Lower values improve aggregation but can greatly
	// increase the memory footprint.  The zero value means
	// [DefaultBitsPerLevel].
	BitsPerLevel uint8

	// MinPrefixLen is the minimum prefix length.  Large ranges are split into
	// subnets no shorter than this before any collapsing happens.  The zero
	// value means [DefaultMinPrefixLen].
	MinPrefixLen uint8

	// MaxPrefixLen is the maximum prefix length.  Ranges smaller than a
	// subnet of this length are rounded up to one.  Smaller values reduce
	// fragmentation and memory usage.  The zero value means
	// [DefaultMaxPrefixLen].
	MaxPrefixLen uint8
}

// withDefaults returns a copy of conf with the zero values replaced by
// defaults.
func (conf *Config) withDefaults() (withDef *Config) {
	return &Config{
		BitsPerLevel: cmp.Or(conf.BitsPerLevel, DefaultBitsPerLevel),
		MinPrefixLen: cmp.Or(conf.MinPrefixLen, DefaultMinPrefixLen),
		MaxPrefixLen: cmp.Or(conf.MaxPrefixLen, DefaultMaxPrefixLen),
	}
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.  The
// zero values are valid and mean defaults.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	c := conf.withDefaults()

	errs := []error{
		validate.InRange("BitsPerLevel", c.BitsPerLevel, 1, 8),
		validate.NoGreaterThan("MaxPrefixLen", c.MaxPrefixLen, 32),
		validate.NoGreaterThan("MinPrefixLen", c.MinPrefixLen, c.MaxPrefixLen),
	}

	if 32%c.BitsPerLevel != 0 {
		errs = append(errs, fmt.Errorf("BitsPerLevel: %d does not divide 32", c.BitsPerLevel))
	}

	return errors.Join(errs...)
}

// Set is a set of IPv4 address ranges.  It must not be copied after first use
// and is not safe for concurrent use.
//
// The zero Set is not ready for use; use [New].
type Set struct {
	root *node

	bits    uint8
	minPLen uint8
	maxPLen uint8
}

// New returns a new empty *Set with the given configuration.  conf must not
// be nil and must be valid.
func New(conf *Config) (s *Set, err error) {
	err = conf.Validate()
	if err != nil {
		return nil, fmt.Errorf("ip4set: config: %w", err)
	}

	c := conf.withDefaults()

	return &Set{
		root:    &node{},
		bits:    c.BitsPerLevel,
		minPLen: c.MinPrefixLen,
		maxPLen: c.MaxPrefixLen,
	}, nil
}

// Insert adds the inclusive address range [first, last] to s.  Both addresses
// must be IPv4 and first must not be greater than last.
func (s *Set) Insert(first, last netip.Addr) (err error) {
	defer func() { err = errors.Annotate(err, "ip4set: inserting range: %w") }()

	f, err := addrToUint32(first)
	if err != nil {
		return fmt.Errorf("first: %w", err)
	}

	l, err := addrToUint32(last)
	if err != nil {
		return fmt.Errorf("last: %w", err)
	}

	if f > l {
		return fmt.Errorf("%s is greater than %s", first, last)
	}

	s.insert(s.root, f, l)

	return nil
}

// InsertPrefix adds all addresses of p to s.  p must be a valid IPv4 prefix.
func (s *Set) InsertPrefix(p netip.Prefix) (err error) {
	defer func() { err = errors.Annotate(err, "ip4set: inserting prefix: %w") }()

	first, err := addrToUint32(p.Addr())
	if err != nil {
		return err
	}

	mask := uint32(math.MaxUint32) >> p.Bits()
	first &^= mask

	s.insert(s.root, first, first|mask)

	return nil
}

// Remove would remove the inclusive address range [first, last] from s.  It
// is not supported, since removal requires splitting collapsed leaves back
// into fine-grained subnets, and always returns an error wrapping
// [errors.ErrUnsupported].
func (s *Set) Remove(_, _ netip.Addr) (err error) {
	return fmt.Errorf("ip4set: removing range: %w", errors.ErrUnsupported)
}

// Contains returns true if ip belongs to one of the inserted ranges.  Non-IPv4
// addresses are never in the set.
func (s *Set) Contains(ip netip.Addr) (ok bool) {
	addr, err := addrToUint32(ip)
	if err != nil {
		return false
	}

	return s.lookup(s.root, addr)
}

// Count returns the total number of addresses in s.
func (s *Set) Count() (n uint64) {
	return s.root.coverage
}

// Ranges returns the minimal covering subnets of s as prefixes in ascending
// address order.
func (s *Set) Ranges() (ps []netip.Prefix) {
	s.walkLeaves(s.root, func(n *node) {
		ps = append(ps, netip.PrefixFrom(uint32ToAddr(n.addr), int(n.plen)))
	})

	return ps
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
