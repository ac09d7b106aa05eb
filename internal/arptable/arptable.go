// Package arptable implements the table of IPv4 neighbors observed through
// ARP (Address Resolution Protocol) and the decision logic for claiming
// unclaimed addresses.
//
// The table is a fixed-depth trie over the 32-bit address space, four bits
// per level, so every address sits exactly eight levels down.  Each /32 leaf
// holds the last known hardware address of the neighbor and the state used to
// decide whether flytrap should start answering ARP requests on that
// address's behalf.
package arptable

import (
	"cmp"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// Default values for [Config] fields with a zero value.
const (
	// DefaultProbeCount is the default number of requests for an unclaimed
	// address required before it is claimed.
	DefaultProbeCount uint = 3

	// DefaultProbeWindow is the default minimum time the requests must span
	// before an address is claimed.  It filters out single retransmit bursts.
	DefaultProbeWindow = 3 * time.Second

	// DefaultStaleGap is the default gap between requests after which the
	// observation window restarts.
	DefaultStaleGap = 30 * time.Second
)

// Config is the configuration for the neighbor table.
type Config struct {
	// Logger is used to log neighbor registrations and claims.  It must not
	// be nil.
	Logger *slog.Logger

	// ProbeCount is the number of requests for an unclaimed address required
	// before it is claimed.  The zero value means [DefaultProbeCount].
	ProbeCount uint

	// ProbeWindow is the minimum time the requests must span before an
	// address is claimed.  The zero value means [DefaultProbeWindow].
	ProbeWindow time.Duration

	// StaleGap is the gap between requests after which the observation window
	// restarts.  The zero value means [DefaultStaleGap].
	StaleGap time.Duration
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.  The
// zero durations are valid and mean defaults.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotNil("Logger", conf.Logger),
		validate.NotNegative("ProbeWindow", conf.ProbeWindow),
		validate.NotNegative("StaleGap", conf.StaleGap),
	)
}

// Table is the table of observed neighbors.  It is not safe for concurrent
// use; all mutation and lookup must happen on a single goroutine.
//
// Records are created lazily, one path of up to eight nodes per newly
// observed address, and are never removed.
type Table struct {
	logger *slog.Logger
	root   *node

	probeCount uint32
	// probeWindow and staleGap are in milliseconds, the unit of the
	// timestamps fed into the table.
	probeWindow uint64
	staleGap    uint64
}

// New returns a new empty *Table with the given configuration.  conf must not
// be nil and must be valid.
func New(conf *Config) (t *Table, err error) {
	err = conf.Validate()
	if err != nil {
		return nil, errors.Annotate(err, "arptable: config: %w")
	}

	return &Table{
		logger:      conf.Logger,
		root:        &node{},
		probeCount:  uint32(cmp.Or(conf.ProbeCount, DefaultProbeCount)),
		probeWindow: uint64(cmp.Or(conf.ProbeWindow, DefaultProbeWindow).Milliseconds()),
		staleGap:    uint64(cmp.Or(conf.StaleGap, DefaultStaleGap).Milliseconds()),
	}, nil
}

// Register stores mac as the hardware address of ip.  when is the capture
// time of the packet in milliseconds.  A change of a previously known
// hardware address is logged as an address migration.  The pending request
// count of the record is reset in any case.
func (t *Table) Register(ip netip.Addr, mac net.HardwareAddr, when uint64) (err error) {
	defer func() { err = errors.Annotate(err, "arptable: registering %s: %w", ip) }()

	addr, err := addrToUint32(ip)
	if err != nil {
		return err
	}

	rec, err := t.insert(addr, when)
	if err != nil {
		return err
	}

	if hw := net.HardwareAddr(rec.mac[:]); !macEqual(rec.mac, mac) {
		if !macZero(rec.mac) {
			t.logger.Info("neighbor moved", "ip", ip, "from", hw, "to", mac)
		} else {
			t.logger.Debug("neighbor registered", "ip", ip, "mac", mac)
		}

		copy(rec.mac[:], mac)
	}

	rec.nreq = 0

	return nil
}

// Lookup returns the stored hardware address of ip.  ok is false if ip has
// never been observed.  The returned address may be zero if ip was only ever
// the target of requests.
func (t *Table) Lookup(ip netip.Addr) (mac net.HardwareAddr, ok bool) {
	addr, err := addrToUint32(ip)
	if err != nil {
		return nil, false
	}

	n := t.root
	for n.plen < 32 {
		if n.children == nil {
			return nil, false
		}

		n = n.children[childIdx(addr, n.plen+bitsPerLevel)]
		if n == nil {
			return nil, false
		}
	}

	mac = make(net.HardwareAddr, len(n.rec.mac))
	copy(mac, n.rec.mac[:])

	return mac, true
}

// Reserve permanently excludes ip from claiming.  Requests for a reserved
// address are observed but never answered.
func (t *Table) Reserve(ip netip.Addr) (err error) {
	defer func() { err = errors.Annotate(err, "arptable: reserving %s: %w", ip) }()

	addr, err := addrToUint32(ip)
	if err != nil {
		return err
	}

	t.logger.Debug("reserving address", "ip", ip)

	rec, err := t.insert(addr, 0)
	if err != nil {
		return err
	}

	rec.reserved = true

	return nil
}

// macEqual returns true if mac equals stored.
func macEqual(stored [6]byte, mac net.HardwareAddr) (ok bool) {
	return len(mac) == len(stored) && string(stored[:]) == string(mac)
}

// macZero returns true if stored is all zeroes, i.e. unknown.
func macZero(stored [6]byte) (ok bool) {
	return stored == [6]byte{}
}
