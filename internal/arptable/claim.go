package arptable

import (
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// Decision is the outcome of observing an ARP request for an address.
type Decision uint8

// Decision values.
const (
	// DecisionNone means no reply should be sent.
	DecisionNone Decision = iota

	// DecisionClaim means the address has just been claimed and a reply
	// should be sent.
	DecisionClaim

	// DecisionRefresh means the address is already claimed and a reply should
	// be sent to keep answering on its behalf.
	DecisionRefresh
)

// type check
var _ fmt.Stringer = DecisionNone

// String implements the [fmt.Stringer] interface for Decision.
func (d Decision) String() (s string) {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionClaim:
		return "claim"
	case DecisionRefresh:
		return "refresh"
	default:
		return fmt.Sprintf("!bad_decision_%d", d)
	}
}

// Observe records an ARP request asking for ip at time when, in milliseconds,
// and reports whether flytrap should answer it.  Only who-has requests drive
// this logic; observed replies go through [Table.Register] instead.
//
// An unclaimed, unreserved address is claimed once at least ProbeCount
// requests for it have been seen spanning at least ProbeWindow, with no gap
// of StaleGap or longer between consecutive requests.
//
// The when values must be monotonically non-decreasing across calls; clock
// jumps and reordered capture are not guarded against.
func (t *Table) Observe(ip netip.Addr, when uint64) (d Decision, err error) {
	defer func() { err = errors.Annotate(err, "arptable: observing request for %s: %w", ip) }()

	addr, err := addrToUint32(ip)
	if err != nil {
		return DecisionNone, err
	}

	rec, err := t.insert(addr, when)
	if err != nil {
		return DecisionNone, err
	}

	switch {
	case rec.reserved:
		// Observed for telemetry only.
		t.logger.Debug("request for reserved address", "ip", ip)
		rec.nreq = 0

		return DecisionNone, nil
	case rec.claimed:
		t.logger.Debug("refreshing claimed address", "ip", ip)
		rec.nreq = 0
		rec.lastSeen = when

		return DecisionRefresh, nil
	case rec.nreq == 0 || when-rec.lastSeen >= t.staleGap:
		// New or stale, start the window over.
		rec.nreq = 1
		rec.firstSeen = when
		rec.lastSeen = when

		return DecisionNone, nil
	}

	rec.nreq++
	rec.lastSeen = when

	if rec.nreq >= t.probeCount && when-rec.firstSeen >= t.probeWindow {
		t.logger.Info("claiming address", "ip", ip, "nreq", rec.nreq)
		rec.claimed = true
		rec.nreq = 0

		return DecisionClaim, nil
	}

	return DecisionNone, nil
}
