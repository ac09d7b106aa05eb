package arptable_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/KEYinternational/flytrap/internal/arptable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMAC is a hardware address for tests.
var testMAC = net.HardwareAddr{0x02, 0x00, 0x5E, 0x00, 0x53, 0x01}

// testIP is a neighbor address for tests.
var testIP = netip.MustParseAddr("192.168.0.50")

// newTable is a helper that returns a new table with the given configuration
// and fails the test on error.
func newTable(t *testing.T, conf *arptable.Config) (tbl *arptable.Table) {
	t.Helper()

	if conf == nil {
		conf = &arptable.Config{}
	}
	if conf.Logger == nil {
		conf.Logger = slogutil.NewDiscardLogger()
	}

	tbl, err := arptable.New(conf)
	require.NoError(t, err)

	return tbl
}

func TestTable_Register(t *testing.T) {
	tbl := newTable(t, nil)

	err := tbl.Register(testIP, testMAC, 1000)
	require.NoError(t, err)

	mac, ok := tbl.Lookup(testIP)
	require.True(t, ok)
	assert.Equal(t, testMAC, mac)

	t.Run("absent", func(t *testing.T) {
		_, ok = tbl.Lookup(netip.MustParseAddr("192.168.0.51"))
		assert.False(t, ok)
	})

	t.Run("not_ipv4", func(t *testing.T) {
		err = tbl.Register(netip.MustParseAddr("::1"), testMAC, 1000)
		assert.ErrorContains(t, err, "bad ipv4 address")

		_, ok = tbl.Lookup(netip.MustParseAddr("::1"))
		assert.False(t, ok)
	})

	t.Run("moved", func(t *testing.T) {
		moved := net.HardwareAddr{0x02, 0x00, 0x5E, 0x00, 0x53, 0x02}
		err = tbl.Register(testIP, moved, 2000)
		require.NoError(t, err)

		mac, ok = tbl.Lookup(testIP)
		require.True(t, ok)
		assert.Equal(t, moved, mac)
	})
}

func TestTable_Observe_claims(t *testing.T) {
	tbl := newTable(t, nil)

	// Three requests spanning the probe window claim the address on the
	// third one.
	d, err := tbl.Observe(testIP, 0)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 1000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 3000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionClaim, d)

	// Further requests refresh, not re-claim.
	d, err = tbl.Observe(testIP, 3500)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionRefresh, d)
}

func TestTable_Observe_burst(t *testing.T) {
	tbl := newTable(t, nil)

	// A retransmit burst reaches the count threshold instantly but not the
	// window, so nothing is claimed.
	for _, when := range []uint64{0, 1, 2, 3, 4} {
		d, err := tbl.Observe(testIP, when)
		require.NoError(t, err)
		assert.Equal(t, arptable.DecisionNone, d)
	}

	// Once the window has passed as well, the next request claims.
	d, err := tbl.Observe(testIP, 3000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionClaim, d)
}

func TestTable_Observe_staleReset(t *testing.T) {
	tbl := newTable(t, nil)

	d, err := tbl.Observe(testIP, 0)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 1000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	// The gap restarts the window, so even many more requests right after it
	// do not reach the count-and-window condition from the old window.
	d, err = tbl.Observe(testIP, 31001)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 31002)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 31003)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)
}

func TestTable_Observe_reserved(t *testing.T) {
	tbl := newTable(t, nil)

	err := tbl.Reserve(testIP)
	require.NoError(t, err)

	// No request volume ever claims a reserved address.
	for when := uint64(0); when <= 100_000; when += 1000 {
		d, obsErr := tbl.Observe(testIP, when)
		require.NoError(t, obsErr)
		assert.Equal(t, arptable.DecisionNone, d)
	}
}

func TestTable_Observe_register_resets(t *testing.T) {
	tbl := newTable(t, nil)

	// Two of the three needed requests.
	_, err := tbl.Observe(testIP, 0)
	require.NoError(t, err)
	_, err = tbl.Observe(testIP, 1000)
	require.NoError(t, err)

	// The owner answers, resetting the pending count.
	err = tbl.Register(testIP, testMAC, 2000)
	require.NoError(t, err)

	// A new window starts, so the next request is the first of its window
	// and nothing is claimed at the old threshold.
	d, err := tbl.Observe(testIP, 3000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 4000)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)
}

func TestTable_Observe_customThresholds(t *testing.T) {
	tbl := newTable(t, &arptable.Config{
		ProbeCount:  2,
		ProbeWindow: 10 * time.Millisecond,
		StaleGap:    time.Hour,
	})

	d, err := tbl.Observe(testIP, 0)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionNone, d)

	d, err = tbl.Observe(testIP, 10)
	require.NoError(t, err)
	assert.Equal(t, arptable.DecisionClaim, d)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "none", arptable.DecisionNone.String())
	assert.Equal(t, "claim", arptable.DecisionClaim.String())
	assert.Equal(t, "refresh", arptable.DecisionRefresh.String())
}
