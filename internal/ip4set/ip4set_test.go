package ip4set_test

import (
	"math/rand"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KEYinternational/flytrap/internal/ip4set"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSet is a helper that returns a new set with the given configuration and
// fails the test on error.
func newSet(t *testing.T, conf *ip4set.Config) (s *ip4set.Set) {
	t.Helper()

	s, err := ip4set.New(conf)
	require.NoError(t, err)

	return s
}

// mustInsert is a helper that inserts the inclusive range [first, last] into
// s and fails the test on error.
func mustInsert(t *testing.T, s *ip4set.Set, first, last string) {
	t.Helper()

	err := s.Insert(netip.MustParseAddr(first), netip.MustParseAddr(last))
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		conf       *ip4set.Config
		name       string
		wantErrMsg string
	}{{
		conf:       &ip4set.Config{},
		name:       "defaults",
		wantErrMsg: "",
	}, {
		conf: &ip4set.Config{
			BitsPerLevel: 8,
			MinPrefixLen: 16,
			MaxPrefixLen: 24,
		},
		name:       "custom",
		wantErrMsg: "",
	}, {
		conf: &ip4set.Config{
			BitsPerLevel: 5,
		},
		name:       "bad_bits",
		wantErrMsg: "BitsPerLevel: 5 does not divide 32",
	}, {
		conf: &ip4set.Config{
			MinPrefixLen: 24,
			MaxPrefixLen: 16,
		},
		name:       "min_above_max",
		wantErrMsg: "MinPrefixLen",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate()
			if tc.wantErrMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErrMsg)
			}
		})
	}
}

func TestSet_Insert_idempotent(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	mustInsert(t, s, "10.0.0.0", "10.0.127.255")
	wantCount := s.Count()
	wantRanges := s.Ranges()

	mustInsert(t, s, "10.0.0.0", "10.0.127.255")
	assert.Equal(t, wantCount, s.Count())
	assert.Equal(t, wantRanges, s.Ranges())
}

func TestSet_Count_additive(t *testing.T) {
	t.Run("disjoint", func(t *testing.T) {
		s := newSet(t, &ip4set.Config{})

		mustInsert(t, s, "10.0.0.0", "10.0.0.255")
		mustInsert(t, s, "192.168.0.0", "192.168.0.127")

		assert.Equal(t, uint64(256+128), s.Count())
	})

	t.Run("overlapping", func(t *testing.T) {
		s := newSet(t, &ip4set.Config{})

		mustInsert(t, s, "10.0.0.0", "10.0.0.199")
		mustInsert(t, s, "10.0.0.100", "10.0.0.255")

		// The union, not the sum.
		assert.Equal(t, uint64(256), s.Count())
	})
}

func TestSet_Insert_coarsens(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	mustInsert(t, s, "0.0.0.0", "0.0.0.255")

	assert.Equal(t, uint64(256), s.Count())
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("0.0.0.0/24")}, s.Ranges())
}

func TestSet_Insert_maxPrefixRoundsUp(t *testing.T) {
	s := newSet(t, &ip4set.Config{MaxPrefixLen: 24})

	mustInsert(t, s, "10.0.0.5", "10.0.0.5")

	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/24")}, s.Ranges())
	assert.True(t, s.Contains(netip.MustParseAddr("10.0.0.200")))
	assert.Equal(t, uint64(256), s.Count())
}

func TestSet_Contains(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	mustInsert(t, s, "10.0.0.16", "10.0.2.77")

	testCases := []struct {
		in   netip.Addr
		want assert.BoolAssertionFunc
		name string
	}{{
		in:   netip.MustParseAddr("10.0.0.16"),
		want: assert.True,
		name: "first",
	}, {
		in:   netip.MustParseAddr("10.0.2.77"),
		want: assert.True,
		name: "last",
	}, {
		in:   netip.MustParseAddr("10.0.1.1"),
		want: assert.True,
		name: "within",
	}, {
		in:   netip.MustParseAddr("10.0.0.15"),
		want: assert.False,
		name: "before",
	}, {
		in:   netip.MustParseAddr("10.0.2.78"),
		want: assert.False,
		name: "after",
	}, {
		in:   netip.MustParseAddr("255.255.255.255"),
		want: assert.False,
		name: "far_after",
	}, {
		in:   netip.MustParseAddr("::1"),
		want: assert.False,
		name: "not_ipv4",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.want(t, s.Contains(tc.in))
		})
	}
}

func TestSet_Contains_random(t *testing.T) {
	// Compare against a plain interval list over randomly chosen ranges and
	// probe addresses.
	rng := rand.New(rand.NewSource(42))

	type interval struct {
		first, last uint32
	}

	s := newSet(t, &ip4set.Config{})

	var ref []interval
	for range 32 {
		first := rng.Uint32()
		last := first + rng.Uint32()%4096
		if last < first {
			first, last = last, first
		}

		ref = append(ref, interval{first: first, last: last})

		var f, l [4]byte
		for i := range 4 {
			f[i] = byte(first >> (24 - 8*i))
			l[i] = byte(last >> (24 - 8*i))
		}

		err := s.Insert(netip.AddrFrom4(f), netip.AddrFrom4(l))
		require.NoError(t, err)
	}

	refContains := func(addr uint32) (ok bool) {
		for _, iv := range ref {
			if addr >= iv.first && addr <= iv.last {
				return true
			}
		}

		return false
	}

	for range 16384 {
		addr := rng.Uint32()
		// Probe near the interval bounds half of the time.
		if addr%2 == 0 {
			iv := ref[int(addr)%len(ref)]
			addr = iv.last + addr%8 - 4
		}

		var a [4]byte
		for i := range 4 {
			a[i] = byte(addr >> (24 - 8*i))
		}

		assert.Equal(t, refContains(addr), s.Contains(netip.AddrFrom4(a)), "addr %#08x", addr)
	}
}

func TestSet_Remove(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	err := s.Remove(netip.MustParseAddr("10.0.0.0"), netip.MustParseAddr("10.0.0.255"))
	assert.ErrorContains(t, err, "unsupported")
}

func TestSet_WriteTo(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	// Inserted out of order; dumped in ascending address order.
	mustInsert(t, s, "192.168.0.0", "192.168.0.255")
	mustInsert(t, s, "10.0.0.1", "10.0.0.1")
	mustInsert(t, s, "10.0.1.0", "10.0.1.15")

	b := &strings.Builder{}
	_, err := s.WriteTo(b)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1\n10.0.1.0/28\n192.168.0.0/24\n", b.String())
}

func TestSet_WriteTo_empty(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	b := &strings.Builder{}
	n, err := s.WriteTo(b)
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Empty(t, b.String())
}

func TestSet_AddString(t *testing.T) {
	testCases := []struct {
		name       string
		in         string
		wantErrMsg string
		wantCount  uint64
	}{{
		name:       "single",
		in:         "10.0.0.1",
		wantErrMsg: "",
		wantCount:  1,
	}, {
		name:       "prefix",
		in:         "10.0.0.0/30",
		wantErrMsg: "",
		wantCount:  4,
	}, {
		name:       "range",
		in:         "10.0.0.1-10.0.0.8",
		wantErrMsg: "",
		wantCount:  8,
	}, {
		name:       "bad",
		in:         "not-an-address",
		wantErrMsg: `adding "not-an-address"`,
		wantCount:  0,
	}, {
		name:       "backwards",
		in:         "10.0.0.8-10.0.0.1",
		wantErrMsg: "10.0.0.8 is greater than 10.0.0.1",
		wantCount:  0,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSet(t, &ip4set.Config{})

			err := s.AddString(tc.in)
			if tc.wantErrMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErrMsg)
			}

			assert.Equal(t, tc.wantCount, s.Count())
		})
	}
}

func TestSet_AddFromReader(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	err := s.AddFromReader(strings.NewReader(
		"# exclusion list\n" +
			"\n" +
			"10.0.0.1\n" +
			"  10.0.1.0/30  \n",
	))
	require.NoError(t, err)

	assert.Equal(t, uint64(5), s.Count())

	err = s.AddFromReader(strings.NewReader("10.0.0.1\ngarbage\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestSet_DumpFile(t *testing.T) {
	s := newSet(t, &ip4set.Config{})

	mustInsert(t, s, "10.0.0.0", "10.0.0.255")

	path := filepath.Join(t.TempDir(), "ranges")
	err := s.DumpFile(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.0/24\n", string(data))
}
