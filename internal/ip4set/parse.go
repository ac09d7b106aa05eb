package ip4set

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// AddString adds the addresses described by str to s.  str is a single
// address "A.B.C.D", a prefix "A.B.C.D/N", or an inclusive range
// "A.B.C.D-E.F.G.H".
func (s *Set) AddString(str string) (err error) {
	defer func() { err = errors.Annotate(err, "adding %q: %w", str) }()

	if first, last, ok := strings.Cut(str, "-"); ok {
		var f, l netip.Addr
		f, err = netip.ParseAddr(first)
		if err != nil {
			// Don't wrap the error, as it will get annotated.
			return err
		}

		l, err = netip.ParseAddr(last)
		if err != nil {
			// Don't wrap the error, as it will get annotated.
			return err
		}

		return s.Insert(f, l)
	}

	if strings.Contains(str, "/") {
		var p netip.Prefix
		p, err = netip.ParsePrefix(str)
		if err != nil {
			// Don't wrap the error, as it will get annotated.
			return err
		}

		return s.InsertPrefix(p)
	}

	ip, err := netip.ParseAddr(str)
	if err != nil {
		// Don't wrap the error, as it will get annotated.
		return err
	}

	return s.Insert(ip, ip)
}

// AddFromReader adds the addresses, prefixes, and ranges listed in r to s,
// one per line.  Empty lines and lines starting with "#" are skipped.  This
// is the format of operator scope and exclusion lists.
func (s *Set) AddFromReader(r io.Reader) (err error) {
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		err = s.AddString(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", ln, err)
		}
	}

	return sc.Err()
}
