package ip4set

import (
	"bytes"
	"fmt"
	"io"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/renameio/v2/maybe"
)

// dumpFilePerm is the permissions for a written range dump file.
const dumpFilePerm = 0o644

// WriteTo writes the covering subnets of s to w, one per line, in ascending
// address order.  Each line is either "A.B.C.D" or "A.B.C.D/N"; the prefix
// length is omitted only for single addresses.  It implements the
// [io.WriterTo] interface for *Set.
func (s *Set) WriteTo(w io.Writer) (n int64, err error) {
	var werr error
	s.walkLeaves(s.root, func(ln *node) {
		if werr != nil {
			return
		}

		var written int
		if ln.plen == 32 {
			written, werr = fmt.Fprintf(w, "%s\n", uint32ToAddr(ln.addr))
		} else {
			written, werr = fmt.Fprintf(w, "%s/%d\n", uint32ToAddr(ln.addr), ln.plen)
		}
		n += int64(written)
	})

	return n, werr
}

// DumpFile atomically writes the textual dump of s to the file at path.
func (s *Set) DumpFile(path string) (err error) {
	defer func() { err = errors.Annotate(err, "dumping ranges: %w") }()

	buf := &bytes.Buffer{}
	_, err = s.WriteTo(buf)
	if err != nil {
		return err
	}

	return maybe.WriteFile(path, buf.Bytes(), dumpFilePerm)
}
