//go:build !linux

package netdev

import (
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/KEYinternational/flytrap/internal/arpsvc"
)

// Conn is an ARP capture device.  It is only available on Linux.
type Conn struct{}

// type check
var _ arpsvc.Device = (*Conn)(nil)

// Open returns an error wrapping [errors.ErrUnsupported] on this OS.
func Open(_ *Config) (c *Conn, err error) {
	return nil, fmt.Errorf("netdev: %w on %s", errors.ErrUnsupported, runtime.GOOS)
}

// Close implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) Close() (err error) { return nil }

// HardwareAddr implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) HardwareAddr() (mac net.HardwareAddr) { return nil }

// ReadPacket implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) ReadPacket() (data []byte, when time.Time, err error) {
	return nil, time.Time{}, net.ErrClosed
}

// WritePacket implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) WritePacket(_ []byte, _ net.HardwareAddr) (err error) { return nil }
