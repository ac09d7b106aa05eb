//go:build linux

package netdev

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/KEYinternational/flytrap/internal/arpsvc"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
)

// readBufLen is the size of the frame read buffer.  ARP frames are far
// smaller, but the socket delivers whole frames.
const readBufLen = 1500

// Conn is an ARP capture device on top of an AF_PACKET socket.
type Conn struct {
	logger *slog.Logger
	conn   *packet.Conn
	mac    net.HardwareAddr
}

// type check
var _ arpsvc.Device = (*Conn)(nil)

// Open opens the network interface named by conf for ARP capture and
// injection.  conf must not be nil and must be valid.
func Open(conf *Config) (c *Conn, err error) {
	defer func() { err = errors.Annotate(err, "netdev: opening %q: %w", conf.Interface) }()

	err = conf.Validate()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	iface, err := net.InterfaceByName(conf.Interface)
	if err != nil {
		return nil, err
	}

	pc, err := packet.Listen(iface, packet.Raw, int(ethernet.EtherTypeARP), nil)
	if err != nil {
		return nil, fmt.Errorf("listening: %w", err)
	}

	err = pc.SetPromiscuous(true)
	if err != nil {
		return nil, errors.WithDeferred(fmt.Errorf("promiscuous mode: %w", err), pc.Close())
	}

	return &Conn{
		logger: conf.Logger,
		conn:   pc,
		mac:    slices.Clone(iface.HardwareAddr),
	}, nil
}

// Close implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) Close() (err error) {
	return c.conn.Close()
}

// HardwareAddr implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) HardwareAddr() (mac net.HardwareAddr) {
	return slices.Clone(c.mac)
}

// ReadPacket implements the [arpsvc.Device] interface for *Conn.  It strips
// the Ethernet framing and returns the ARP payload.  Reads from a closed
// device return [net.ErrClosed].
func (c *Conn) ReadPacket() (data []byte, when time.Time, err error) {
	buf := make([]byte, readBufLen)
	for {
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) {
				err = net.ErrClosed
			}

			return nil, time.Time{}, err
		}

		when = time.Now()

		f := &ethernet.Frame{}
		err = f.UnmarshalBinary(buf[:n])
		if err != nil {
			// Keep reading.  Truncated frames from the wire are not the
			// caller's concern.
			c.logger.Debug("bad ethernet frame", slogutil.KeyError, err)

			continue
		}

		return f.Payload, when, nil
	}
}

// WritePacket implements the [arpsvc.Device] interface for *Conn.
func (c *Conn) WritePacket(data []byte, dst net.HardwareAddr) (err error) {
	f := &ethernet.Frame{
		Destination: dst,
		Source:      c.mac,
		EtherType:   ethernet.EtherTypeARP,
		Payload:     data,
	}

	b, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("netdev: framing reply: %w", err)
	}

	_, err = c.conn.WriteTo(b, &packet.Addr{HardwareAddr: dst})
	if err != nil {
		return fmt.Errorf("netdev: sending frame: %w", err)
	}

	return nil
}
