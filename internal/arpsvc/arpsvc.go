// Package arpsvc contains the flytrap ARP service.  It reads captured ARP
// packets from a capture device, keeps the neighbor table up to date, and
// answers requests for addresses the table has decided to claim.
package arpsvc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/KEYinternational/flytrap/internal/arptable"
)

// Device provides reading captured ARP payloads from a network interface and
// transmitting replies.  Framing, capture, and injection belong to the
// implementation; the service only deals in ARP payload bytes.
//
// See [netdev.Open] for the Linux implementation.
type Device interface {
	// No methods of a device should be called after Close.  Close unblocks a
	// pending ReadPacket.
	io.Closer

	// HardwareAddr returns the hardware address replies are sent from.
	HardwareAddr() (mac net.HardwareAddr)

	// ReadPacket blocks until the next ARP payload is captured and returns it
	// along with its capture time.
	ReadPacket() (data []byte, when time.Time, err error)

	// WritePacket frames the ARP payload data and transmits it to dst.
	WritePacket(data []byte, dst net.HardwareAddr) (err error)
}

// Empty is a [Device] implementation that does nothing.  Its ReadPacket
// always reports a closed device.
type Empty struct{}

// type check
var _ Device = Empty{}

// Close implements the [Device] interface for Empty.
func (Empty) Close() (err error) { return nil }

// HardwareAddr implements the [Device] interface for Empty.
func (Empty) HardwareAddr() (mac net.HardwareAddr) { return nil }

// ReadPacket implements the [Device] interface for Empty.
func (Empty) ReadPacket() (data []byte, when time.Time, err error) {
	return nil, time.Time{}, net.ErrClosed
}

// WritePacket implements the [Device] interface for Empty.
func (Empty) WritePacket(_ []byte, _ net.HardwareAddr) (err error) { return nil }

// Config is the configuration for the ARP service.
type Config struct {
	// Logger is used to log the processing of packets.  It must not be nil.
	Logger *slog.Logger

	// Device is the capture device to read packets from and send replies to.
	// It must not be nil.
	Device Device

	// Table is the neighbor table driven by the captured packets.  It must
	// not be nil.
	Table *arptable.Table

	// Scope optionally limits the addresses the service cares about.
	// Requests for targets outside of it are ignored.  If nil, all targets
	// are in scope.
	Scope Scope
}

// Scope decides whether a target address is of interest.  *ip4set.Set
// implements it.
type Scope interface {
	// Contains returns true if ip is in scope.
	Contains(ip netip.Addr) (ok bool)
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotNil("Logger", conf.Logger),
		validate.NotNilInterface("Device", conf.Device),
		validate.NotNil("Table", conf.Table),
	)
}

// Service is the ARP deception service.  All packet processing happens on a
// single goroutine, so the neighbor table and the scope set need no locking.
type Service struct {
	logger *slog.Logger
	dev    Device
	table  *arptable.Table
	scope  Scope

	done chan struct{}
}

// New returns a new *Service.  conf must not be nil and must be valid.
func New(conf *Config) (svc *Service, err error) {
	err = conf.Validate()
	if err != nil {
		return nil, errors.Annotate(err, "arpsvc: config: %w")
	}

	return &Service{
		logger: conf.Logger,
		dev:    conf.Device,
		table:  conf.Table,
		scope:  conf.Scope,
		done:   make(chan struct{}),
	}, nil
}

// type check
var _ service.Interface = (*Service)(nil)

// Start implements the [service.Interface] interface for *Service.  It
// starts the processing goroutine and doesn't block.
func (svc *Service) Start(ctx context.Context) (err error) {
	go svc.run(ctx)

	return nil
}

// Shutdown implements the [service.Interface] interface for *Service.  It
// closes the capture device and waits for the processing goroutine to exit.
func (svc *Service) Shutdown(ctx context.Context) (err error) {
	err = svc.dev.Close()

	select {
	case <-svc.done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// run processes captured packets until the device is closed.
func (svc *Service) run(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, svc.logger)

	defer close(svc.done)

	for {
		data, when, err := svc.dev.ReadPacket()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				svc.logger.DebugContext(ctx, "capture device closed")

				return
			}

			svc.logger.ErrorContext(ctx, "reading packet", slogutil.KeyError, err)

			continue
		}

		err = svc.handlePacket(ctx, data, when)
		if err != nil {
			// Keep processing packets.  Errors here indicate internal
			// corruption, not bad input; bad input is dropped silently.
			svc.logger.ErrorContext(ctx, "handling packet", slogutil.KeyError, err)
		}
	}
}
