// Package netdev provides the capture device the ARP service reads from and
// replies through.  On Linux it is an AF_PACKET socket bound to a network
// interface and filtered to the ARP EtherType; on other systems opening a
// device is not supported.
package netdev

import (
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// Config is the configuration for a capture device.
type Config struct {
	// Logger is used to log frame-level noise.  It must not be nil.
	Logger *slog.Logger

	// Interface is the name of the network interface to capture on.  It must
	// not be empty.
	Interface string
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
		validate.NotEmpty("Interface", conf.Interface),
	)
}
