package cmd

import (
	"flag"

	"github.com/AdguardTeam/golibs/errors"
)

// options contains all command-line options for the flytrap binary.
type options struct {
	// confFile is the path to the configuration file.
	confFile string

	// iface is the name of the network interface to watch.  It overrides the
	// configuration file.
	iface string

	// logFile is the path to the log file.  It overrides the configuration
	// file.
	logFile string

	// scopeFile is the path to the scope list file.  It overrides the
	// configuration file.
	scopeFile string

	// excludeFile is the path to the exclusion list file.  It overrides the
	// configuration file.
	excludeFile string

	// verbose, if true, enables verbose logging.
	verbose bool

	// version, if true, instructs flytrap to print the version to stdout and
	// quit with a successful exit code.
	version bool
}

// errPrintedHelp is returned from [parseOptions] when the options contain
// --help, since [flag] already prints the usage then.
const errPrintedHelp errors.Error = "printed help"

// parseOptions parses the command-line options for the binary named cmdName.
func parseOptions(cmdName string, args []string) (opts *options, err error) {
	opts = &options{}

	fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	fs.StringVar(&opts.confFile, "c", "", "path to the configuration file")
	fs.StringVar(&opts.iface, "i", "", "network interface to watch")
	fs.StringVar(&opts.logFile, "l", "", "path to the log file")
	fs.StringVar(&opts.scopeFile, "s", "", "path to the scope list file")
	fs.StringVar(&opts.excludeFile, "x", "", "path to the exclusion list file")
	fs.BoolVar(&opts.verbose, "v", false, "enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")

	err = fs.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errPrintedHelp
		}

		// Don't wrap the error, because flag has already printed it.
		return nil, err
	}

	return opts, nil
}
