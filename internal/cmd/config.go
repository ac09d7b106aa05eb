package cmd

import (
	"cmp"
	"fmt"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"gopkg.in/yaml.v3"
)

// config is the on-disk configuration of flytrap.
type config struct {
	// Interface is the name of the network interface to watch.
	Interface string `yaml:"interface"`

	// Scope and ScopeFile describe the address space flytrap cares about,
	// inline and as a path to a list file.  With neither set, every target
	// address is in scope.
	Scope     []string `yaml:"scope"`
	ScopeFile string   `yaml:"scope_file"`

	// Exclude and ExcludeFile describe the addresses flytrap must never
	// claim, inline and as a path to a list file.
	Exclude     []string `yaml:"exclude"`
	ExcludeFile string   `yaml:"exclude_file"`

	// DumpFile is the path to which the known address ranges are dumped on
	// SIGUSR1 and on shutdown.  Empty disables dumping.
	DumpFile string `yaml:"dump_file"`

	// Aggregate configures the address-set trie.
	Aggregate aggregateConfig `yaml:"aggregate"`

	// Claim configures the claiming state machine.
	Claim claimConfig `yaml:"claim"`

	// Log configures logging.
	Log logConfig `yaml:"log"`
}

// aggregateConfig configures the address-set trie.  Zero values mean the
// defaults of [ip4set.Config].
type aggregateConfig struct {
	// BitsPerLevel is the number of address bits consumed per trie level.
	BitsPerLevel uint8 `yaml:"bits_per_level"`

	// MinPrefixLen is the minimum prefix length for range splitting.
	MinPrefixLen uint8 `yaml:"min_prefix_len"`

	// MaxPrefixLen is the maximum prefix length; finer ranges are rounded up.
	MaxPrefixLen uint8 `yaml:"max_prefix_len"`
}

// claimConfig configures the claiming state machine.  Zero values mean the
// defaults of [arptable.Config].
type claimConfig struct {
	// ProbeCount is the number of requests required before claiming.
	ProbeCount uint `yaml:"probe_count"`

	// ProbeWindow is the minimum time the requests must span.
	ProbeWindow timeutil.Duration `yaml:"probe_window"`

	// StaleGap is the request gap after which the window restarts.
	StaleGap timeutil.Duration `yaml:"stale_gap"`
}

// logConfig configures logging.
type logConfig struct {
	// File is the path to the log file.  Empty means stderr.
	File string `yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes before it gets
	// rotated.
	MaxSize int `yaml:"max_size"`

	// MaxBackups is the maximum number of rotated log files to keep.
	MaxBackups int `yaml:"max_backups"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"verbose"`
}

// readConfig reads the configuration file named by opts, if any, and applies
// the command-line overrides.  Without a configuration file the defaults are
// used.
func readConfig(opts *options) (conf *config, err error) {
	defer func() { err = errors.Annotate(err, "configuration: %w") }()

	conf = &config{}

	if opts.confFile != "" {
		var data []byte
		data, err = os.ReadFile(opts.confFile)
		if err != nil {
			return nil, err
		}

		err = yaml.Unmarshal(data, conf)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", opts.confFile, err)
		}
	}

	conf.Interface = cmp.Or(opts.iface, conf.Interface)
	conf.ScopeFile = cmp.Or(opts.scopeFile, conf.ScopeFile)
	conf.ExcludeFile = cmp.Or(opts.excludeFile, conf.ExcludeFile)
	conf.Log.File = cmp.Or(opts.logFile, conf.Log.File)
	conf.Log.Verbose = conf.Log.Verbose || opts.verbose

	if conf.Interface == "" {
		return nil, errors.Error("no network interface given")
	}

	return conf, nil
}
