// Package cmd is the flytrap entry point.  It parses the command-line
// options and the configuration file, assembles the capture device, the
// neighbor table, and the ARP service, and runs until told to stop.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/KEYinternational/flytrap/internal/arpsvc"
	"github.com/KEYinternational/flytrap/internal/arptable"
	"github.com/KEYinternational/flytrap/internal/ip4set"
	"github.com/KEYinternational/flytrap/internal/netdev"
	"github.com/KEYinternational/flytrap/internal/version"
)

// defaultTimeout is the timeout used for shutting the service down.
const defaultTimeout = 5 * time.Second

// Main is the entry point of flytrap.
func Main() {
	opts, err := parseOptions(os.Args[0], os.Args[1:])
	if err != nil {
		if errors.Is(err, errPrintedHelp) {
			os.Exit(osutil.ExitCodeSuccess)
		}

		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(osutil.ExitCodeArgumentError)
	}

	if opts.version {
		fmt.Println(version.Full())
		os.Exit(osutil.ExitCodeSuccess)
	}

	conf, err := readConfig(opts)
	check(err)

	logger := newLogger(conf)
	logger.Info("starting flytrap", "version", version.Version(), "pid", os.Getpid())

	ctx := context.Background()

	scope, err := newScope(conf)
	check(err)

	table, err := arptable.New(&arptable.Config{
		Logger:      logger,
		ProbeCount:  conf.Claim.ProbeCount,
		ProbeWindow: time.Duration(conf.Claim.ProbeWindow),
		StaleGap:    time.Duration(conf.Claim.StaleGap),
	})
	check(err)

	err = reserveExcluded(conf, table)
	check(err)

	dev, err := netdev.Open(&netdev.Config{
		Logger:    logger,
		Interface: conf.Interface,
	})
	check(err)

	svcConf := &arpsvc.Config{
		Logger: logger,
		Device: dev,
		Table:  table,
	}
	if scope != nil {
		// Assign conditionally so that a nil *ip4set.Set doesn't become a
		// non-nil Scope interface value.
		svcConf.Scope = scope
	}

	svc, err := arpsvc.New(svcConf)
	check(err)

	err = svc.Start(ctx)
	check(err)

	h := &signalHandler{
		logger:   logger,
		conf:     conf,
		scope:    scope,
		shutdown: svc.Shutdown,
	}
	os.Exit(h.handle(ctx))
}

// newScope builds the scope set from the configuration.  It returns nil if no
// scope is configured, meaning every target address is of interest.
func newScope(conf *config) (s *ip4set.Set, err error) {
	defer func() { err = errors.Annotate(err, "reading scope: %w") }()

	if len(conf.Scope) == 0 && conf.ScopeFile == "" {
		return nil, nil
	}

	s, err = ip4set.New(&ip4set.Config{
		BitsPerLevel: conf.Aggregate.BitsPerLevel,
		MinPrefixLen: conf.Aggregate.MinPrefixLen,
		MaxPrefixLen: conf.Aggregate.MaxPrefixLen,
	})
	if err != nil {
		return nil, err
	}

	for _, str := range conf.Scope {
		err = s.AddString(str)
		if err != nil {
			return nil, err
		}
	}

	if conf.ScopeFile != "" {
		err = addFromFile(s, conf.ScopeFile)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// maxExcludedRange bounds the size of a single excluded range, since each
// address of it becomes a reserved record in the neighbor table.
const maxExcludedRange = 1 << 16

// reserveExcluded marks every address excluded by the configuration as
// reserved in t.
func reserveExcluded(conf *config, t *arptable.Table) (err error) {
	defer func() { err = errors.Annotate(err, "reserving excluded addresses: %w") }()

	excl, err := ip4set.New(&ip4set.Config{
		// Reserve exactly what the operator listed, with no rounding.
		MinPrefixLen: 32,
		MaxPrefixLen: 32,
	})
	if err != nil {
		return err
	}

	for _, str := range conf.Exclude {
		err = excl.AddString(str)
		if err != nil {
			return err
		}
	}

	if conf.ExcludeFile != "" {
		err = addFromFile(excl, conf.ExcludeFile)
		if err != nil {
			return err
		}
	}

	if n := excl.Count(); n > maxExcludedRange {
		return fmt.Errorf("%d addresses excluded, at most %d supported", n, maxExcludedRange)
	}

	for _, p := range excl.Ranges() {
		for ip := p.Addr(); p.Contains(ip); ip = ip.Next() {
			err = t.Reserve(ip)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// addFromFile adds the contents of the list file at path to s.
func addFromFile(s *ip4set.Set, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	return s.AddFromReader(f)
}

// check is a simple error-checking helper.  It must only be used within Main.
func check(err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(osutil.ExitCodeFailure)
	}
}
