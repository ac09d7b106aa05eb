package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/KEYinternational/flytrap/internal/ip4set"
)

// signalHandler processes incoming signals: dump requests write the known
// address ranges to the configured dump file, shutdown signals stop the
// service.
type signalHandler struct {
	logger *slog.Logger
	conf   *config

	// scope is the set dumped on a dump request.  May be nil.
	scope *ip4set.Set

	// shutdown stops the ARP service.
	shutdown func(ctx context.Context) (err error)
}

// handle processes OS signals until a shutdown signal arrives, and returns
// the status to exit with.
func (h *signalHandler) handle(ctx context.Context) (status int) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, handledSignals()...)

	for sig := range ch {
		h.logger.InfoContext(ctx, "received signal", "signal", sig.String())

		if isDumpSignal(sig) {
			h.dump(ctx)

			continue
		}

		h.dump(ctx)

		return h.stop(ctx)
	}

	return osutil.ExitCodeSuccess
}

// dump writes the known address ranges to the configured dump file, if both
// a dump file and a scope are configured.
func (h *signalHandler) dump(ctx context.Context) {
	if h.conf.DumpFile == "" || h.scope == nil {
		return
	}

	err := h.scope.DumpFile(h.conf.DumpFile)
	if err != nil {
		h.logger.ErrorContext(ctx, "dumping ranges", slogutil.KeyError, err)

		return
	}

	h.logger.InfoContext(ctx, "dumped ranges", "path", h.conf.DumpFile)
}

// stop shuts the service down and returns the status to exit with.
func (h *signalHandler) stop(ctx context.Context) (status int) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := h.shutdown(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "shutting down", slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	h.logger.InfoContext(ctx, "exiting")

	return osutil.ExitCodeSuccess
}
