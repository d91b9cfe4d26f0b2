// Package supervisor turns process-level events into orchestrator commands
// and maps the final result to an exit status.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/orchestrator"
)

// Signals are the signals translated into an Exit command.
var Signals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP}

// TrapSignals forwards every received signal in Signals to commands as Exit
// until ctx is done or stop is called.
func TrapSignals(ctx context.Context, commands chan<- orchestrator.Command, log zerolog.Logger) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, Signals...)

	ctx, cancel := context.WithCancel(ctx)
	go forward(ctx, sigs, commands, log)

	return func() {
		signal.Stop(sigs)
		cancel()
	}
}

func forward(ctx context.Context, sigs <-chan os.Signal, commands chan<- orchestrator.Command, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			log.Info().Str("signal", sig.String()).Msg("Signal received, exiting")
			select {
			case commands <- orchestrator.Exit{}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ArmTimeout sends a single Timeout command after d. A non-positive d
// disables the timer.
func ArmTimeout(ctx context.Context, d time.Duration, commands chan<- orchestrator.Command, log zerolog.Logger) (stop func()) {
	if d <= 0 {
		return func() {}
	}

	log.Info().Dur("timeout", d).Msg("Activity timeout armed")
	timer := time.AfterFunc(d, func() {
		select {
		case commands <- orchestrator.Timeout{}:
		case <-ctx.Done():
		}
	})
	return func() { timer.Stop() }
}

// ExitCode maps the daemon's final error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Report logs the final outcome.
func Report(log zerolog.Logger, err error) {
	if err == nil {
		log.Info().Msg("Exiting")
		return
	}
	kind := apperr.KindOf(err)
	log.Error().Err(err).Str("kind", kind.String()).Bool("fatal", kind.Fatal()).Msg("Exiting with error")
}
