// Package main is the entry point for the wifi-connect daemon.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bbernstein/wifi-connect/internal/api"
	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/config"
	"github.com/bbernstein/wifi-connect/internal/logger"
	"github.com/bbernstein/wifi-connect/internal/services/dnsmasq"
	"github.com/bbernstein/wifi-connect/internal/services/network"
	"github.com/bbernstein/wifi-connect/internal/services/orchestrator"
	"github.com/bbernstein/wifi-connect/internal/services/portal"
	"github.com/bbernstein/wifi-connect/internal/services/pubsub"
	"github.com/bbernstein/wifi-connect/internal/services/supervisor"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// commandBuffer is the number of commands producers may queue ahead of the
// orchestrator before they block.
const commandBuffer = 16

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log := logger.Get()
		log.Debug().Msg("No .env file found, using environment variables")
	}

	err := newRootCommand().ExecuteContext(context.Background())
	supervisor.Report(logger.Get(), err)
	os.Exit(supervisor.ExitCode(err))
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wifi-connect",
		Short: "WiFi Connect - join a WiFi network through a captive portal",
		Long: `WiFi Connect raises a WiFi access point with a captive portal when the
device has no network configured, lets a client pick a network and supply
its credentials, and exits once the device has joined it.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Debug: cfg.Debug}); err != nil {
		return apperr.New(apperr.KindConfig, err)
	}
	log := logger.WithComponent("main")
	printBanner(os.Stdout, cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan orchestrator.Command, commandBuffer)
	responses := make(chan orchestrator.Response, 1)
	events := pubsub.New()

	// Signals received during startup are queued and handled by the loop.
	stopSignals := supervisor.TrapSignals(ctx, commands, logger.WithComponent("supervisor"))
	defer stopSignals()

	nm := wifi.NewNMCLI(nil)
	networkLog := logger.WithComponent("network")

	if err := network.Init(ctx, nm, networkLog); err != nil {
		return err
	}

	device, err := network.FindDevice(ctx, nm, cfg.Interface, networkLog)
	if err != nil {
		return err
	}
	log.Info().Str("interface", device.Interface).Msg("WiFi device found")

	orch, err := orchestrator.New(ctx, orchestrator.Options{
		Manager: nm,
		Device:  device,
		Scanner: network.NewScanner(nm, cfg.SSID, networkLog),
		Portal: portal.NewManager(nm, dnsmasq.ExecLauncher{}, portal.Config{
			SSID:       cfg.SSID,
			Passphrase: cfg.PassphraseOrEmpty(),
			Gateway:    cfg.Gateway,
			DHCPRange:  cfg.DHCPRange,
		}, logger.WithComponent("portal")),
		Probe:     network.NewProbe(nm, networkLog),
		Events:    events,
		Commands:  commands,
		Responses: responses,
		Logger:    logger.WithComponent("orchestrator"),
	})
	if err != nil {
		return err
	}

	stopTimer := supervisor.ArmTimeout(ctx, cfg.ActivityTimeout, commands, logger.WithComponent("supervisor"))
	defer stopTimer()

	bridge := api.NewBridge(commands, responses, logger.WithComponent("api"))
	server := api.NewServer(api.Options{
		Address:     cfg.ListeningAt,
		Gateway:     cfg.Gateway,
		UIDirectory: cfg.UIDirectory,
		CORSOrigin:  cfg.CORSOrigin,
		Version:     Version,
		Bridge:      bridge,
		Events:      events,
		Logger:      logger.WithComponent("api"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The server follows the loop down however it ends.
		defer cancel()
		return orch.Run(gctx)
	})
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})
	return g.Wait()
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	secured := "no"
	if cfg.Passphrase != nil {
		secured = "yes"
	}
	iface := cfg.Interface
	if iface == "" {
		iface = "(autodetect)"
	}

	_, _ = fmt.Fprintln(w, "============================================")
	_, _ = fmt.Fprintln(w, "  WiFi Connect")
	_, _ = fmt.Fprintf(w, "  Version: %s\n", Version)
	_, _ = fmt.Fprintf(w, "  Build:   %s\n", BuildTime)
	_, _ = fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	_, _ = fmt.Fprintln(w, "============================================")
	_, _ = fmt.Fprintf(w, "  Interface:  %s\n", iface)
	_, _ = fmt.Fprintf(w, "  SSID:       %s\n", cfg.SSID)
	_, _ = fmt.Fprintf(w, "  Secured:    %s\n", secured)
	_, _ = fmt.Fprintf(w, "  Gateway:    %s\n", cfg.Gateway)
	_, _ = fmt.Fprintf(w, "  DHCP range: %s\n", cfg.DHCPRange)
	_, _ = fmt.Fprintf(w, "  Listening:  %s\n", cfg.ListeningAt)
	_, _ = fmt.Fprintf(w, "  UI:         %s\n", cfg.UIDirectory)
	_, _ = fmt.Fprintln(w, "============================================")
}
