// Package orchestrator owns the WiFi device and the captive portal. All
// network actions are serialized through a single command loop; other
// goroutines talk to it over channels.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/network"
	"github.com/bbernstein/wifi-connect/internal/services/portal"
	"github.com/bbernstein/wifi-connect/internal/services/pubsub"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// DefaultConnectivityTimeout bounds the wait for internet reachability after
// a successful join.
const DefaultConnectivityTimeout = 20 * time.Second

// Options wires the orchestrator to its collaborators.
type Options struct {
	Manager wifi.Manager
	Device  wifi.Device
	Scanner *network.Scanner
	Portal  *portal.Manager
	Probe   *network.Probe
	Events  *pubsub.PubSub // optional

	Commands  <-chan Command
	Responses chan<- Response

	ConnectivityTimeout time.Duration
	Logger              zerolog.Logger
}

// Orchestrator is the network state machine. Its fields are touched only by
// the goroutine running Run.
type Orchestrator struct {
	nm       wifi.Manager
	device   wifi.Device
	scanner  *network.Scanner
	portals  *portal.Manager
	probe    *network.Probe
	events   *pubsub.PubSub
	commands <-chan Command
	replies  chan<- Response
	timeout  time.Duration
	log      zerolog.Logger

	session      *portal.Session
	accessPoints []wifi.AccessPoint
	activated    bool
}

// New prepares the orchestrator: it raises the portal unless a client
// profile already exists and fills the access point cache with a first scan.
func New(ctx context.Context, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{
		nm:       opts.Manager,
		device:   opts.Device,
		scanner:  opts.Scanner,
		portals:  opts.Portal,
		probe:    opts.Probe,
		events:   opts.Events,
		commands: opts.Commands,
		replies:  opts.Responses,
		timeout:  opts.ConnectivityTimeout,
		log:      opts.Logger,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultConnectivityTimeout
	}

	configured, err := network.HasConnectionDefined(ctx, o.nm)
	if err != nil {
		return nil, err
	}

	if configured {
		o.log.Info().Msg("Existing WiFi connection found, portal not raised")
	} else if err := o.raisePortal(ctx); err != nil {
		return nil, err
	}

	aps, err := o.scanner.Scan(ctx, o.device)
	if err != nil {
		o.stopPortal(context.WithoutCancel(ctx))
		return nil, err
	}
	o.accessPoints = aps

	return o, nil
}

// Run processes commands until one terminates the loop, a fatal error occurs
// or ctx is cancelled. A nil return means the process should exit
// successfully. The portal is always torn down before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.stopPortal(context.WithoutCancel(ctx))

	for {
		cmd, err := o.receive(ctx)
		if err != nil {
			return err
		}

		o.log.Debug().Str("command", commandName(cmd)).Msg("Handling network command")

		done, err := o.handle(ctx, cmd)
		if err != nil {
			o.log.Error().Err(err).Str("command", commandName(cmd)).Msg("Network command failed")
			return err
		}
		if done {
			return nil
		}
	}
}

// SessionActive reports whether a portal is up. Only safe to call when Run is
// not running.
func (o *Orchestrator) SessionActive() bool {
	return o.session != nil
}

func (o *Orchestrator) receive(ctx context.Context) (Command, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cmd, ok := <-o.commands:
		if !ok {
			return nil, apperr.New(apperr.KindRecvCommand, errors.New("command channel closed"))
		}
		return cmd, nil
	}
}

func (o *Orchestrator) respond(ctx context.Context, r Response) error {
	select {
	case o.replies <- r:
		return nil
	case <-ctx.Done():
		return apperr.New(apperr.KindSendResponse, ctx.Err())
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd Command) (bool, error) {
	switch c := cmd.(type) {
	case EnableAP:
		return false, o.enable(ctx)

	case DisableAP:
		o.stopPortal(ctx)
		return false, nil

	case Current:
		state, err := o.nm.DeviceState(ctx, o.device)
		if err != nil {
			return false, apperr.New(apperr.KindDeviceState, err).WithInterface(o.device.Interface)
		}
		return false, o.respond(ctx, CurrentResponse{
			RequestID: c.RequestID,
			Status: CurrentStatus{
				APMode:    o.session == nil,
				Connected: state == wifi.DeviceStateActivated,
			},
		})

	case HasConnection:
		configured, err := network.HasConnectionDefined(ctx, o.nm)
		if err != nil {
			return false, err
		}
		return false, o.respond(ctx, HasConnectionResponse{
			RequestID: c.RequestID,
			Status:    HasConnectionStatus{Result: configured},
		})

	case Activate:
		o.activated = true
		aps, err := o.refresh(ctx)
		if err != nil {
			return false, err
		}
		return false, o.respond(ctx, NetworksResponse{
			RequestID: c.RequestID,
			Networks:  toNetworks(aps),
		})

	case Connect:
		return o.connect(ctx, c)

	case Timeout:
		if o.activated {
			o.log.Debug().Msg("Activity timeout ignored, connect flow in progress")
			return false, nil
		}
		o.log.Info().Msg("Activity timeout reached, exiting")
		return true, nil

	case Exit:
		return true, nil
	}

	return false, nil
}

func (o *Orchestrator) enable(ctx context.Context) error {
	if o.session != nil {
		return nil
	}
	if err := o.scanner.Trigger(ctx, o.device); err != nil {
		return err
	}
	return o.raisePortal(ctx)
}

// refresh rescans and returns the merged list. The cache keeps only the
// fresh scan so it cannot grow across refreshes.
func (o *Orchestrator) refresh(ctx context.Context) ([]wifi.AccessPoint, error) {
	fresh, err := o.scanner.Scan(ctx, o.device)
	if err != nil {
		return nil, err
	}
	merged := mergeAccessPoints(o.accessPoints, fresh)
	o.accessPoints = fresh
	return merged, nil
}

func (o *Orchestrator) connect(ctx context.Context, c Connect) (bool, error) {
	network.DeleteConnectionIfExists(ctx, o.nm, c.SSID, o.log)
	o.stopPortal(ctx)

	aps, err := o.refresh(ctx)
	if err != nil {
		return false, err
	}

	if ap, ok := findAccessPoint(aps, c.SSID); ok {
		if o.join(ctx, ap, c) {
			return true, nil
		}
	} else {
		o.log.Warn().Str("ssid", c.SSID).Msg("Access point not found")
		o.publishResult(c.SSID, false, "access point not found")
	}

	if err := o.raisePortal(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// join attempts the client connection and reports whether the device ended
// up activated.
func (o *Orchestrator) join(ctx context.Context, ap wifi.AccessPoint, c Connect) bool {
	creds := wifi.CredentialsFor(ap, c.Identity, c.Passphrase)

	conn, state, err := o.nm.Connect(ctx, o.device, ap, creds)
	if err != nil {
		err = apperr.New(apperr.KindConnectFailed, err).WithSSID(ap.SSID)
		o.log.Warn().Err(err).Msg("Connection attempt failed")
		o.publishResult(ap.SSID, false, err.Error())
		return false
	}

	if state == wifi.ConnectionStateActivated {
		if o.probe != nil && !o.probe.Wait(ctx, o.timeout) {
			o.log.Warn().Str("ssid", ap.SSID).Msg("Connected but internet is not reachable")
		}
		o.log.Info().Str("ssid", ap.SSID).Msg("Connected to access point")
		o.publishResult(ap.SSID, true, "")
		return true
	}

	if err := o.nm.DeleteConnection(ctx, conn); err != nil {
		o.log.Error().Err(err).Str("ssid", ap.SSID).Msg("Deleting connection profile failed")
	}
	o.log.Warn().Str("ssid", ap.SSID).Str("state", string(state)).Msg("Connection not activated")
	o.publishResult(ap.SSID, false, "connection not activated: "+string(state))
	return false
}

func (o *Orchestrator) raisePortal(ctx context.Context) error {
	session, err := o.portals.Raise(ctx, o.device)
	if err != nil {
		return err
	}
	o.session = session
	o.publishState()
	return nil
}

func (o *Orchestrator) stopPortal(ctx context.Context) {
	if o.session == nil {
		return
	}
	o.portals.Stop(ctx, o.session)
	o.session = nil
	o.publishState()
}

func (o *Orchestrator) publishState() {
	if o.events == nil {
		return
	}
	o.events.PublishAll(pubsub.TopicPortalState, PortalStateEvent{
		Active: o.session != nil,
		SSID:   o.portals.SSID(),
	})
}

func (o *Orchestrator) publishResult(ssid string, success bool, reason string) {
	if o.events == nil {
		return
	}
	o.events.Publish(pubsub.TopicConnectResult, ssid, ConnectResultEvent{
		SSID:    ssid,
		Success: success,
		Reason:  reason,
	})
}
