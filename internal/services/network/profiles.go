package network

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// ServiceStartTimeout bounds how long Init waits for NetworkManager to start.
const ServiceStartTimeout = 15 * time.Second

// Init makes sure NetworkManager is running and removes hotspot profiles left
// behind by a previous run.
func Init(ctx context.Context, nm wifi.Manager, log zerolog.Logger) error {
	if err := EnsureService(ctx, nm, log); err != nil {
		return err
	}
	if err := DeleteAccessPointProfiles(ctx, nm, log); err != nil {
		return apperr.New(apperr.KindDeleteAccessPoint, err)
	}
	return nil
}

// EnsureService starts NetworkManager if it is not active. A failure to read
// the service state is only logged; some systems run NetworkManager outside systemd.
func EnsureService(ctx context.Context, nm wifi.Manager, log zerolog.Logger) error {
	state, err := nm.ServiceState(ctx)
	if err != nil {
		log.Info().Err(err).Msg("Cannot get the NetworkManager service state")
		return nil
	}

	if state == wifi.ServiceStateActive {
		log.Debug().Msg("NetworkManager service already running")
		return nil
	}

	state, err = nm.StartService(ctx, ServiceStartTimeout)
	if err != nil {
		return apperr.New(apperr.KindStartNetworkManager, err)
	}
	if state != wifi.ServiceStateActive {
		return apperr.New(apperr.KindStartNetworkManager, nil)
	}
	log.Info().Msg("NetworkManager service started successfully")
	return nil
}

// HasConnectionDefined reports whether any non-hotspot WiFi profile exists.
func HasConnectionDefined(ctx context.Context, nm wifi.Manager) (bool, error) {
	conns, err := nm.Connections(ctx)
	if err != nil {
		return false, apperr.New(apperr.KindListConnections, err)
	}
	for _, c := range conns {
		if c.IsWireless() && !c.IsAccessPoint() {
			return true, nil
		}
	}
	return false, nil
}

// DeleteAccessPointProfiles deletes every WiFi hotspot profile.
func DeleteAccessPointProfiles(ctx context.Context, nm wifi.Manager, log zerolog.Logger) error {
	conns, err := nm.Connections(ctx)
	if err != nil {
		return err
	}
	for _, c := range conns {
		if !c.IsAccessPoint() {
			continue
		}
		log.Debug().Str("ssid", c.SSID).Msg("Deleting access point connection profile")
		if err := nm.DeleteConnection(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// DeleteConnectionIfExists deletes every WiFi profile for ssid. Errors are logged.
func DeleteConnectionIfExists(ctx context.Context, nm wifi.Manager, ssid string, log zerolog.Logger) {
	conns, err := nm.Connections(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Getting existing connections failed")
		return
	}

	for _, c := range conns {
		if !c.IsWireless() || c.SSID != ssid {
			continue
		}
		log.Info().Str("ssid", ssid).Msg("Deleting existing WiFi connection")
		if err := nm.DeleteConnection(ctx, c); err != nil {
			log.Error().Err(err).Str("ssid", ssid).Msg("Deleting existing WiFi connection failed")
		}
	}
}
