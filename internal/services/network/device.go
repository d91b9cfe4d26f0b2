// Package network implements device discovery, access point scanning,
// connectivity probing and connection-profile housekeeping on top of the
// NetworkManager capability in package wifi.
package network

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// FindDevice resolves the wireless device to use. With an interface name the
// device must exist and be a WiFi device; without one the first WiFi device
// NetworkManager reports is used.
func FindDevice(ctx context.Context, nm wifi.Manager, iface string, log zerolog.Logger) (wifi.Device, error) {
	if iface != "" {
		device, err := nm.DeviceByInterface(ctx, iface)
		if err != nil {
			return wifi.Device{}, apperr.New(apperr.KindDeviceByInterface, err).WithInterface(iface)
		}
		if !device.IsWiFi() {
			return wifi.Device{}, apperr.New(apperr.KindNotAWiFiDevice, nil).WithInterface(iface)
		}
		log.Info().Str("interface", iface).Msg("Targeted WiFi device")
		return device, nil
	}

	devices, err := nm.Devices(ctx)
	if err != nil {
		return wifi.Device{}, apperr.New(apperr.KindNoWiFiDevice, err)
	}
	for _, d := range devices {
		if d.IsWiFi() {
			log.Info().Str("interface", d.Interface).Msg("WiFi device")
			return d, nil
		}
	}
	return wifi.Device{}, apperr.New(apperr.KindNoWiFiDevice, nil)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
