// Package portal raises and tears down the captive portal: the hotspot
// connection profile and the dnsmasq helper serving its clients.
package portal

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/dnsmasq"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// DefaultStopSettle is the pause after removing the hotspot so the radio can
// return to client mode before the next scan.
const DefaultStopSettle = time.Second

// Config describes the portal network.
type Config struct {
	SSID       string
	Passphrase string // empty for an open portal
	Gateway    net.IP
	DHCPRange  string
}

// Session is a raised portal. At most one exists at a time; the orchestrator
// owns it.
type Session struct {
	Device     wifi.Device
	Connection wifi.Connection
	helper     *dnsmasq.Process
}

// HelperPid returns the pid of the session's dnsmasq process.
func (s *Session) HelperPid() int {
	return s.helper.Pid()
}

// Manager creates and destroys portal sessions.
type Manager struct {
	nm       wifi.Manager
	launcher dnsmasq.Launcher
	config   Config
	log      zerolog.Logger

	StopSettle time.Duration
}

// NewManager creates a Manager. A nil launcher starts the real dnsmasq.
func NewManager(nm wifi.Manager, launcher dnsmasq.Launcher, config Config, log zerolog.Logger) *Manager {
	if launcher == nil {
		launcher = dnsmasq.ExecLauncher{}
	}
	return &Manager{
		nm:         nm,
		launcher:   launcher,
		config:     config,
		log:        log,
		StopSettle: DefaultStopSettle,
	}
}

// SSID returns the portal SSID.
func (m *Manager) SSID() string {
	return m.config.SSID
}

// Raise creates the hotspot profile on device and starts dnsmasq bound to the
// same interface. Both must succeed; if dnsmasq cannot start the hotspot is
// removed again before the error is returned.
func (m *Manager) Raise(ctx context.Context, device wifi.Device) (*Session, error) {
	m.log.Info().Str("ssid", m.config.SSID).Msg("Starting access point")

	conn, err := m.nm.CreateHotspot(ctx, device, m.config.SSID, m.config.Passphrase, m.config.Gateway)
	if err != nil {
		return nil, apperr.New(apperr.KindCreatePortal, err).WithSSID(m.config.SSID)
	}
	m.log.Info().
		Str("ssid", m.config.SSID).
		Bool("secured", m.config.Passphrase != "").
		Msg("Access point created")

	helper, err := dnsmasq.Start(m.launcher, dnsmasq.Options{
		Interface: device.Interface,
		Gateway:   m.config.Gateway,
		DHCPRange: m.config.DHCPRange,
	})
	if err != nil {
		m.removeProfile(ctx, conn)
		return nil, apperr.New(apperr.KindStartHelper, err).WithInterface(device.Interface)
	}
	m.log.Debug().Int("pid", helper.Pid()).Msg("dnsmasq started")

	return &Session{Device: device, Connection: conn, helper: helper}, nil
}

// Stop terminates dnsmasq and deactivates and deletes the hotspot profile.
// Every step is attempted; failures are logged and never returned. A nil
// session is a no-op.
func (m *Manager) Stop(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	m.log.Info().Str("ssid", m.config.SSID).Msg("Stopping access point")

	if s.helper != nil {
		if err := s.helper.Stop(); err != nil {
			m.log.Error().Err(err).Msg("Stopping dnsmasq failed")
		}
	}

	m.removeProfile(ctx, s.Connection)

	if m.StopSettle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(m.StopSettle):
		}
	}
	m.log.Info().Str("ssid", m.config.SSID).Msg("Access point stopped")
}

func (m *Manager) removeProfile(ctx context.Context, conn wifi.Connection) {
	if err := m.nm.DeactivateConnection(ctx, conn); err != nil {
		m.log.Error().Err(err).Str("ssid", conn.SSID).Msg("Deactivating access point failed")
	}
	if err := m.nm.DeleteConnection(ctx, conn); err != nil {
		m.log.Error().Err(err).Str("ssid", conn.SSID).Msg("Deleting access point failed")
	}
}
