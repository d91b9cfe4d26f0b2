// Package wifi provides access to the NetworkManager service for a single
// wireless device: discovery, scanning, hotspot and client connections.
package wifi

import (
	"context"
	"net"
	"strings"
	"time"
)

// DeviceType is the NetworkManager device type as reported by nmcli.
type DeviceType string

const (
	DeviceTypeWiFi     DeviceType = "wifi"
	DeviceTypeEthernet DeviceType = "ethernet"
	DeviceTypeLoopback DeviceType = "loopback"
)

// Device is a handle to one network interface.
type Device struct {
	Interface string
	Type      DeviceType
}

// IsWiFi reports whether the device is a wireless device.
func (d Device) IsWiFi() bool {
	return d.Type == DeviceTypeWiFi
}

// DeviceState mirrors NetworkManager's NMDeviceState values.
type DeviceState int

const (
	DeviceStateUnknown      DeviceState = 0
	DeviceStateUnmanaged    DeviceState = 10
	DeviceStateUnavailable  DeviceState = 20
	DeviceStateDisconnected DeviceState = 30
	DeviceStatePrepare      DeviceState = 40
	DeviceStateConfig       DeviceState = 50
	DeviceStateNeedAuth     DeviceState = 60
	DeviceStateIPConfig     DeviceState = 70
	DeviceStateIPCheck      DeviceState = 80
	DeviceStateSecondaries  DeviceState = 90
	DeviceStateActivated    DeviceState = 100
	DeviceStateDeactivating DeviceState = 110
	DeviceStateFailed       DeviceState = 120
)

// Security is a set of security flags advertised by an access point.
type Security uint8

const (
	SecurityNone Security = 0
	SecurityWEP  Security = 1 << iota
	SecurityWPA
	SecurityWPA2
	SecurityEnterprise
)

// Has reports whether every flag in f is set.
func (s Security) Has(f Security) bool {
	return s&f == f && f != 0
}

// Class projects the flags onto the public security classes, in order of
// precedence: enterprise, wpa, wep, none.
func (s Security) Class() string {
	switch {
	case s.Has(SecurityEnterprise):
		return "enterprise"
	case s.Has(SecurityWPA2), s.Has(SecurityWPA):
		return "wpa"
	case s.Has(SecurityWEP):
		return "wep"
	default:
		return "none"
	}
}

// AccessPoint is a snapshot of a visible network.
type AccessPoint struct {
	SSID     string
	Security Security
	Strength int
}

// CredentialKind selects the credential shape for a join attempt.
type CredentialKind int

const (
	CredentialsNone CredentialKind = iota
	CredentialsWEP
	CredentialsWPA
	CredentialsEnterprise
)

// Credentials holds what a join attempt supplies. Identity is only used for
// enterprise networks.
type Credentials struct {
	Kind       CredentialKind
	Identity   string
	Passphrase string
}

// CredentialsFor builds the credentials matching the access point's security.
func CredentialsFor(ap AccessPoint, identity, passphrase string) Credentials {
	switch {
	case ap.Security.Has(SecurityEnterprise):
		return Credentials{Kind: CredentialsEnterprise, Identity: identity, Passphrase: passphrase}
	case ap.Security.Has(SecurityWPA2), ap.Security.Has(SecurityWPA):
		return Credentials{Kind: CredentialsWPA, Passphrase: passphrase}
	case ap.Security.Has(SecurityWEP):
		return Credentials{Kind: CredentialsWEP, Passphrase: passphrase}
	default:
		return Credentials{Kind: CredentialsNone}
	}
}

// Connection type and wireless modes used by NetworkManager profiles.
const (
	ConnectionTypeWireless = "802-11-wireless"
	WirelessModeAP         = "ap"
)

// Connection is a NetworkManager connection profile.
type Connection struct {
	UUID string
	ID   string
	Type string
	SSID string
	Mode string
}

// IsWireless reports whether the profile is a WiFi profile.
func (c Connection) IsWireless() bool {
	return c.Type == ConnectionTypeWireless
}

// IsAccessPoint reports whether the profile is a WiFi hotspot profile.
func (c Connection) IsAccessPoint() bool {
	return c.IsWireless() && c.Mode == WirelessModeAP
}

// ConnectionState is the activation state of a connection.
type ConnectionState string

const (
	ConnectionStateUnknown      ConnectionState = "unknown"
	ConnectionStateActivating   ConnectionState = "activating"
	ConnectionStateActivated    ConnectionState = "activated"
	ConnectionStateDeactivating ConnectionState = "deactivating"
	ConnectionStateDeactivated  ConnectionState = "deactivated"
)

func parseConnectionState(s string) ConnectionState {
	switch ConnectionState(strings.ToLower(strings.TrimSpace(s))) {
	case ConnectionStateActivating:
		return ConnectionStateActivating
	case ConnectionStateActivated:
		return ConnectionStateActivated
	case ConnectionStateDeactivating:
		return ConnectionStateDeactivating
	case ConnectionStateDeactivated, "":
		return ConnectionStateDeactivated
	default:
		return ConnectionStateUnknown
	}
}

// Connectivity is NetworkManager's Internet connectivity indicator.
type Connectivity string

const (
	ConnectivityUnknown Connectivity = "unknown"
	ConnectivityNone    Connectivity = "none"
	ConnectivityPortal  Connectivity = "portal"
	ConnectivityLimited Connectivity = "limited"
	ConnectivityFull    Connectivity = "full"
)

// Reachable reports full or limited connectivity.
func (c Connectivity) Reachable() bool {
	return c == ConnectivityFull || c == ConnectivityLimited
}

// ServiceState is the systemd state of the NetworkManager unit.
type ServiceState string

const (
	ServiceStateActive       ServiceState = "active"
	ServiceStateReloading    ServiceState = "reloading"
	ServiceStateInactive     ServiceState = "inactive"
	ServiceStateFailed       ServiceState = "failed"
	ServiceStateActivating   ServiceState = "activating"
	ServiceStateDeactivating ServiceState = "deactivating"
)

// Manager is the narrow NetworkManager capability the daemon depends on.
type Manager interface {
	ServiceState(ctx context.Context) (ServiceState, error)
	StartService(ctx context.Context, timeout time.Duration) (ServiceState, error)

	Devices(ctx context.Context) ([]Device, error)
	DeviceByInterface(ctx context.Context, iface string) (Device, error)
	DeviceState(ctx context.Context, device Device) (DeviceState, error)

	RequestScan(ctx context.Context, device Device) error
	AccessPoints(ctx context.Context, device Device) ([]AccessPoint, error)

	Connections(ctx context.Context) ([]Connection, error)
	CreateHotspot(ctx context.Context, device Device, ssid, passphrase string, gateway net.IP) (Connection, error)
	Connect(ctx context.Context, device Device, ap AccessPoint, creds Credentials) (Connection, ConnectionState, error)
	DeactivateConnection(ctx context.Context, conn Connection) error
	DeleteConnection(ctx context.Context, conn Connection) error

	Connectivity(ctx context.Context) (Connectivity, error)
}

// CommandExecutor interface for executing shell commands (for testing).
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}
