package wifi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// NetworkManagerUnit is the systemd unit name of NetworkManager.
	NetworkManagerUnit = "NetworkManager"
	// ConnectWait is passed to nmcli --wait when activating a client connection.
	ConnectWait = 30
	// servicePollInterval is how often StartService re-checks the unit state.
	servicePollInterval = 500 * time.Millisecond
)

// ErrDeviceNotFound is returned when no device matches the requested interface.
var ErrDeviceNotFound = errors.New("device not found")

var uuidPattern = regexp.MustCompile(`\(([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\)`)

// realExecutor implements CommandExecutor using actual commands.
type realExecutor struct{}

func (e *realExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NMCLI implements Manager on top of the nmcli and systemctl commands.
type NMCLI struct {
	executor CommandExecutor
}

// NewNMCLI creates a Manager. A nil executor runs real commands.
func NewNMCLI(executor CommandExecutor) *NMCLI {
	if executor == nil {
		executor = &realExecutor{}
	}
	return &NMCLI{executor: executor}
}

func (n *NMCLI) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	out, err := n.executor.Execute(ctx, "nmcli", args...)
	if err != nil {
		return out, fmt.Errorf("nmcli %s: %w", strings.Join(redact(args), " "), err)
	}
	return out, nil
}

// ServiceState returns the state of the NetworkManager systemd unit.
func (n *NMCLI) ServiceState(ctx context.Context) (ServiceState, error) {
	// is-active exits non-zero for anything but "active" yet still prints the state
	out, err := n.executor.Execute(ctx, "systemctl", "is-active", NetworkManagerUnit)
	state := strings.TrimSpace(string(out))
	if state == "" {
		if err == nil {
			err = errors.New("empty output")
		}
		return "", fmt.Errorf("systemctl is-active %s: %w", NetworkManagerUnit, err)
	}
	return ServiceState(state), nil
}

// StartService starts NetworkManager and waits up to timeout for it to become active.
func (n *NMCLI) StartService(ctx context.Context, timeout time.Duration) (ServiceState, error) {
	if _, err := n.executor.Execute(ctx, "systemctl", "start", NetworkManagerUnit); err != nil {
		return "", fmt.Errorf("systemctl start %s: %w", NetworkManagerUnit, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		state, err := n.ServiceState(ctx)
		if err != nil {
			return "", err
		}
		if state == ServiceStateActive || !time.Now().Before(deadline) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(servicePollInterval):
		}
	}
}

// Devices lists all devices known to NetworkManager.
func (n *NMCLI) Devices(ctx context.Context) ([]Device, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "DEVICE,TYPE", "device", "status")
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, fields := range parseTerse(out) {
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		devices = append(devices, Device{Interface: fields[0], Type: DeviceType(fields[1])})
	}
	return devices, nil
}

// DeviceByInterface looks up the device bound to iface.
func (n *NMCLI) DeviceByInterface(ctx context.Context, iface string) (Device, error) {
	devices, err := n.Devices(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Interface == iface {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, iface)
}

// DeviceState returns the live state of device.
func (n *NMCLI) DeviceState(ctx context.Context, device Device) (DeviceState, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "GENERAL.STATE", "device", "show", device.Interface)
	if err != nil {
		return DeviceStateUnknown, err
	}

	// GENERAL.STATE:100 (connected)
	value := fieldValue(out, "GENERAL.STATE")
	code, _, _ := strings.Cut(value, " ")
	state, err := strconv.Atoi(code)
	if err != nil {
		return DeviceStateUnknown, fmt.Errorf("unexpected device state %q", value)
	}
	return DeviceState(state), nil
}

// RequestScan asks NetworkManager to rescan. It fails when a scan is already running.
func (n *NMCLI) RequestScan(ctx context.Context, device Device) error {
	_, err := n.nmcli(ctx, "device", "wifi", "rescan", "ifname", device.Interface)
	return err
}

// AccessPoints returns the access points NetworkManager currently sees, one per BSSID.
func (n *NMCLI) AccessPoints(ctx context.Context, device Device) ([]AccessPoint, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "SSID,SECURITY,SIGNAL", "device", "wifi", "list", "ifname", device.Interface, "--rescan", "no")
	if err != nil {
		return nil, err
	}

	var aps []AccessPoint
	for _, fields := range parseTerse(out) {
		if len(fields) < 3 {
			continue
		}
		signal, _ := strconv.Atoi(fields[2])
		aps = append(aps, AccessPoint{
			SSID:     fields[0],
			Security: parseSecurity(fields[1]),
			Strength: signal,
		})
	}
	return aps, nil
}

// parseSecurity converts the nmcli SECURITY column to Security flags.
func parseSecurity(security string) Security {
	var s Security
	for _, token := range strings.Fields(strings.ToUpper(security)) {
		switch {
		case token == "802.1X":
			s |= SecurityEnterprise
		case token == "WEP":
			s |= SecurityWEP
		case token == "WPA1", token == "WPA":
			s |= SecurityWPA
		case strings.HasPrefix(token, "WPA"):
			s |= SecurityWPA2
		}
	}
	return s
}

// Connections lists every connection profile, with SSID and mode filled in
// for wireless profiles.
func (n *NMCLI) Connections(ctx context.Context) ([]Connection, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "NAME,UUID,TYPE", "connection", "show")
	if err != nil {
		return nil, err
	}

	var conns []Connection
	for _, fields := range parseTerse(out) {
		if len(fields) < 3 {
			continue
		}
		conn := Connection{ID: fields[0], UUID: fields[1], Type: fields[2]}
		if conn.IsWireless() {
			details, err := n.nmcli(ctx, "-t", "-f", "802-11-wireless.ssid,802-11-wireless.mode", "connection", "show", "uuid", conn.UUID)
			if err != nil {
				return nil, err
			}
			conn.SSID = fieldValue(details, "802-11-wireless.ssid")
			conn.Mode = fieldValue(details, "802-11-wireless.mode")
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// CreateHotspot creates and activates an access point profile on device. The
// profile is removed again if it cannot be activated.
func (n *NMCLI) CreateHotspot(ctx context.Context, device Device, ssid, passphrase string, gateway net.IP) (Connection, error) {
	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", device.Interface,
		"con-name", ssid,
		"autoconnect", "no",
		"ssid", ssid,
		"802-11-wireless.mode", WirelessModeAP,
		"802-11-wireless.band", "bg",
		"ipv4.method", "manual",
		"ipv4.addresses", gateway.String() + "/24",
		"ipv6.method", "ignore",
	}
	if passphrase != "" {
		args = append(args,
			"wifi-sec.key-mgmt", "wpa-psk",
			"wifi-sec.proto", "rsn",
			"wifi-sec.pairwise", "ccmp",
			"wifi-sec.group", "ccmp",
			"wifi-sec.psk", passphrase,
		)
	}

	conn, err := n.addConnection(ctx, args)
	if err != nil {
		return Connection{}, err
	}
	conn.SSID = ssid
	conn.Mode = WirelessModeAP

	if _, err := n.nmcli(ctx, "connection", "up", "uuid", conn.UUID, "ifname", device.Interface); err != nil {
		_ = n.DeleteConnection(ctx, conn)
		return Connection{}, err
	}
	return conn, nil
}

// Connect creates a client profile for ap and tries to activate it. A failed
// activation is not an error: the returned state tells the caller what happened
// and the profile is left for the caller to delete.
func (n *NMCLI) Connect(ctx context.Context, device Device, ap AccessPoint, creds Credentials) (Connection, ConnectionState, error) {
	args := []string{
		"connection", "add",
		"type", "wifi",
		"ifname", device.Interface,
		"con-name", ap.SSID,
		"ssid", ap.SSID,
	}
	args = append(args, credentialArgs(creds)...)

	conn, err := n.addConnection(ctx, args)
	if err != nil {
		return Connection{}, ConnectionStateUnknown, err
	}
	conn.SSID = ap.SSID

	if _, err := n.nmcli(ctx, "--wait", strconv.Itoa(ConnectWait), "connection", "up", "uuid", conn.UUID, "ifname", device.Interface); err != nil {
		state, stateErr := n.connectionState(ctx, conn)
		if stateErr != nil {
			state = ConnectionStateDeactivated
		}
		return conn, state, nil
	}

	state, err := n.connectionState(ctx, conn)
	if err != nil {
		// "up" only returns success once the connection is activated
		state = ConnectionStateActivated
	}
	return conn, state, nil
}

func credentialArgs(creds Credentials) []string {
	switch creds.Kind {
	case CredentialsEnterprise:
		return []string{
			"wifi-sec.key-mgmt", "wpa-eap",
			"802-1x.eap", "peap",
			"802-1x.phase2-auth", "mschapv2",
			"802-1x.identity", creds.Identity,
			"802-1x.password", creds.Passphrase,
		}
	case CredentialsWPA:
		return []string{"wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", creds.Passphrase}
	case CredentialsWEP:
		return []string{
			"wifi-sec.key-mgmt", "none",
			"wifi-sec.wep-key-type", wepKeyType(creds.Passphrase),
			"wifi-sec.wep-key0", creds.Passphrase,
		}
	default:
		return nil
	}
}

// wepKeyType returns "1" for raw 40/104-bit keys and "2" for passphrases.
func wepKeyType(key string) string {
	switch len(key) {
	case 5, 10, 13, 26:
		return "1"
	default:
		return "2"
	}
}

func (n *NMCLI) addConnection(ctx context.Context, args []string) (Connection, error) {
	out, err := n.nmcli(ctx, args...)
	if err != nil {
		return Connection{}, err
	}

	// Connection 'name' (uuid) successfully added.
	m := uuidPattern.FindSubmatch(out)
	if m == nil {
		return Connection{}, fmt.Errorf("cannot find connection uuid in %q", strings.TrimSpace(string(out)))
	}

	var name string
	for i, arg := range args {
		if arg == "con-name" && i+1 < len(args) {
			name = args[i+1]
		}
	}
	return Connection{UUID: string(m[1]), ID: name, Type: ConnectionTypeWireless}, nil
}

func (n *NMCLI) connectionState(ctx context.Context, conn Connection) (ConnectionState, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "GENERAL.STATE", "connection", "show", "uuid", conn.UUID)
	if err != nil {
		return ConnectionStateUnknown, err
	}
	return parseConnectionState(fieldValue(out, "GENERAL.STATE")), nil
}

// DeactivateConnection takes conn down.
func (n *NMCLI) DeactivateConnection(ctx context.Context, conn Connection) error {
	_, err := n.nmcli(ctx, "connection", "down", "uuid", conn.UUID)
	return err
}

// DeleteConnection removes the profile.
func (n *NMCLI) DeleteConnection(ctx context.Context, conn Connection) error {
	_, err := n.nmcli(ctx, "connection", "delete", "uuid", conn.UUID)
	return err
}

// Connectivity asks NetworkManager to re-check and report Internet connectivity.
func (n *NMCLI) Connectivity(ctx context.Context) (Connectivity, error) {
	out, err := n.nmcli(ctx, "networking", "connectivity", "check")
	if err != nil {
		return ConnectivityUnknown, err
	}

	switch c := Connectivity(strings.TrimSpace(string(out))); c {
	case ConnectivityNone, ConnectivityPortal, ConnectivityLimited, ConnectivityFull:
		return c, nil
	default:
		return ConnectivityUnknown, nil
	}
}

// parseTerse splits nmcli terse output into fields, honouring the \: and \\
// escapes nmcli applies to values.
func parseTerse(out []byte) [][]string {
	var rows [][]string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		rows = append(rows, splitTerse(line))
	}
	return rows
}

func splitTerse(line string) []string {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			b.WriteByte(line[i])
		case c == ':':
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}

// fieldValue returns the value of key in "key:value" terse output.
func fieldValue(out []byte, key string) string {
	for _, fields := range parseTerse(out) {
		if len(fields) >= 2 && fields[0] == key {
			return strings.Join(fields[1:], ":")
		}
	}
	return ""
}

var secretArgs = map[string]bool{
	"wifi-sec.psk":      true,
	"wifi-sec.wep-key0": true,
	"802-1x.password":   true,
}

// redact hides secrets from arguments that end up in error messages.
func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i+1 < len(out); i++ {
		if secretArgs[out[i]] {
			out[i+1] = "***"
		}
	}
	return out
}
