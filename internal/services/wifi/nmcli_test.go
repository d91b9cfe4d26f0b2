package wifi

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor implements CommandExecutor for testing.
type mockExecutor struct {
	responses map[string][]byte
	errors    map[string]error
	calls     []string
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		responses: make(map[string][]byte),
		errors:    make(map[string]error),
		calls:     []string{},
	}
}

func (m *mockExecutor) Execute(_ context.Context, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	m.calls = append(m.calls, key)

	if err, ok := m.errors[key]; ok {
		return m.responses[key], err
	}

	if resp, ok := m.responses[key]; ok {
		return resp, nil
	}

	// Return empty response by default
	return []byte{}, nil
}

func (m *mockExecutor) setResponse(cmd string, response string) {
	m.responses[cmd] = []byte(response)
}

func (m *mockExecutor) setError(cmd string, err error) {
	m.errors[cmd] = err
}

func (m *mockExecutor) called(prefix string) bool {
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

var wlan0 = Device{Interface: "wlan0", Type: DeviceTypeWiFi}

func TestSplitTerse(t *testing.T) {
	assert.Equal(t, []string{"My:Net", "WPA2", "70"}, splitTerse(`My\:Net:WPA2:70`))
	assert.Equal(t, []string{`back\slash`, "", "5"}, splitTerse(`back\\slash::5`))
	assert.Equal(t, []string{"single"}, splitTerse("single"))
}

func TestParseSecurity(t *testing.T) {
	tests := map[string]string{
		"":            "none",
		"--":          "none",
		"WEP":         "wep",
		"WPA1":        "wpa",
		"WPA2":        "wpa",
		"WPA1 WPA2":   "wpa",
		"WPA3":        "wpa",
		"WPA2 802.1X": "enterprise",
		"802.1X":      "enterprise",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseSecurity(in).Class(), "security %q", in)
	}
}

func TestCredentialsFor(t *testing.T) {
	ent := CredentialsFor(AccessPoint{Security: SecurityWPA2 | SecurityEnterprise}, "alice", "pw")
	assert.Equal(t, Credentials{Kind: CredentialsEnterprise, Identity: "alice", Passphrase: "pw"}, ent)

	wpa := CredentialsFor(AccessPoint{Security: SecurityWPA}, "alice", "pw")
	assert.Equal(t, Credentials{Kind: CredentialsWPA, Passphrase: "pw"}, wpa)

	wep := CredentialsFor(AccessPoint{Security: SecurityWEP}, "", "abcde")
	assert.Equal(t, Credentials{Kind: CredentialsWEP, Passphrase: "abcde"}, wep)

	open := CredentialsFor(AccessPoint{}, "alice", "pw")
	assert.Equal(t, Credentials{Kind: CredentialsNone}, open)
}

func TestServiceState(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	ctx := context.Background()

	mock.setResponse("systemctl is-active NetworkManager", "active\n")
	state, err := n.ServiceState(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServiceStateActive, state)

	// Non-zero exit still carries the state
	mock.setResponse("systemctl is-active NetworkManager", "inactive\n")
	mock.setError("systemctl is-active NetworkManager", errors.New("exit status 3"))
	state, err = n.ServiceState(ctx)
	require.NoError(t, err)
	assert.Equal(t, ServiceStateInactive, state)

	mock.setResponse("systemctl is-active NetworkManager", "")
	_, err = n.ServiceState(ctx)
	assert.Error(t, err)
}

func TestStartService(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)

	mock.setResponse("systemctl is-active NetworkManager", "active")
	state, err := n.StartService(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, ServiceStateActive, state)
	assert.True(t, mock.called("systemctl start NetworkManager"))

	mock.setError("systemctl start NetworkManager", errors.New("denied"))
	_, err = n.StartService(context.Background(), time.Second)
	assert.Error(t, err)
}

func TestDevices(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	mock.setResponse("nmcli -t -f DEVICE,TYPE device status", "eth0:ethernet\nwlan0:wifi\nlo:loopback\n")

	devices, err := n.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, Device{Interface: "wlan0", Type: DeviceTypeWiFi}, devices[1])

	d, err := n.DeviceByInterface(context.Background(), "eth0")
	require.NoError(t, err)
	assert.False(t, d.IsWiFi())

	_, err = n.DeviceByInterface(context.Background(), "wlan9")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestDeviceState(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	mock.setResponse("nmcli -t -f GENERAL.STATE device show wlan0", "GENERAL.STATE:100 (connected)\n")

	state, err := n.DeviceState(context.Background(), wlan0)
	require.NoError(t, err)
	assert.Equal(t, DeviceStateActivated, state)

	mock.setResponse("nmcli -t -f GENERAL.STATE device show wlan0", "GENERAL.STATE:garbage\n")
	_, err = n.DeviceState(context.Background(), wlan0)
	assert.Error(t, err)
}

func TestAccessPoints(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	mock.setResponse("nmcli -t -f SSID,SECURITY,SIGNAL device wifi list ifname wlan0 --rescan no",
		"Home:WPA2:80\nCafe\\:Free::40\nCorp:WPA2 802.1X:55\n")

	aps, err := n.AccessPoints(context.Background(), wlan0)
	require.NoError(t, err)
	require.Len(t, aps, 3)
	assert.Equal(t, AccessPoint{SSID: "Home", Security: SecurityWPA2, Strength: 80}, aps[0])
	assert.Equal(t, "Cafe:Free", aps[1].SSID)
	assert.Equal(t, "none", aps[1].Security.Class())
	assert.Equal(t, "enterprise", aps[2].Security.Class())

	mock.setError("nmcli -t -f SSID,SECURITY,SIGNAL device wifi list ifname wlan0 --rescan no", errors.New("not running"))
	_, err = n.AccessPoints(context.Background(), wlan0)
	assert.Error(t, err)
}

func TestConnections(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	mock.setResponse("nmcli -t -f NAME,UUID,TYPE connection show",
		"Wired:11111111-1111-1111-1111-111111111111:802-3-ethernet\n"+
			"Home:22222222-2222-2222-2222-222222222222:802-11-wireless\n")
	mock.setResponse("nmcli -t -f 802-11-wireless.ssid,802-11-wireless.mode connection show uuid 22222222-2222-2222-2222-222222222222",
		"802-11-wireless.ssid:Home\n802-11-wireless.mode:infrastructure\n")

	conns, err := n.Connections(context.Background())
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.False(t, conns[0].IsWireless())
	assert.Equal(t, "Home", conns[1].SSID)
	assert.False(t, conns[1].IsAccessPoint())
}

const addedHotspot = "Connection 'Portal' (33333333-3333-3333-3333-333333333333) successfully added.\n"

func TestCreateHotspot(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	add := "nmcli connection add type wifi ifname wlan0 con-name Portal autoconnect no ssid Portal " +
		"802-11-wireless.mode ap 802-11-wireless.band bg ipv4.method manual ipv4.addresses 192.168.42.1/24 ipv6.method ignore " +
		"wifi-sec.key-mgmt wpa-psk wifi-sec.proto rsn wifi-sec.pairwise ccmp wifi-sec.group ccmp wifi-sec.psk secret123"
	mock.setResponse(add, addedHotspot)

	conn, err := n.CreateHotspot(context.Background(), wlan0, "Portal", "secret123", net.ParseIP("192.168.42.1"))
	require.NoError(t, err)
	assert.Equal(t, "33333333-3333-3333-3333-333333333333", conn.UUID)
	assert.True(t, conn.IsAccessPoint())
	assert.True(t, mock.called("nmcli connection up uuid 33333333-3333-3333-3333-333333333333 ifname wlan0"))
}

func TestCreateHotspot_ActivationFailureDeletesProfile(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	add := "nmcli connection add type wifi ifname wlan0 con-name Portal autoconnect no ssid Portal " +
		"802-11-wireless.mode ap 802-11-wireless.band bg ipv4.method manual ipv4.addresses 192.168.42.1/24 ipv6.method ignore"
	mock.setResponse(add, addedHotspot)
	mock.setError("nmcli connection up uuid 33333333-3333-3333-3333-333333333333 ifname wlan0", errors.New("no AP support"))

	_, err := n.CreateHotspot(context.Background(), wlan0, "Portal", "", net.ParseIP("192.168.42.1"))
	require.Error(t, err)
	assert.True(t, mock.called("nmcli connection delete uuid 33333333-3333-3333-3333-333333333333"))
}

func TestConnect(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	uuid := "44444444-4444-4444-4444-444444444444"
	mock.setResponse("nmcli connection add type wifi ifname wlan0 con-name Home ssid Home wifi-sec.key-mgmt wpa-psk wifi-sec.psk pw123456",
		"Connection 'Home' ("+uuid+") successfully added.")
	mock.setResponse("nmcli -t -f GENERAL.STATE connection show uuid "+uuid, "GENERAL.STATE:activated\n")

	ap := AccessPoint{SSID: "Home", Security: SecurityWPA2}
	conn, state, err := n.Connect(context.Background(), wlan0, ap, CredentialsFor(ap, "", "pw123456"))
	require.NoError(t, err)
	assert.Equal(t, uuid, conn.UUID)
	assert.Equal(t, ConnectionStateActivated, state)
	assert.True(t, mock.called("nmcli --wait 30 connection up uuid "+uuid))
}

func TestConnect_ActivationFailure(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	uuid := "55555555-5555-5555-5555-555555555555"
	mock.setResponse("nmcli connection add type wifi ifname wlan0 con-name Open ssid Open",
		"Connection 'Open' ("+uuid+") successfully added.")
	mock.setError("nmcli --wait 30 connection up uuid "+uuid+" ifname wlan0", errors.New("timeout"))

	conn, state, err := n.Connect(context.Background(), wlan0, AccessPoint{SSID: "Open"}, Credentials{})
	require.NoError(t, err)
	assert.Equal(t, uuid, conn.UUID)
	assert.Equal(t, ConnectionStateDeactivated, state)
}

func TestConnect_EnterpriseArgsAreRedacted(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	add := "nmcli connection add type wifi ifname wlan0 con-name Corp ssid Corp wifi-sec.key-mgmt wpa-eap " +
		"802-1x.eap peap 802-1x.phase2-auth mschapv2 802-1x.identity bob 802-1x.password hunter22"
	mock.setError(add, errors.New("exit status 2"))

	ap := AccessPoint{SSID: "Corp", Security: SecurityWPA2 | SecurityEnterprise}
	_, _, err := n.Connect(context.Background(), wlan0, ap, CredentialsFor(ap, "bob", "hunter22"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter22")
	assert.Contains(t, err.Error(), "802-1x.identity bob")
}

func TestWEPKeyType(t *testing.T) {
	assert.Equal(t, "1", wepKeyType("abcde"))
	assert.Equal(t, "1", wepKeyType("0123456789"))
	assert.Equal(t, "2", wepKeyType("a long passphrase"))
}

func TestConnectivity(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)

	for out, want := range map[string]Connectivity{
		"full\n":  ConnectivityFull,
		"limited": ConnectivityLimited,
		"portal":  ConnectivityPortal,
		"none":    ConnectivityNone,
		"weird":   ConnectivityUnknown,
	} {
		mock.setResponse("nmcli networking connectivity check", out)
		c, err := n.Connectivity(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, c)
	}

	assert.True(t, ConnectivityFull.Reachable())
	assert.True(t, ConnectivityLimited.Reachable())
	assert.False(t, ConnectivityPortal.Reachable())
}

func TestDeactivateAndDelete(t *testing.T) {
	mock := newMockExecutor()
	n := NewNMCLI(mock)
	conn := Connection{UUID: "66666666-6666-6666-6666-666666666666"}

	require.NoError(t, n.DeactivateConnection(context.Background(), conn))
	require.NoError(t, n.DeleteConnection(context.Background(), conn))
	assert.Equal(t, []string{
		"nmcli connection down uuid " + conn.UUID,
		"nmcli connection delete uuid " + conn.UUID,
	}, mock.calls)
}
