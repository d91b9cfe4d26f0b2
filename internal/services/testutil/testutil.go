// Package testutil provides shared fakes of the NetworkManager service and the
// helper process launcher for package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bbernstein/wifi-connect/internal/services/dnsmasq"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// ErrService is a generic service failure for tests.
var ErrService = errors.New("service failure")

// FakeManager is an in-memory wifi.Manager. Configure it with Set before the
// code under test starts; it is safe for concurrent use afterwards.
type FakeManager struct {
	mu sync.Mutex

	Service         wifi.ServiceState
	ServiceStateErr error
	StartServiceErr error
	StartedState    wifi.ServiceState

	DeviceList []wifi.Device
	DevicesErr error

	DevState       wifi.DeviceState
	DeviceStateErr error

	ScanErr error

	// APs is returned by AccessPoints after EmptyReads empty reads.
	APs        []wifi.AccessPoint
	APsErr     error
	EmptyReads int

	Profiles       []wifi.Connection
	ConnectionsErr error

	HotspotErr   error
	ConnectState wifi.ConnectionState
	ConnectErr   error

	// Connectivity values are returned in order; the last one repeats.
	ConnectivitySeq []wifi.Connectivity
	ConnectivityErr error

	DeactivateErr error
	DeleteErr     error

	calls  []string
	reads  int
	nextID int
}

// NewFakeManager returns a manager with one WiFi device and NetworkManager active.
func NewFakeManager() *FakeManager {
	return &FakeManager{
		Service:         wifi.ServiceStateActive,
		StartedState:    wifi.ServiceStateActive,
		DeviceList:      []wifi.Device{{Interface: "eth0", Type: wifi.DeviceTypeEthernet}, {Interface: "wlan0", Type: wifi.DeviceTypeWiFi}},
		DevState:        wifi.DeviceStateDisconnected,
		ConnectState:    wifi.ConnectionStateActivated,
		ConnectivitySeq: []wifi.Connectivity{wifi.ConnectivityFull},
	}
}

// Set mutates the fake under its lock.
func (f *FakeManager) Set(fn func(f *FakeManager)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *FakeManager) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (f *FakeManager) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts recorded calls starting with prefix.
func (f *FakeManager) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Hotspots returns the hotspot profiles currently defined.
func (f *FakeManager) Hotspots() []wifi.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wifi.Connection
	for _, c := range f.Profiles {
		if c.IsAccessPoint() {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot returns a copy of every profile.
func (f *FakeManager) Snapshot() []wifi.Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wifi.Connection(nil), f.Profiles...)
}

func (f *FakeManager) ServiceState(context.Context) (wifi.ServiceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("service-state")
	return f.Service, f.ServiceStateErr
}

func (f *FakeManager) StartService(context.Context, time.Duration) (wifi.ServiceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start-service")
	if f.StartServiceErr != nil {
		return "", f.StartServiceErr
	}
	f.Service = f.StartedState
	return f.Service, nil
}

func (f *FakeManager) Devices(context.Context) ([]wifi.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("devices")
	return append([]wifi.Device(nil), f.DeviceList...), f.DevicesErr
}

func (f *FakeManager) DeviceByInterface(_ context.Context, iface string) (wifi.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("device %s", iface)
	if f.DevicesErr != nil {
		return wifi.Device{}, f.DevicesErr
	}
	for _, d := range f.DeviceList {
		if d.Interface == iface {
			return d, nil
		}
	}
	return wifi.Device{}, wifi.ErrDeviceNotFound
}

func (f *FakeManager) DeviceState(_ context.Context, d wifi.Device) (wifi.DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("device-state %s", d.Interface)
	return f.DevState, f.DeviceStateErr
}

func (f *FakeManager) RequestScan(_ context.Context, d wifi.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("scan %s", d.Interface)
	return f.ScanErr
}

func (f *FakeManager) AccessPoints(_ context.Context, d wifi.Device) ([]wifi.AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("access-points %s", d.Interface)
	if f.APsErr != nil {
		return nil, f.APsErr
	}
	f.reads++
	if f.reads <= f.EmptyReads {
		return nil, nil
	}
	return append([]wifi.AccessPoint(nil), f.APs...), nil
}

func (f *FakeManager) Connections(context.Context) ([]wifi.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connections")
	if f.ConnectionsErr != nil {
		return nil, f.ConnectionsErr
	}
	return append([]wifi.Connection(nil), f.Profiles...), nil
}

func (f *FakeManager) newUUID() string {
	f.nextID++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID)
}

func (f *FakeManager) CreateHotspot(_ context.Context, d wifi.Device, ssid, passphrase string, _ net.IP) (wifi.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("hotspot %s %s", d.Interface, ssid)
	if f.HotspotErr != nil {
		return wifi.Connection{}, f.HotspotErr
	}
	conn := wifi.Connection{UUID: f.newUUID(), ID: ssid, Type: wifi.ConnectionTypeWireless, SSID: ssid, Mode: wifi.WirelessModeAP}
	f.Profiles = append(f.Profiles, conn)
	return conn, nil
}

func (f *FakeManager) Connect(_ context.Context, d wifi.Device, ap wifi.AccessPoint, creds wifi.Credentials) (wifi.Connection, wifi.ConnectionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connect %s %s %d", d.Interface, ap.SSID, creds.Kind)
	if f.ConnectErr != nil {
		return wifi.Connection{}, wifi.ConnectionStateUnknown, f.ConnectErr
	}
	conn := wifi.Connection{UUID: f.newUUID(), ID: ap.SSID, Type: wifi.ConnectionTypeWireless, SSID: ap.SSID, Mode: "infrastructure"}
	f.Profiles = append(f.Profiles, conn)
	return conn, f.ConnectState, nil
}

func (f *FakeManager) DeactivateConnection(_ context.Context, c wifi.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("deactivate %s", c.SSID)
	return f.DeactivateErr
}

func (f *FakeManager) DeleteConnection(_ context.Context, c wifi.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete %s", c.SSID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i, p := range f.Profiles {
		if p.UUID == c.UUID {
			f.Profiles = append(f.Profiles[:i], f.Profiles[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeManager) Connectivity(context.Context) (wifi.Connectivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("connectivity")
	if f.ConnectivityErr != nil {
		return wifi.ConnectivityUnknown, f.ConnectivityErr
	}
	if len(f.ConnectivitySeq) == 0 {
		return wifi.ConnectivityUnknown, nil
	}
	c := f.ConnectivitySeq[0]
	if len(f.ConnectivitySeq) > 1 {
		f.ConnectivitySeq = f.ConnectivitySeq[1:]
	}
	return c, nil
}

// FakeLauncher is a dnsmasq.Launcher whose processes exit on the first signal.
type FakeLauncher struct {
	mu       sync.Mutex
	Err      error
	launched int
	running  int
	Args     [][]string
}

// Launch records the launch and returns a fake handle.
func (l *FakeLauncher) Launch(name string, args ...string) (dnsmasq.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	l.launched++
	l.running++
	l.Args = append(l.Args, append([]string{name}, args...))
	return &fakeHandle{launcher: l, pid: 1000 + l.launched, exited: make(chan struct{})}, nil
}

// Launched returns how many processes were started.
func (l *FakeLauncher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

// Running returns how many started processes have not exited.
func (l *FakeLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetErr makes subsequent launches fail with err.
func (l *FakeLauncher) SetErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Err = err
}

type fakeHandle struct {
	launcher *FakeLauncher
	pid      int
	once     sync.Once
	exited   chan struct{}
}

func (h *fakeHandle) Pid() int { return h.pid }

func (h *fakeHandle) exit() {
	h.once.Do(func() {
		h.launcher.mu.Lock()
		h.launcher.running--
		h.launcher.mu.Unlock()
		close(h.exited)
	})
}

func (h *fakeHandle) Signal(os.Signal) error {
	h.exit()
	return nil
}

func (h *fakeHandle) Kill() error {
	h.exit()
	return nil
}

func (h *fakeHandle) Wait() error {
	<-h.exited
	return nil
}
