package dnsmasq

import (
	"errors"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeHandle struct {
	mu         sync.Mutex
	signals    []os.Signal
	kills      int
	exited     chan struct{}
	ignoreTerm bool
	once       sync.Once
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{exited: make(chan struct{})}
}

func (h *fakeHandle) Pid() int { return 4242 }

func (h *fakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	ignore := h.ignoreTerm
	h.mu.Unlock()
	if !ignore {
		h.once.Do(func() { close(h.exited) })
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	h.once.Do(func() { close(h.exited) })
	return nil
}

func (h *fakeHandle) Wait() error {
	<-h.exited
	return nil
}

type fakeLauncher struct {
	handle *fakeHandle
	err    error
	name   string
	args   []string
}

func (l *fakeLauncher) Launch(name string, args ...string) (Handle, error) {
	l.name = name
	l.args = args
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

var testOptions = Options{
	Interface: "wlan0",
	Gateway:   net.ParseIP("192.168.42.1"),
	DHCPRange: "192.168.42.2,192.168.42.254",
}

func TestArgs(t *testing.T) {
	args := Args(testOptions)
	assert.Contains(t, args, "--address=/#/192.168.42.1")
	assert.Contains(t, args, "--dhcp-range=192.168.42.2,192.168.42.254")
	assert.Contains(t, args, "--dhcp-option=option:router,192.168.42.1")
	assert.Contains(t, args, "--interface=wlan0")
	assert.Contains(t, args, "--keep-in-foreground")
}

func TestStartAndStop(t *testing.T) {
	launcher := &fakeLauncher{handle: newFakeHandle()}

	p, err := Start(launcher, testOptions)
	require.NoError(t, err)
	assert.Equal(t, Binary, launcher.name)
	assert.Equal(t, 4242, p.Pid())

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	assert.Equal(t, []os.Signal{unix.SIGTERM}, launcher.handle.signals)
	assert.Equal(t, 0, launcher.handle.kills)
}

func TestStart_LaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("executable file not found")}

	_, err := Start(launcher, testOptions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wlan0")
}
