// Package dnsmasq runs the DHCP/DNS helper process that serves clients of the
// captive portal.
package dnsmasq

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// Binary is the helper executable looked up in PATH.
	Binary = "dnsmasq"
	// StopTimeout is how long Stop waits after SIGTERM before killing.
	StopTimeout = 2 * time.Second
)

// Options configures the helper.
type Options struct {
	Interface string
	Gateway   net.IP
	DHCPRange string
}

// Args builds the dnsmasq command line: every DNS name resolves to the gateway
// so clients land on the portal.
func Args(opts Options) []string {
	gw := opts.Gateway.String()
	return []string{
		"--address=/#/" + gw,
		"--dhcp-range=" + opts.DHCPRange,
		"--dhcp-option=option:router," + gw,
		"--interface=" + opts.Interface,
		"--keep-in-foreground",
		"--bind-interfaces",
		"--except-interface=lo",
		"--conf-file",
		"--no-hosts",
	}
}

// Handle is a started process.
type Handle interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	Wait() error
}

// Launcher starts processes (for testing).
type Launcher interface {
	Launch(name string, args ...string) (Handle, error)
}

// ExecLauncher launches real processes.
type ExecLauncher struct{}

// Launch starts name with args. The process is not tied to any request context.
func (ExecLauncher) Launch(name string, args ...string) (Handle, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execHandle{cmd: cmd}, nil
}

type execHandle struct {
	cmd *exec.Cmd
}

func (h *execHandle) Pid() int                   { return h.cmd.Process.Pid }
func (h *execHandle) Signal(sig os.Signal) error { return h.cmd.Process.Signal(sig) }
func (h *execHandle) Kill() error                { return h.cmd.Process.Kill() }
func (h *execHandle) Wait() error                { return h.cmd.Wait() }

// Process is a running helper. Stop is safe to call more than once.
type Process struct {
	handle Handle

	once    sync.Once
	stopErr error
}

// Start launches the helper with opts.
func Start(launcher Launcher, opts Options) (*Process, error) {
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	h, err := launcher.Launch(Binary, Args(opts)...)
	if err != nil {
		return nil, fmt.Errorf("start %s on %s: %w", Binary, opts.Interface, err)
	}
	return &Process{handle: h}, nil
}

// Pid returns the helper's process id.
func (p *Process) Pid() int {
	return p.handle.Pid()
}

// Stop sends SIGTERM, waits up to StopTimeout and kills the process if it
// is still running. The process is always reaped.
func (p *Process) Stop() error {
	p.once.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	done := make(chan error, 1)
	go func() { done <- p.handle.Wait() }()

	if err := p.handle.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		if kerr := p.handle.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return fmt.Errorf("kill %s: %w", Binary, kerr)
		}
	}

	select {
	case <-done:
		return nil
	case <-time.After(StopTimeout):
	}

	if err := p.handle.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", Binary, err)
	}
	<-done
	return nil
}
