package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/orchestrator"
)

func receive(t *testing.T, commands <-chan orchestrator.Command) orchestrator.Command {
	t.Helper()
	select {
	case cmd := <-commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
		return nil
	}
}

func TestForward_EverySignalBecomesExit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	commands := make(chan orchestrator.Command, 2)
	go forward(ctx, sigs, commands, zerolog.Nop())

	sigs <- unix.SIGTERM
	sigs <- unix.SIGINT

	assert.Equal(t, orchestrator.Exit{}, receive(t, commands))
	assert.Equal(t, orchestrator.Exit{}, receive(t, commands))
}

func TestTrapSignals_SIGHUP(t *testing.T) {
	commands := make(chan orchestrator.Command, 1)
	stop := TrapSignals(context.Background(), commands, zerolog.Nop())
	defer stop()

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGHUP))

	assert.Equal(t, orchestrator.Exit{}, receive(t, commands))
}

func TestArmTimeout(t *testing.T) {
	commands := make(chan orchestrator.Command, 1)
	stop := ArmTimeout(context.Background(), 5*time.Millisecond, commands, zerolog.Nop())
	defer stop()

	assert.Equal(t, orchestrator.Timeout{}, receive(t, commands))
}

func TestArmTimeout_Disabled(t *testing.T) {
	commands := make(chan orchestrator.Command, 1)
	stop := ArmTimeout(context.Background(), 0, commands, zerolog.Nop())
	defer stop()

	select {
	case cmd := <-commands:
		t.Fatalf("unexpected command %T", cmd)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestArmTimeout_Stopped(t *testing.T) {
	commands := make(chan orchestrator.Command, 1)
	stop := ArmTimeout(context.Background(), 20*time.Millisecond, commands, zerolog.Nop())
	stop()

	select {
	case cmd := <-commands:
		t.Fatalf("unexpected command %T", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(apperr.New(apperr.KindStartHTTPServer, nil)))
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	Report(log, apperr.New(apperr.KindDeviceState, errors.New("boom")))
	assert.Contains(t, buf.String(), `"kind":"getting the device state failed"`)
	assert.Contains(t, buf.String(), `"fatal":true`)

	buf.Reset()
	Report(log, nil)
	assert.Contains(t, buf.String(), `"message":"Exiting"`)
}
