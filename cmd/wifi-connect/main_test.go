package main

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/config"
)

func TestPrintBanner(t *testing.T) {
	pass := "secret123"
	cfg := &config.Config{
		SSID:        "HalleyHub-0123456789ab",
		Passphrase:  &pass,
		Gateway:     net.ParseIP("192.168.42.1"),
		DHCPRange:   config.DefaultDHCPRange,
		ListeningAt: config.DefaultListening,
		UIDirectory: "ui",
	}

	var buf bytes.Buffer
	printBanner(&buf, cfg)
	output := buf.String()

	assert.Contains(t, output, "WiFi Connect")
	assert.Contains(t, output, "Version:")
	assert.Contains(t, output, "HalleyHub-0123456789ab")
	assert.Contains(t, output, "Secured:    yes")
	assert.Contains(t, output, "(autodetect)")
	assert.Contains(t, output, "192.168.42.1")
	assert.NotContains(t, output, pass)
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()

	for _, name := range []string{
		config.FlagInterface, config.FlagSSID, config.FlagPassphrase, config.FlagGateway,
		config.FlagDHCPRange, config.FlagListening, config.FlagActivityTimeout, config.FlagUIDirectory,
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, Version, cmd.Version)
}

func TestRootCommand_ConfigError(t *testing.T) {
	t.Setenv("PORTAL_SSID", "")
	t.Setenv("BALENA_DEVICE_UUID", "")
	t.Setenv("RESIN_DEVICE_UUID", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--portal-gateway", "192.168.42.1"})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
