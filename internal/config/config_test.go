package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bbernstein/wifi-connect/internal/apperr"
)

var configEnvVars = []string{
	"PORTAL_INTERFACE", "PORTAL_SSID", "PORTAL_PASSPHRASE", "PORTAL_GATEWAY",
	"PORTAL_DHCP_RANGE", "PORTAL_LISTENING", "ACTIVITY_TIMEOUT", "UI_DIRECTORY",
	"CORS_ORIGIN", "LOG_LEVEL", "DEBUG",
	"BALENA_DEVICE_UUID", "RESIN_DEVICE_UUID", "PAIRING_CODE",
}

// clearEnv blanks every variable Load reads; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		t.Setenv(v, "")
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("BALENA_DEVICE_UUID", "0123456789abcdef0123456789abcdef")
	t.Setenv("PAIRING_CODE", "1234")

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Interface != "" {
		t.Errorf("Expected empty Interface, got '%s'", cfg.Interface)
	}
	if cfg.SSID != "HalleyHub-0123456789ab" {
		t.Errorf("Expected SSID 'HalleyHub-0123456789ab', got '%s'", cfg.SSID)
	}
	if cfg.Passphrase == nil || *cfg.Passphrase != "1234____" {
		t.Errorf("Expected passphrase '1234____', got %v", cfg.Passphrase)
	}
	if cfg.Gateway.String() != "192.168.42.1" {
		t.Errorf("Expected Gateway 192.168.42.1, got %s", cfg.Gateway)
	}
	if cfg.DHCPRange != "192.168.42.2,192.168.42.254" {
		t.Errorf("Expected default DHCP range, got '%s'", cfg.DHCPRange)
	}
	if cfg.ListeningAt != "0.0.0.0:80" {
		t.Errorf("Expected ListeningAt '0.0.0.0:80', got '%s'", cfg.ListeningAt)
	}
	if cfg.ActivityTimeout != 0 {
		t.Errorf("Expected ActivityTimeout 0, got %v", cfg.ActivityTimeout)
	}
	if cfg.UIDirectory == "" {
		t.Error("Expected a UI directory default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LogLevel 'info', got '%s'", cfg.LogLevel)
	}
}

func TestLoad_ResinIdentityFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESIN_DEVICE_UUID", "fedcba9876543210")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.SSID != "HalleyHub-fedcba987654" {
		t.Errorf("Expected SSID from RESIN_DEVICE_UUID, got '%s'", cfg.SSID)
	}
	if cfg.Passphrase != nil {
		t.Errorf("Expected open portal without PAIRING_CODE, got %q", *cfg.Passphrase)
	}
}

func TestLoad_CustomEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORTAL_INTERFACE", "wlan1")
	t.Setenv("PORTAL_SSID", "Setup")
	t.Setenv("PORTAL_PASSPHRASE", "secretpass")
	t.Setenv("PORTAL_GATEWAY", "10.0.0.1")
	t.Setenv("PORTAL_DHCP_RANGE", "10.0.0.2,10.0.0.20")
	t.Setenv("PORTAL_LISTENING", "127.0.0.1:8080")
	t.Setenv("ACTIVITY_TIMEOUT", "120")
	t.Setenv("UI_DIRECTORY", "/srv/ui")
	t.Setenv("CORS_ORIGIN", "http://example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Interface != "wlan1" {
		t.Errorf("Expected Interface 'wlan1', got '%s'", cfg.Interface)
	}
	if cfg.SSID != "Setup" {
		t.Errorf("Expected SSID 'Setup', got '%s'", cfg.SSID)
	}
	if cfg.PassphraseOrEmpty() != "secretpass" {
		t.Errorf("Expected passphrase 'secretpass', got '%s'", cfg.PassphraseOrEmpty())
	}
	if cfg.Gateway.String() != "10.0.0.1" {
		t.Errorf("Expected Gateway 10.0.0.1, got %s", cfg.Gateway)
	}
	if cfg.DHCPRange != "10.0.0.2,10.0.0.20" {
		t.Errorf("Expected DHCP range '10.0.0.2,10.0.0.20', got '%s'", cfg.DHCPRange)
	}
	if cfg.ListeningAt != "127.0.0.1:8080" {
		t.Errorf("Expected ListeningAt '127.0.0.1:8080', got '%s'", cfg.ListeningAt)
	}
	if cfg.ActivityTimeout != 120*time.Second {
		t.Errorf("Expected ActivityTimeout 120s, got %v", cfg.ActivityTimeout)
	}
	if cfg.UIDirectory != "/srv/ui" {
		t.Errorf("Expected UIDirectory '/srv/ui', got '%s'", cfg.UIDirectory)
	}
	if cfg.CORSOrigin != "http://example.com" {
		t.Errorf("Expected CORSOrigin 'http://example.com', got '%s'", cfg.CORSOrigin)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel 'debug', got '%s'", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORTAL_SSID", "FromEnv")
	t.Setenv("PORTAL_GATEWAY", "10.0.0.1")
	t.Setenv("ACTIVITY_TIMEOUT", "5")

	fs := newFlags(t, "-s", "FromFlag", "--portal-gateway", "172.16.0.1", "-a", "30", "-i", "wlan0")
	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.SSID != "FromFlag" {
		t.Errorf("Expected SSID 'FromFlag', got '%s'", cfg.SSID)
	}
	if cfg.Gateway.String() != "172.16.0.1" {
		t.Errorf("Expected Gateway 172.16.0.1, got %s", cfg.Gateway)
	}
	if cfg.ActivityTimeout != 30*time.Second {
		t.Errorf("Expected ActivityTimeout 30s, got %v", cfg.ActivityTimeout)
	}
	if cfg.Interface != "wlan0" {
		t.Errorf("Expected Interface 'wlan0', got '%s'", cfg.Interface)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no identity", map[string]string{}},
		{"bad gateway", map[string]string{"PORTAL_SSID": "x", "PORTAL_GATEWAY": "not-an-ip"}},
		{"ipv6 gateway", map[string]string{"PORTAL_SSID": "x", "PORTAL_GATEWAY": "fe80::1"}},
		{"bad timeout", map[string]string{"PORTAL_SSID": "x", "ACTIVITY_TIMEOUT": "-3"}},
		{"short passphrase", map[string]string{"PORTAL_SSID": "x", "PORTAL_PASSPHRASE": "1234567"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(nil)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if apperr.KindOf(err) != apperr.KindConfig {
				t.Errorf("Expected config error kind, got %v", apperr.KindOf(err))
			}
		})
	}
}

func TestLoad_ShortPassphraseFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORTAL_SSID", "x")

	_, err := Load(newFlags(t, "--"+FlagPassphrase, "short"))
	if apperr.KindOf(err) != apperr.KindConfig {
		t.Fatalf("Expected config error kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "at least 8 characters") {
		t.Errorf("Expected length in error, got %v", err)
	}
}

func TestDeriveSSID(t *testing.T) {
	if got := DeriveSSID("abcdefghijklmnop"); got != "HalleyHub-abcdefghijkl" {
		t.Errorf("Expected 'HalleyHub-abcdefghijkl', got '%s'", got)
	}
	if got := DeriveSSID("short"); got != "HalleyHub-short" {
		t.Errorf("Expected 'HalleyHub-short', got '%s'", got)
	}
}

func TestPadPassphrase(t *testing.T) {
	tests := map[string]string{
		"":          "________",
		"42":        "42______",
		"12345678":  "12345678",
		"123456789": "123456789",
	}
	for in, want := range tests {
		if got := PadPassphrase(in); got != want {
			t.Errorf("PadPassphrase(%q) = %q, want %q", in, got, want)
		}
	}
}
