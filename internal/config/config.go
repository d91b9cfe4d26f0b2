// Package config provides configuration management for the wifi-connect daemon.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bbernstein/wifi-connect/internal/apperr"
)

const (
	DefaultGateway         = "192.168.42.1"
	DefaultDHCPRange       = "192.168.42.2,192.168.42.254"
	DefaultListening       = "0.0.0.0:80"
	DefaultActivityTimeout = 0
	DefaultUIDirectory     = "ui"
	DefaultCORSOrigin      = "*"
	DefaultLogLevel        = "info"

	// SSIDPrefix is prepended to the device identity to form the portal SSID.
	SSIDPrefix = "HalleyHub"
	// SSIDIdentityLength is the number of identity characters used in the SSID.
	SSIDIdentityLength = 12
	// MinPassphraseLength is the minimum WPA2 passphrase length.
	MinPassphraseLength = 8
	// PassphrasePad is used to right-pad short pairing codes.
	PassphrasePad = "_"
)

// Flag names.
const (
	FlagInterface       = "portal-interface"
	FlagSSID            = "portal-ssid"
	FlagPassphrase      = "portal-passphrase"
	FlagGateway         = "portal-gateway"
	FlagDHCPRange       = "portal-dhcp-range"
	FlagListening       = "portal-listening"
	FlagActivityTimeout = "activity-timeout"
	FlagUIDirectory     = "ui-directory"
	FlagCORSOrigin      = "cors-origin"
	FlagLogLevel        = "log-level"
)

// Config holds all configuration values for the daemon. It is created once at
// startup and never mutated afterwards.
type Config struct {
	// Portal configuration
	Interface  string // empty means autodetect
	SSID       string
	Passphrase *string
	Gateway    net.IP
	DHCPRange  string

	// HTTP configuration
	ListeningAt string
	UIDirectory string
	CORSOrigin  string

	// Exit if no client began the connect flow within this duration (0 disables)
	ActivityTimeout time.Duration

	LogLevel string
	Debug    bool
}

// BindFlags declares the daemon's flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagInterface, "i", "", "Wireless network interface to be used by WiFi Connect")
	fs.StringP(FlagSSID, "s", "", "SSID of the captive portal WiFi network")
	fs.StringP(FlagPassphrase, "p", "", "WPA2 Passphrase of the captive portal WiFi network (default: none)")
	fs.StringP(FlagGateway, "g", DefaultGateway, "Gateway of the captive portal WiFi network")
	fs.StringP(FlagDHCPRange, "d", DefaultDHCPRange, "DHCP range of the WiFi network")
	fs.StringP(FlagListening, "o", DefaultListening, "Listening address of the captive portal web server")
	fs.IntP(FlagActivityTimeout, "a", DefaultActivityTimeout, "Exit if no activity for the specified time (seconds)")
	fs.StringP(FlagUIDirectory, "u", "", "Web UI directory location")
	fs.String(FlagCORSOrigin, DefaultCORSOrigin, "Allowed CORS origin for the portal API")
	fs.String(FlagLogLevel, DefaultLogLevel, "Log level (debug, info, warn, error)")
}

// Load resolves every setting as explicit flag > environment variable > default.
// fs may be nil, in which case only the environment and defaults are used.
func Load(fs *pflag.FlagSet) (*Config, error) {
	r := resolver{flags: fs}

	cfg := &Config{
		Interface:   r.str(FlagInterface, "PORTAL_INTERFACE", ""),
		DHCPRange:   r.str(FlagDHCPRange, "PORTAL_DHCP_RANGE", DefaultDHCPRange),
		ListeningAt: r.str(FlagListening, "PORTAL_LISTENING", DefaultListening),
		CORSOrigin:  r.str(FlagCORSOrigin, "CORS_ORIGIN", DefaultCORSOrigin),
		LogLevel:    r.str(FlagLogLevel, "LOG_LEVEL", DefaultLogLevel),
		Debug:       getEnvBool("DEBUG", false),
	}

	ssid, err := resolveSSID(r.str(FlagSSID, "PORTAL_SSID", ""))
	if err != nil {
		return nil, err
	}
	cfg.SSID = ssid

	cfg.Passphrase = resolvePassphrase(r.str(FlagPassphrase, "PORTAL_PASSPHRASE", ""))
	if cfg.Passphrase != nil && len(*cfg.Passphrase) < MinPassphraseLength {
		return nil, apperr.New(apperr.KindConfig, fmt.Errorf("portal passphrase must be at least %d characters", MinPassphraseLength))
	}

	gateway := r.str(FlagGateway, "PORTAL_GATEWAY", DefaultGateway)
	cfg.Gateway = net.ParseIP(gateway).To4()
	if cfg.Gateway == nil {
		return nil, apperr.New(apperr.KindConfig, fmt.Errorf("cannot parse gateway address %q", gateway))
	}

	timeout := r.str(FlagActivityTimeout, "ACTIVITY_TIMEOUT", strconv.Itoa(DefaultActivityTimeout))
	seconds, err := strconv.ParseUint(strings.TrimSpace(timeout), 10, 32)
	if err != nil {
		return nil, apperr.New(apperr.KindConfig, fmt.Errorf("cannot parse activity timeout %q: %w", timeout, err))
	}
	cfg.ActivityTimeout = time.Duration(seconds) * time.Second

	cfg.UIDirectory = r.str(FlagUIDirectory, "UI_DIRECTORY", "")
	if cfg.UIDirectory == "" {
		cfg.UIDirectory = defaultUIDirectory()
	}

	return cfg, nil
}

// PassphraseOrEmpty returns the portal passphrase or "" for an open portal.
func (c *Config) PassphraseOrEmpty() string {
	if c.Passphrase == nil {
		return ""
	}
	return *c.Passphrase
}

// DeriveSSID builds the portal SSID from a device identity.
func DeriveSSID(identity string) string {
	if len(identity) > SSIDIdentityLength {
		identity = identity[:SSIDIdentityLength]
	}
	return SSIDPrefix + "-" + identity
}

// PadPassphrase right-pads code with PassphrasePad up to MinPassphraseLength.
func PadPassphrase(code string) string {
	if n := MinPassphraseLength - len(code); n > 0 {
		return code + strings.Repeat(PassphrasePad, n)
	}
	return code
}

func resolveSSID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, key := range []string{"BALENA_DEVICE_UUID", "RESIN_DEVICE_UUID"} {
		if identity := getEnv(key, ""); identity != "" {
			return DeriveSSID(identity), nil
		}
	}
	return "", apperr.New(apperr.KindConfig, fmt.Errorf("unable to find device UUID for the portal SSID"))
}

func resolvePassphrase(explicit string) *string {
	if explicit != "" {
		return &explicit
	}
	if code := getEnv("PAIRING_CODE", ""); code != "" {
		padded := PadPassphrase(code)
		return &padded
	}
	return nil
}

// defaultUIDirectory looks for the UI installed next to the executable.
func defaultUIDirectory() string {
	exe, err := os.Executable()
	if err == nil {
		dir := filepath.Join(filepath.Dir(exe), "..", "share", "wifi-connect", "ui")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return filepath.Clean(dir)
		}
	}
	return DefaultUIDirectory
}

type resolver struct {
	flags *pflag.FlagSet
}

// str returns the flag value if it was set explicitly, then the environment
// variable, then the default.
func (r resolver) str(flag, env, defaultValue string) string {
	if r.flags != nil {
		if f := r.flags.Lookup(flag); f != nil && f.Changed {
			return f.Value.String()
		}
	}
	return getEnv(env, defaultValue)
}

// getEnv returns the value of a non-empty environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
