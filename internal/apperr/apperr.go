// Package apperr defines the closed set of error kinds raised across the
// fatal/recoverable boundaries of the daemon.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota

	// Startup-fatal.
	KindConfig
	KindNoWiFiDevice
	KindNotAWiFiDevice
	KindDeviceByInterface
	KindStartNetworkManager
	KindDeleteAccessPoint
	KindCreatePortal
	KindStartHelper

	// Loop-fatal.
	KindRecvCommand
	KindSendResponse
	KindDeviceState
	KindListConnections
	KindListAccessPoints
	KindStartHTTPServer

	// Recoverable.
	KindConnectFailed
)

var kindText = map[Kind]string{
	KindUnknown:             "unknown error",
	KindConfig:              "invalid configuration",
	KindNoWiFiDevice:        "cannot find a WiFi device",
	KindNotAWiFiDevice:      "not a WiFi device",
	KindDeviceByInterface:   "cannot find network device",
	KindStartNetworkManager: "starting the NetworkManager service failed",
	KindDeleteAccessPoint:   "deleting access point connection profiles failed",
	KindCreatePortal:        "creating the captive portal failed",
	KindStartHelper:         "starting dnsmasq failed",
	KindRecvCommand:         "receiving network command failed",
	KindSendResponse:        "sending network command response failed",
	KindDeviceState:         "getting the device state failed",
	KindListConnections:     "getting existing connections failed",
	KindListAccessPoints:    "getting access points failed",
	KindStartHTTPServer:     "cannot start HTTP server",
	KindConnectFailed:       "connecting to access point failed",
}

// String returns the short description of the kind.
func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return kindText[KindUnknown]
}

// Fatal reports whether errors of this kind must end the process.
func (k Kind) Fatal() bool {
	return k != KindConnectFailed
}

// Error is a classified error with optional context fields.
type Error struct {
	Kind      Kind
	SSID      string
	Interface string
	Address   string
	Err       error
}

// New creates an Error of the given kind wrapping err (which may be nil).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithSSID sets the SSID context field.
func (e *Error) WithSSID(ssid string) *Error {
	e.SSID = ssid
	return e
}

// WithInterface sets the interface context field.
func (e *Error) WithInterface(iface string) *Error {
	e.Interface = iface
	return e
}

// WithAddress sets the address context field.
func (e *Error) WithAddress(addr string) *Error {
	e.Address = addr
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	switch {
	case e.Interface != "":
		b.WriteString(": " + e.Interface)
	case e.SSID != "":
		b.WriteString(": '" + e.SSID + "'")
	case e.Address != "":
		b.WriteString(": " + e.Address)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperr.New(k, nil)) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
