package orchestrator

// Command is a request to the orchestrator. The set of commands is closed.
type Command interface {
	command()
}

// EnableAP raises the portal unless one is already up.
type EnableAP struct{}

// DisableAP tears down the portal if one is up.
type DisableAP struct{}

// Current asks for the device's live state. Replied with CurrentResponse.
type Current struct{ RequestID string }

// HasConnection asks whether a client WiFi profile exists. Replied with
// HasConnectionResponse.
type HasConnection struct{ RequestID string }

// Activate marks the connect flow as started and rescans. Replied with
// NetworksResponse.
type Activate struct{ RequestID string }

// Connect tries to join SSID, falling back to the portal on failure.
type Connect struct {
	SSID       string
	Identity   string
	Passphrase string
}

// Timeout ends the loop unless a client has begun the connect flow.
type Timeout struct{}

// Exit ends the loop.
type Exit struct{}

func (EnableAP) command()      {}
func (DisableAP) command()     {}
func (Current) command()       {}
func (HasConnection) command() {}
func (Activate) command()      {}
func (Connect) command()       {}
func (Timeout) command()       {}
func (Exit) command()          {}

func commandName(cmd Command) string {
	switch cmd.(type) {
	case EnableAP:
		return "enable_ap"
	case DisableAP:
		return "disable_ap"
	case Current:
		return "current"
	case HasConnection:
		return "has_connection"
	case Activate:
		return "activate"
	case Connect:
		return "connect"
	case Timeout:
		return "timeout"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Response is a reply correlated to a request by its id.
type Response interface {
	ID() string
}

// Network is the public projection of an access point.
type Network struct {
	SSID     string `json:"ssid"`
	Security string `json:"security"`
}

// CurrentStatus is the reply to Current.
type CurrentStatus struct {
	APMode    bool `json:"apmode"`
	Connected bool `json:"connected"`
}

// HasConnectionStatus is the reply to HasConnection.
type HasConnectionStatus struct {
	Result bool `json:"result"`
}

// NetworksResponse answers Activate.
type NetworksResponse struct {
	RequestID string
	Networks  []Network
}

// CurrentResponse answers Current.
type CurrentResponse struct {
	RequestID string
	Status    CurrentStatus
}

// HasConnectionResponse answers HasConnection.
type HasConnectionResponse struct {
	RequestID string
	Status    HasConnectionStatus
}

func (r NetworksResponse) ID() string      { return r.RequestID }
func (r CurrentResponse) ID() string       { return r.RequestID }
func (r HasConnectionResponse) ID() string { return r.RequestID }

// PortalStateEvent is published on pubsub.TopicPortalState after every
// portal transition.
type PortalStateEvent struct {
	Active bool   `json:"active"`
	SSID   string `json:"ssid"`
}

// ConnectResultEvent is published on pubsub.TopicConnectResult after every
// join attempt.
type ConnectResultEvent struct {
	SSID    string `json:"ssid"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
