package orchestrator

import "github.com/bbernstein/wifi-connect/internal/services/wifi"

// mergeAccessPoints returns fresh followed by every previous entry whose SSID
// is still visible. SSIDs present in both lists therefore appear twice,
// vanished SSIDs are dropped and new ones appear once. Clients rely on this
// list shape, so it is kept as is.
func mergeAccessPoints(previous, fresh []wifi.AccessPoint) []wifi.AccessPoint {
	visible := make(map[string]bool, len(fresh))
	for _, ap := range fresh {
		visible[ap.SSID] = true
	}

	merged := make([]wifi.AccessPoint, 0, len(fresh)+len(previous))
	merged = append(merged, fresh...)
	for _, ap := range previous {
		if visible[ap.SSID] {
			merged = append(merged, ap)
		}
	}
	return merged
}

func findAccessPoint(aps []wifi.AccessPoint, ssid string) (wifi.AccessPoint, bool) {
	for _, ap := range aps {
		if ap.SSID == ssid {
			return ap, true
		}
	}
	return wifi.AccessPoint{}, false
}

func toNetworks(aps []wifi.AccessPoint) []Network {
	networks := make([]Network, len(aps))
	for i, ap := range aps {
		networks[i] = Network{SSID: ap.SSID, Security: ap.Security.Class()}
	}
	return networks
}
