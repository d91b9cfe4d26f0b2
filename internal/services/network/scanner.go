package network

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

const (
	// DefaultScanSettle is how long to wait after requesting a scan.
	DefaultScanSettle = 4 * time.Second
	// DefaultScanRetries bounds reads of an empty access point list.
	DefaultScanRetries = 10
	// DefaultScanRetryInterval separates reads of an empty list.
	DefaultScanRetryInterval = time.Second
)

// Scanner triggers scans and reads the filtered access point list.
type Scanner struct {
	nm      wifi.Manager
	ownSSID string
	log     zerolog.Logger

	Settle        time.Duration
	Retries       int
	RetryInterval time.Duration
}

// NewScanner creates a Scanner that hides the portal's own SSID.
func NewScanner(nm wifi.Manager, ownSSID string, log zerolog.Logger) *Scanner {
	return &Scanner{
		nm:            nm,
		ownSSID:       ownSSID,
		log:           log,
		Settle:        DefaultScanSettle,
		Retries:       DefaultScanRetries,
		RetryInterval: DefaultScanRetryInterval,
	}
}

// Scan triggers a scan and returns the visible access points.
func (s *Scanner) Scan(ctx context.Context, device wifi.Device) ([]wifi.AccessPoint, error) {
	if err := s.Trigger(ctx, device); err != nil {
		return nil, err
	}
	return s.Read(ctx, device)
}

// Trigger requests a scan and waits for it to settle. A failed request is
// ignored since a scan may already be in flight; only ctx cancellation is returned.
func (s *Scanner) Trigger(ctx context.Context, device wifi.Device) error {
	if err := s.nm.RequestScan(ctx, device); err != nil {
		s.log.Debug().Err(err).Msg("Scan request failed")
	}
	return sleep(ctx, s.Settle)
}

// Read returns the filtered access point list, retrying while it is empty.
// An empty result after all retries is not an error.
func (s *Scanner) Read(ctx context.Context, device wifi.Device) ([]wifi.AccessPoint, error) {
	// After stopping the hotspot it takes a while for the list to repopulate
	for retry := 1; retry <= s.Retries; retry++ {
		aps, err := s.nm.AccessPoints(ctx, device)
		if err != nil {
			return nil, apperr.New(apperr.KindListAccessPoints, err).WithInterface(device.Interface)
		}

		aps = Filter(aps, s.ownSSID)
		if len(aps) > 0 {
			s.log.Info().Strs("ssids", SSIDs(aps)).Msg("Access points")
			return aps, nil
		}

		s.log.Debug().Int("retry", retry).Msg("No access points found")
		if err := sleep(ctx, s.RetryInterval); err != nil {
			return nil, err
		}
	}

	s.log.Warn().Msg("No access points found - giving up")
	return []wifi.AccessPoint{}, nil
}

// Filter drops the portal's own SSID, SSIDs that are empty or not valid text,
// and collapses multiple BSSIDs of one SSID into the strongest entry.
func Filter(aps []wifi.AccessPoint, ownSSID string) []wifi.AccessPoint {
	out := make([]wifi.AccessPoint, 0, len(aps))
	index := make(map[string]int, len(aps))
	for _, ap := range aps {
		if ap.SSID == "" || ap.SSID == ownSSID || !utf8.ValidString(ap.SSID) {
			continue
		}
		if i, ok := index[ap.SSID]; ok {
			if ap.Strength > out[i].Strength {
				out[i] = ap
			}
			continue
		}
		index[ap.SSID] = len(out)
		out = append(out, ap)
	}
	return out
}

// SSIDs returns the SSIDs of aps in order.
func SSIDs(aps []wifi.AccessPoint) []string {
	ssids := make([]string, len(aps))
	for i, ap := range aps {
		ssids[i] = ap.SSID
	}
	return ssids
}
