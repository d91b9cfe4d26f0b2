package network

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/services/wifi"
)

// DefaultProbeInterval is the delay between connectivity checks.
const DefaultProbeInterval = time.Second

// Probe waits for Internet connectivity after a join.
type Probe struct {
	nm       wifi.Manager
	log      zerolog.Logger
	Interval time.Duration
}

// NewProbe creates a Probe polling once per second. Interval must stay positive.
func NewProbe(nm wifi.Manager, log zerolog.Logger) *Probe {
	return &Probe{nm: nm, log: log, Interval: DefaultProbeInterval}
}

// Wait polls NetworkManager's connectivity indicator until it reports full or
// limited connectivity (true) or timeout has elapsed (false). Failures to
// query are logged and reported as false.
func (p *Probe) Wait(ctx context.Context, timeout time.Duration) bool {
	var elapsed time.Duration
	for {
		connectivity, err := p.nm.Connectivity(ctx)
		if err != nil {
			p.log.Error().Err(err).Msg("Getting Internet connectivity failed")
			return false
		}

		if connectivity.Reachable() {
			p.log.Debug().Str("connectivity", string(connectivity)).Dur("elapsed", elapsed).Msg("Connectivity established")
			return true
		}
		if elapsed >= timeout {
			p.log.Debug().Str("connectivity", string(connectivity)).Dur("elapsed", elapsed).Msg("Timeout reached in waiting for connectivity")
			return false
		}

		if err := sleep(ctx, p.Interval); err != nil {
			if !isContextErr(err) {
				p.log.Error().Err(err).Msg("Waiting for connectivity failed")
			}
			return false
		}
		elapsed += p.Interval

		p.log.Debug().Str("connectivity", string(connectivity)).Dur("elapsed", elapsed).Msg("Still waiting for connectivity")
	}
}
