// Package routing quotes candidate execution routes and selects one of them.
package routing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"swap-guard/internal/domain"
)

// Quoter produces candidate routes for a swap.
type Quoter interface {
	Quote(ctx context.Context, req domain.ProtectionRequest) ([]domain.Route, error)
}

// VenueProfile describes the distribution a venue's quotes are drawn from.
type VenueProfile struct {
	Venue        domain.Venue `yaml:"venue" toml:"venue"`
	Efficiency   float64      `yaml:"efficiency" toml:"efficiency"` // 1 - fee
	ImpactMinPct float64      `yaml:"impact_min_pct" toml:"impact_min_pct"`
	ImpactMaxPct float64      `yaml:"impact_max_pct" toml:"impact_max_pct"`
	RiskMin      int          `yaml:"risk_min" toml:"risk_min"`
	RiskMax      int          `yaml:"risk_max" toml:"risk_max"`
	DepthMin     uint64       `yaml:"depth_min" toml:"depth_min"`
	DepthMax     uint64       `yaml:"depth_max" toml:"depth_max"`
	LatencyMinMs int64        `yaml:"latency_min_ms" toml:"latency_min_ms"`
	LatencyMaxMs int64        `yaml:"latency_max_ms" toml:"latency_max_ms"`
}

// Validate checks the profile ranges.
func (p VenueProfile) Validate() error {
	switch {
	case p.Venue == "":
		return fmt.Errorf("venue is required")
	case p.Efficiency <= 0 || p.Efficiency > 1:
		return fmt.Errorf("venue %s: efficiency must be in (0, 1]", p.Venue)
	case p.ImpactMinPct < 0 || p.ImpactMaxPct < p.ImpactMinPct || p.ImpactMaxPct >= 100:
		return fmt.Errorf("venue %s: invalid impact range", p.Venue)
	case p.RiskMin < 0 || p.RiskMax < p.RiskMin || p.RiskMax > 100:
		return fmt.Errorf("venue %s: invalid risk range", p.Venue)
	case p.DepthMax < p.DepthMin:
		return fmt.Errorf("venue %s: invalid depth range", p.Venue)
	case p.LatencyMinMs < 0 || p.LatencyMaxMs < p.LatencyMinMs:
		return fmt.Errorf("venue %s: invalid latency range", p.Venue)
	}
	return nil
}

// DefaultProfiles returns the built-in venue profiles (fees 1%/2%/3%).
func DefaultProfiles() []VenueProfile {
	return []VenueProfile{
		{
			Venue:        domain.VenueJupiter,
			Efficiency:   0.99,
			ImpactMinPct: 0.05,
			ImpactMaxPct: 0.4,
			RiskMin:      5,
			RiskMax:      35,
			DepthMin:     5_000_000_000,
			DepthMax:     20_000_000_000,
			LatencyMinMs: 80,
			LatencyMaxMs: 200,
		},
		{
			Venue:        domain.VenueRaydium,
			Efficiency:   0.98,
			ImpactMinPct: 0.1,
			ImpactMaxPct: 0.8,
			RiskMin:      15,
			RiskMax:      60,
			DepthMin:     2_000_000_000,
			DepthMax:     10_000_000_000,
			LatencyMinMs: 60,
			LatencyMaxMs: 150,
		},
		{
			Venue:        domain.VenueOrca,
			Efficiency:   0.97,
			ImpactMinPct: 0.1,
			ImpactMaxPct: 1.2,
			RiskMin:      10,
			RiskMax:      75,
			DepthMin:     1_000_000_000,
			DepthMax:     8_000_000_000,
			LatencyMinMs: 70,
			LatencyMaxMs: 180,
		},
	}
}

// Simulator draws venue quotes from per-venue distributions.
// It stands in for a live quoting subsystem; a fixed seed gives reproducible routes.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles []VenueProfile
}

// NewSimulator creates a Simulator. Nil or empty profiles use DefaultProfiles.
func NewSimulator(seed int64, profiles []VenueProfile) (*Simulator, error) {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	if len(profiles) > MaxRoutes {
		return nil, fmt.Errorf("%d venue profiles exceeds maximum of %d", len(profiles), MaxRoutes)
	}
	seen := make(map[domain.Venue]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Venue] {
			return nil, fmt.Errorf("duplicate venue profile %s", p.Venue)
		}
		seen[p.Venue] = true
	}
	return &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		profiles: append([]VenueProfile(nil), profiles...),
	}, nil
}

// Quote returns one route per venue profile, in profile order.
func (s *Simulator) Quote(_ context.Context, req domain.ProtectionRequest) ([]domain.Route, error) {
	if req.InputAmount == 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	routes := make([]domain.Route, 0, len(s.profiles))
	for _, p := range s.profiles {
		impact := p.ImpactMinPct + s.rng.Float64()*(p.ImpactMaxPct-p.ImpactMinPct)
		output := float64(req.InputAmount) * p.Efficiency * (1 - impact/100)

		routes = append(routes, domain.Route{
			Venue:           p.Venue,
			EstimatedOutput: uint64(output),
			PriceImpactPct:  impact,
			RiskScore:       p.RiskMin + s.rng.Intn(p.RiskMax-p.RiskMin+1),
			LiquidityDepth:  p.DepthMin + uint64(s.rng.Int63n(int64(p.DepthMax-p.DepthMin)+1)),
			LatencyMs:       p.LatencyMinMs + s.rng.Int63n(p.LatencyMaxMs-p.LatencyMinMs+1),
		})
	}
	return routes, nil
}

var _ Quoter = (*Simulator)(nil)
