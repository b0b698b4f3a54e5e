package routing

import (
	"context"
	"reflect"
	"testing"

	"swap-guard/internal/domain"
)

func testRequest() domain.ProtectionRequest {
	return domain.ProtectionRequest{
		Identity:    "alice",
		InputAsset:  "SOL",
		OutputAsset: "USDC",
		InputAmount: 1_000_000_000,
	}
}

func TestSimulator_SameSeedSameRoutes(t *testing.T) {
	ctx := context.Background()

	a, err := NewSimulator(42, nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	b, _ := NewSimulator(42, nil)

	for i := 0; i < 5; i++ {
		ra, _ := a.Quote(ctx, testRequest())
		rb, _ := b.Quote(ctx, testRequest())
		if !reflect.DeepEqual(ra, rb) {
			t.Fatalf("round %d: routes differ for same seed:\n%+v\n%+v", i, ra, rb)
		}
	}
}

func TestSimulator_RoutesWithinProfile(t *testing.T) {
	sim, _ := NewSimulator(1, nil)
	profiles := DefaultProfiles()

	for i := 0; i < 200; i++ {
		routes, err := sim.Quote(context.Background(), testRequest())
		if err != nil {
			t.Fatalf("Quote: %v", err)
		}
		if len(routes) != 3 {
			t.Fatalf("expected 3 routes, got %d", len(routes))
		}
		for j, r := range routes {
			p := profiles[j]
			if r.Venue != p.Venue {
				t.Errorf("route %d venue %s, want %s", j, r.Venue, p.Venue)
			}
			if r.PriceImpactPct < p.ImpactMinPct || r.PriceImpactPct > p.ImpactMaxPct {
				t.Errorf("%s impact %.4f outside [%v, %v]", r.Venue, r.PriceImpactPct, p.ImpactMinPct, p.ImpactMaxPct)
			}
			if r.RiskScore < p.RiskMin || r.RiskScore > p.RiskMax {
				t.Errorf("%s risk %d outside [%d, %d]", r.Venue, r.RiskScore, p.RiskMin, p.RiskMax)
			}
			maxOut := uint64(float64(testRequest().InputAmount) * p.Efficiency)
			if r.EstimatedOutput == 0 || r.EstimatedOutput > maxOut {
				t.Errorf("%s output %d outside (0, %d]", r.Venue, r.EstimatedOutput, maxOut)
			}
		}
	}
}

func TestSimulator_InvalidProfile(t *testing.T) {
	_, err := NewSimulator(1, []VenueProfile{{Venue: domain.VenueOrca, Efficiency: 1.5}})
	if err == nil {
		t.Error("expected error for efficiency > 1")
	}
}

func TestSimulator_DuplicateVenue(t *testing.T) {
	profiles := DefaultProfiles()
	profiles = append(profiles, profiles[0])
	if _, err := NewSimulator(1, profiles); err == nil {
		t.Errorf("expected error for a second %s profile", profiles[0].Venue)
	}
}

func TestSimulator_ZeroAmount(t *testing.T) {
	sim, _ := NewSimulator(1, nil)
	req := testRequest()
	req.InputAmount = 0
	if _, err := sim.Quote(context.Background(), req); err == nil {
		t.Error("expected error for zero amount")
	}
}
