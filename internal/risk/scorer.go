// Package risk adapts the external MEV risk model and provides the local fallback rule.
package risk

import (
	"context"
	"fmt"
	"math"

	"swap-guard/internal/domain"
)

// Assessment is the input to a risk scorer.
type Assessment struct {
	InputAsset  string
	OutputAsset string
	InputAmount uint64
	Routes      []domain.Route
}

// Scorer scores a proposed swap for adversarial-extraction risk.
type Scorer interface {
	Score(ctx context.Context, a Assessment) (*domain.RiskResult, error)
}

// highRouteRisk marks a route as a notable factor in the local rule.
const highRouteRisk = 70

// LocalRule computes the fallback result: score = mean(route risk),
// level by the standard thresholds, protect if score > 50 else direct.
func LocalRule(a Assessment, cause string) *domain.RiskResult {
	score := 0
	maxRisk := 0
	var factors []string
	if len(a.Routes) > 0 {
		sum := 0
		for _, r := range a.Routes {
			sum += r.RiskScore
			if r.RiskScore > maxRisk {
				maxRisk = r.RiskScore
			}
			if r.RiskScore > highRouteRisk {
				factors = append(factors, fmt.Sprintf("sandwich exposure on %s (route risk %d)", r.Venue, r.RiskScore))
			}
		}
		score = clampScore(int(math.Round(float64(sum) / float64(len(a.Routes)))))
	}

	action := domain.ActionDirect
	if score > domain.ProtectThreshold {
		action = domain.ActionProtect
	}

	reasoning := "Risk model unavailable; score is the mean of route risk scores"
	if cause != "" {
		reasoning += " (" + cause + ")"
	}

	return &domain.RiskResult{
		Score:   score,
		Level:   domain.RiskLevelFor(score),
		Factors: factors,
		Subscores: domain.RiskSubscores{
			Sandwich: clampScore(maxRisk),
			Frontrun: score,
		},
		RecommendedAction: action,
		Reasoning:         reasoning,
		Source:            domain.RiskSourceFallback,
	}
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
