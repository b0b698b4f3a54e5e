package routing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"swap-guard/internal/domain"
)

// MaxRoutes is the largest candidate list the selector accepts.
const MaxRoutes = 10

// SavingsScale converts a base-unit output difference into whole units
// of the output asset (6 decimals).
const SavingsScale = 1e-6

// Selection errors.
var (
	ErrNoRoutes      = errors.New("no candidate routes")
	ErrTooManyRoutes = errors.New("too many candidate routes")
	ErrNoViableRoute = errors.New("no route within slippage tolerance")
)

// Selection is the result of route selection.
type Selection struct {
	Selected         domain.Route
	Direct           domain.Route // best output ignoring risk
	WorstRisk        domain.Route
	Reasoning        string
	PotentialSavings float64
}

// Select picks the route with the lowest risk score, breaking ties by the
// highest estimated output and then by venue name. Routes whose price impact
// exceeds maxImpactPct are not eligible; maxImpactPct <= 0 disables the filter.
// The input slice is not modified.
func Select(routes []domain.Route, maxImpactPct float64) (*Selection, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	if len(routes) > MaxRoutes {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyRoutes, len(routes), MaxRoutes)
	}

	eligible := make([]domain.Route, 0, len(routes))
	for _, r := range routes {
		if maxImpactPct > 0 && r.PriceImpactPct > maxImpactPct {
			continue
		}
		eligible = append(eligible, r)
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: max impact %.2f%%", ErrNoViableRoute, maxImpactPct)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return lessByRisk(eligible[i], eligible[j])
	})
	selected := eligible[0]
	worst := worstRisk(routes)
	direct := bestOutput(routes)

	return &Selection{
		Selected:         selected,
		Direct:           direct,
		WorstRisk:        worst,
		Reasoning:        reasoning(selected, worst, len(routes), len(eligible)),
		PotentialSavings: PotentialSavings(selected, worst),
	}, nil
}

// PotentialSavings returns |selected.output - worst.output| scaled to whole units.
// Advisory only.
func PotentialSavings(selected, worst domain.Route) float64 {
	diff := math.Abs(float64(selected.EstimatedOutput) - float64(worst.EstimatedOutput))
	return diff * SavingsScale
}

// lessByRisk orders by risk ASC, output DESC, venue ASC.
func lessByRisk(a, b domain.Route) bool {
	if a.RiskScore != b.RiskScore {
		return a.RiskScore < b.RiskScore
	}
	if a.EstimatedOutput != b.EstimatedOutput {
		return a.EstimatedOutput > b.EstimatedOutput
	}
	return a.Venue < b.Venue
}

// worstRisk returns the highest-risk route; ties go to the lowest output, then venue.
func worstRisk(routes []domain.Route) domain.Route {
	worst := routes[0]
	for _, r := range routes[1:] {
		switch {
		case r.RiskScore > worst.RiskScore:
			worst = r
		case r.RiskScore == worst.RiskScore && r.EstimatedOutput < worst.EstimatedOutput:
			worst = r
		case r.RiskScore == worst.RiskScore && r.EstimatedOutput == worst.EstimatedOutput && r.Venue < worst.Venue:
			worst = r
		}
	}
	return worst
}

// bestOutput returns the highest-output route; ties go to the lower risk, then venue.
func bestOutput(routes []domain.Route) domain.Route {
	best := routes[0]
	for _, r := range routes[1:] {
		switch {
		case r.EstimatedOutput > best.EstimatedOutput:
			best = r
		case r.EstimatedOutput == best.EstimatedOutput && r.RiskScore < best.RiskScore:
			best = r
		case r.EstimatedOutput == best.EstimatedOutput && r.RiskScore == best.RiskScore && r.Venue < best.Venue:
			best = r
		}
	}
	return best
}

func reasoning(selected, worst domain.Route, total, eligible int) string {
	s := fmt.Sprintf("Selected %s with lowest MEV risk %d/100 (output %d, impact %.2f%%) among %d of %d routes",
		selected.Venue, selected.RiskScore, selected.EstimatedOutput, selected.PriceImpactPct, eligible, total)
	if worst.Venue != selected.Venue {
		s += fmt.Sprintf("; avoided %s at risk %d/100", worst.Venue, worst.RiskScore)
	}
	return s
}
