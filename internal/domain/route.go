package domain

// Venue identifies an execution venue.
type Venue string

const (
	VenueJupiter Venue = "Jupiter"
	VenueRaydium Venue = "Raydium"
	VenueOrca    Venue = "Orca"
)

// String returns the string representation of Venue.
func (v Venue) String() string {
	return string(v)
}

// Route is a candidate execution path quoted by a venue.
type Route struct {
	Venue           Venue   `json:"venue"`
	EstimatedOutput uint64  `json:"estimated_output"` // base units of output asset
	PriceImpactPct  float64 `json:"price_impact_pct"`
	RiskScore       int     `json:"risk_score"` // 0..100
	LiquidityDepth  uint64  `json:"liquidity_depth"`
	LatencyMs       int64   `json:"latency_ms"`
}

// ProofRoute is a Route frozen into a proof with its selection flag.
type ProofRoute struct {
	Route
	Selected bool `json:"selected"`
}
