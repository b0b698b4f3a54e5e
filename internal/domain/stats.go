package domain

// IdentityStats holds per-identity running totals.
// Counters never decrease; averages are recomputed on each update.
type IdentityStats struct {
	Identity          string  `json:"identity"`
	TotalTransactions int64   `json:"total_transactions"`
	TotalSavings      float64 `json:"total_savings"`
	AverageSavings    float64 `json:"average_savings"`
	TotalRiskScore    int64   `json:"total_risk_score"`
	AverageRiskScore  float64 `json:"average_risk_score"`

	// Risk buckets
	LowRiskCount      int64 `json:"low_risk_count"`
	MediumRiskCount   int64 `json:"medium_risk_count"`
	HighRiskCount     int64 `json:"high_risk_count"`
	CriticalRiskCount int64 `json:"critical_risk_count"`

	AttacksBlocked int64 `json:"attacks_blocked"`

	// Route preference
	ProtectedRouteCount int64 `json:"protected_route_count"`
	DirectRouteCount    int64 `json:"direct_route_count"`

	UpdatedAt int64 `json:"updated_at"` // ms
}

// ProtectionSettings are per-identity preferences.
type ProtectionSettings struct {
	Identity       string `json:"identity"`
	MaxSlippageBps int    `json:"max_slippage_bps"` // 0..1000
	MaxRiskScore   int    `json:"max_risk_score"`   // 0..100
	BatchEnabled   bool   `json:"batch_enabled"`
	UpdatedAt      int64  `json:"updated_at"` // ms
}

// Settings bounds and defaults.
const (
	MaxSlippageBpsLimit   = 1000
	DefaultMaxSlippageBps = 100
	DefaultMaxRiskScore   = 50
)

// DefaultProtectionSettings returns the settings used before an identity saves its own.
func DefaultProtectionSettings(identity string) *ProtectionSettings {
	return &ProtectionSettings{
		Identity:       identity,
		MaxSlippageBps: DefaultMaxSlippageBps,
		MaxRiskScore:   DefaultMaxRiskScore,
		BatchEnabled:   true,
	}
}

// MaxImpactPct converts the slippage tolerance to a price-impact percentage.
func (s *ProtectionSettings) MaxImpactPct() float64 {
	return float64(s.MaxSlippageBps) / 100.0
}

// ExecutionRecord is an append-only analytics row written on transaction completion.
type ExecutionRecord struct {
	TransactionID      string    `json:"transaction_id"`
	Identity           string    `json:"identity"`
	BatchID            string    `json:"batch_id"`
	InputAsset         string    `json:"input_asset"`
	OutputAsset        string    `json:"output_asset"`
	InputAmount        uint64    `json:"input_amount"`
	OutputAmount       uint64    `json:"output_amount"`
	ExecutedRoute      Venue     `json:"executed_route"`
	RiskScore          int       `json:"risk_score"`
	RiskLevel          RiskLevel `json:"risk_level"`
	RiskSource         string    `json:"risk_source"`
	UsedProtectedRoute bool      `json:"used_protected_route"`
	ActualSavings      float64   `json:"actual_savings"`
	ExecutionTimeMs    int64     `json:"execution_time_ms"`
	CompletedAt        int64     `json:"completed_at"` // ms
}
