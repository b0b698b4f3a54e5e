package domain

// RiskLevel is the qualitative bucket of a 0..100 risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Risk thresholds (inclusive upper bounds).
const (
	RiskLowMax    = 30
	RiskMediumMax = 70
	RiskHighMax   = 90

	// MevDetectionThreshold is the score above which an attack is considered detected.
	MevDetectionThreshold = 30

	// ProtectThreshold is the score above which protection is recommended.
	ProtectThreshold = 50
)

// RiskLevelFor maps a score to its level: LOW <=30, MEDIUM <=70, HIGH <=90, CRITICAL >90.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score <= RiskLowMax:
		return RiskLevelLow
	case score <= RiskMediumMax:
		return RiskLevelMedium
	case score <= RiskHighMax:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// IsMevDetected reports whether the score crosses the detection boundary.
func IsMevDetected(score int) bool {
	return score > MevDetectionThreshold
}

// RecommendedAction is the scorer's advice for a swap.
type RecommendedAction string

const (
	ActionProtect RecommendedAction = "protect"
	ActionDirect  RecommendedAction = "direct"
	ActionWait    RecommendedAction = "wait"
)

// IsValid checks if the action is a known value.
func (a RecommendedAction) IsValid() bool {
	return a == ActionProtect || a == ActionDirect || a == ActionWait
}

// RiskSource records which path produced a RiskResult.
type RiskSource string

const (
	RiskSourceModel    RiskSource = "model"
	RiskSourceFallback RiskSource = "fallback"
)

// RiskSubscores breaks the score down by attack family (each 0..100).
type RiskSubscores struct {
	Sandwich   int `json:"sandwich"`
	Frontrun   int `json:"frontrun"`
	Volatility int `json:"volatility"`
}

// RiskResult is the outcome of scoring a proposed swap.
type RiskResult struct {
	Score             int               `json:"score"`
	Level             RiskLevel         `json:"level"`
	Factors           []string          `json:"factors"`
	Subscores         RiskSubscores     `json:"subscores"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Reasoning         string            `json:"reasoning"`
	Source            RiskSource        `json:"source"`
}
