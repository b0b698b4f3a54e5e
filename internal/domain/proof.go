package domain

// AttackType classifies a detected adversarial pattern.
type AttackType string

const (
	AttackSandwich     AttackType = "SandwichAttack"
	AttackFrontRunning AttackType = "FrontRunning"
	AttackBackRunning  AttackType = "BackRunning"
	AttackArbitrage    AttackType = "Arbitrage"
	AttackUnclassified AttackType = "Unclassified"
)

// Detection is one entry of a proof's detected-pattern log.
type Detection struct {
	AttackType  AttackType `json:"attack_type"`
	Probability int        `json:"probability"` // 0..100
	Factor      string     `json:"factor"`
	DetectedAt  int64      `json:"detected_at"` // ms
}

// ProofTimings is the three-phase timing breakdown. TotalMs is the sum of the phases.
type ProofTimings struct {
	SimulationMs int64 `json:"simulation_ms"`
	SelectionMs  int64 `json:"selection_ms"`
	ExecutionMs  int64 `json:"execution_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// ProofOfRoute is the frozen record of how and why a route was selected.
type ProofOfRoute struct {
	ProofHash          string       `json:"proof_hash"`
	TransactionID      string       `json:"transaction_id"`
	Identity           string       `json:"identity"`
	Routes             []ProofRoute `json:"routes"`
	SelectedRoute      Venue        `json:"selected_route"`
	SelectionReasoning string       `json:"selection_reasoning"`
	RiskScore          int          `json:"risk_score"`
	Detections         []Detection  `json:"detections"`
	Timings            ProofTimings `json:"timings"`
	CreatedAt          int64        `json:"created_at"` // ms
}
