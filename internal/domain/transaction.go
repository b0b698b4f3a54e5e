package domain

// TransactionStatus is the lifecycle state of a protected swap.
type TransactionStatus string

const (
	TxStatusPending    TransactionStatus = "pending"
	TxStatusSimulating TransactionStatus = "simulating"
	TxStatusAnalyzing  TransactionStatus = "analyzing"
	TxStatusExecuting  TransactionStatus = "executing"
	TxStatusCompleted  TransactionStatus = "completed"
	TxStatusFailed     TransactionStatus = "failed"
)

// String returns the string representation of TransactionStatus.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxStatusCompleted || s == TxStatusFailed
}

// ProtectionRequest is the ephemeral input of a simulate call. Not persisted.
type ProtectionRequest struct {
	Identity    string `json:"identity"`
	InputAsset  string `json:"input_asset"`
	OutputAsset string `json:"output_asset"`
	InputAmount uint64 `json:"input_amount"`
}

// Transaction is a protected swap and its full risk/route context.
// Amounts are in base units of the respective asset.
type Transaction struct {
	ID             string `json:"id"`              // uuid
	Identity       string `json:"identity"`        // owning wallet
	AccountAddress string `json:"account_address"` // program-derived record address

	InputAsset   string `json:"input_asset"`
	OutputAsset  string `json:"output_asset"`
	InputAmount  uint64 `json:"input_amount"`  // fixed at creation
	OutputAmount uint64 `json:"output_amount"` // fixed at route selection

	// Risk
	RiskScore         int               `json:"risk_score"` // 0..100
	RiskLevel         RiskLevel         `json:"risk_level"`
	MevDetected       bool              `json:"mev_detected"` // RiskScore > 30
	RiskFactors       []string          `json:"risk_factors"`
	RiskReasoning     string            `json:"risk_reasoning"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	RiskSource        RiskSource        `json:"risk_source"`
	RiskSubscores     RiskSubscores     `json:"risk_subscores"`

	// Routing
	SelectedRoute      Venue   `json:"selected_route"`
	DirectRoute        Venue   `json:"direct_route"` // best output ignoring risk
	Routes             []Route `json:"routes"`       // immutable snapshot
	SelectionReasoning string  `json:"selection_reasoning"`
	PotentialSavings   float64 `json:"potential_savings"`

	Status    TransactionStatus `json:"status"`
	BatchID   *string           `json:"batch_id,omitempty"`
	ProofHash string            `json:"proof_hash"`

	// Timing buckets (ms)
	SimulationTimeMs int64 `json:"simulation_time_ms"`
	SelectionTimeMs  int64 `json:"selection_time_ms"`

	// Completion (set once)
	ExecutedRoute      *Venue  `json:"executed_route,omitempty"`
	UsedProtectedRoute bool    `json:"used_protected_route"`
	ActualSavings      float64 `json:"actual_savings"`
	ExecutionTimeMs    int64   `json:"execution_time_ms"`

	CreatedAt   int64  `json:"created_at"`             // ms
	CompletedAt *int64 `json:"completed_at,omitempty"` // ms
}

// Completion carries the fields written exactly once when a transaction completes.
type Completion struct {
	TransactionID      string
	ExecutedRoute      Venue
	UsedProtectedRoute bool
	ActualSavings      float64
	ExecutionTimeMs    int64
	CompletedAt        int64
}
