package reporting

import "time"

// Report is the protection report of one identity.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Identity    string

	// Totals from the running statistics
	Summary Summary

	// Distribution of realized savings over completed transactions
	Savings Distribution

	// Execution latency from the execution log (ms)
	Latency Distribution

	// Sorted by level severity
	RiskDistribution []RiskLevelRow

	// Sorted by venue name
	Venues []VenueRow

	// Sorted by CreatedAt DESC, ID ASC
	Batches []BatchRow

	// Sorted by CreatedAt DESC, ID ASC
	Transactions []TransactionRow

	// Nil unless a verifier is configured
	Integrity *Integrity
}

// Integrity summarizes the stored proofs checked against their transactions.
type Integrity struct {
	ProofsChecked     int
	Matched           int
	Divergent         int
	SkippedIncomplete int
	Errors            []string // sorted
}

// Summary mirrors the identity statistics.
type Summary struct {
	TotalTransactions   int64
	CompletedCount      int
	PendingCount        int
	TotalSavings        float64
	AverageSavings      float64
	AverageRiskScore    float64
	AttacksBlocked      int64
	ProtectedRouteCount int64
	DirectRouteCount    int64
}

// Distribution summarizes a sample.
type Distribution struct {
	Count  int
	Mean   float64
	Median float64
	P10    float64
	P90    float64
	Min    float64
	Max    float64
	Stddev float64
}

// RiskLevelRow counts transactions per risk level.
type RiskLevelRow struct {
	Level string
	Count int
	Pct   float64 // of all transactions
}

// VenueRow aggregates completed transactions by executed venue.
type VenueRow struct {
	Venue              string
	Executions         int
	ProtectedCount     int
	TotalSavings       float64
	AvgExecutionTimeMs float64
}

// BatchRow lists one batch containing the identity's transactions.
type BatchRow struct {
	BatchID         string
	Status          string
	SealTrigger     string
	Members         int
	TotalValue      uint64
	ExecutionTimeMs int64
	FailureReason   string
	CreatedAt       int64
}

// TransactionRow lists one transaction.
type TransactionRow struct {
	TransactionID string
	CreatedAt     int64
	Pair          string
	InputAmount   uint64
	RiskScore     int
	RiskLevel     string
	SelectedRoute string
	ExecutedRoute string
	Status        string
	Protected     bool
	ActualSavings float64
	ProofHash     string
}
