package main

import (
	"testing"

	"swap-guard/internal/domain"
)

func TestDescribe(t *testing.T) {
	executed := domain.VenueOrca
	tx := &domain.Transaction{
		ID:            "t1",
		InputAsset:    "SOL",
		OutputAsset:   "USDC",
		RiskScore:     42,
		RiskLevel:     domain.RiskLevelMedium,
		SelectedRoute: domain.VenueOrca,
	}
	done := *tx
	done.ExecutedRoute = &executed
	done.ActualSavings = 0.25

	tests := []struct {
		name string
		ev   domain.Event
		want string
	}{
		{"status", domain.Event{Type: domain.EventStatus, Status: domain.TxStatusAnalyzing}, "status: analyzing"},
		{"simulated", domain.Event{Type: domain.EventSimulationComplete, Transaction: tx},
			"simulation_complete: t1 SOL->USDC risk=42 (MEDIUM) route=Orca"},
		{"executed", domain.Event{Type: domain.EventExecutionComplete, Transaction: &done},
			"execution_complete: t1 SOL->USDC risk=42 (MEDIUM) route=Orca executed=Orca savings=0.250000"},
		{"no transaction", domain.Event{Type: domain.EventExecutionComplete}, "execution_complete"},
		{"batch executed", domain.Event{Type: domain.EventBatchExecuted, BatchID: "b1", TransactionID: "t1"},
			"batch b1 executed (transaction t1)"},
		{"batch failed", domain.Event{Type: domain.EventBatchFailed, BatchID: "b1", TransactionID: "t1", Reason: "timeout"},
			"batch b1 failed (transaction t1): timeout"},
		{"unknown", domain.Event{Type: "mystery"}, `unknown event "mystery"`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := describe(tc.ev); got != tc.want {
				t.Errorf("describe() = %q, want %q", got, tc.want)
			}
		})
	}
}
