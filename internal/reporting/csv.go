package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders transaction rows as CSV string.
func RenderCSV(rows []TransactionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("transaction_id,created_at,pair,input_amount,risk_score,risk_level,")
	sb.WriteString("selected_route,executed_route,status,protected,actual_savings,proof_hash\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%d,%d,%s,%s,%s,%s,%t,%.6f,%s\n",
			r.TransactionID,
			r.CreatedAt,
			r.Pair,
			r.InputAmount,
			r.RiskScore,
			r.RiskLevel,
			r.SelectedRoute,
			r.ExecutedRoute,
			r.Status,
			r.Protected,
			r.ActualSavings,
			r.ProofHash,
		))
	}

	return sb.String()
}
