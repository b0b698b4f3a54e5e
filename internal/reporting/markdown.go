package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Protection Report\n\n")
	sb.WriteString(fmt.Sprintf("Identity: `%s`\n\n", r.Identity))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Completed Transactions | %d |\n", r.Summary.TotalTransactions))
	sb.WriteString(fmt.Sprintf("| Open Transactions | %d |\n", r.Summary.PendingCount))
	sb.WriteString(fmt.Sprintf("| Total Savings | %.6f |\n", r.Summary.TotalSavings))
	sb.WriteString(fmt.Sprintf("| Average Savings | %.6f |\n", r.Summary.AverageSavings))
	sb.WriteString(fmt.Sprintf("| Average Risk Score | %.2f |\n", r.Summary.AverageRiskScore))
	sb.WriteString(fmt.Sprintf("| Attacks Blocked | %d |\n", r.Summary.AttacksBlocked))
	sb.WriteString(fmt.Sprintf("| Protected Routes | %d |\n", r.Summary.ProtectedRouteCount))
	sb.WriteString(fmt.Sprintf("| Direct Routes | %d |\n", r.Summary.DirectRouteCount))
	sb.WriteString("\n")

	// Distributions
	sb.WriteString("## Distributions\n\n")
	if r.Savings.Count == 0 && r.Latency.Count == 0 {
		sb.WriteString("No completed transactions.\n\n")
	} else {
		sb.WriteString("| Sample | N | Mean | Median | P10 | P90 | Min | Max | Stddev |\n")
		sb.WriteString("|--------|---|------|--------|-----|-----|-----|-----|--------|\n")
		writeDistribution(&sb, "Savings", r.Savings)
		if r.Latency.Count > 0 {
			writeDistribution(&sb, "Execution ms", r.Latency)
		}
		sb.WriteString("\n")
	}

	// Risk
	sb.WriteString("## Risk Levels\n\n")
	sb.WriteString("| Level | Count | Share |\n")
	sb.WriteString("|-------|-------|-------|\n")
	for _, row := range r.RiskDistribution {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.1f%% |\n", row.Level, row.Count, row.Pct))
	}
	sb.WriteString("\n")

	// Venues
	sb.WriteString("## Venues\n\n")
	if len(r.Venues) > 0 {
		sb.WriteString("| Venue | Executions | Protected | Total Savings | Avg Exec ms |\n")
		sb.WriteString("|-------|------------|-----------|---------------|-------------|\n")
		for _, v := range r.Venues {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.6f | %.1f |\n",
				v.Venue, v.Executions, v.ProtectedCount, v.TotalSavings, v.AvgExecutionTimeMs))
		}
	} else {
		sb.WriteString("No executions.\n")
	}
	sb.WriteString("\n")

	// Batches
	sb.WriteString("## Batches\n\n")
	if len(r.Batches) > 0 {
		sb.WriteString("| Batch | Status | Trigger | Members | Total Value | Exec ms | Failure |\n")
		sb.WriteString("|-------|--------|---------|---------|-------------|---------|---------|\n")
		for _, b := range r.Batches {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %s |\n",
				b.BatchID, b.Status, orDash(b.SealTrigger), b.Members, b.TotalValue,
				b.ExecutionTimeMs, orDash(b.FailureReason)))
		}
	} else {
		sb.WriteString("No batches.\n")
	}
	sb.WriteString("\n")

	// Transactions
	sb.WriteString("## Transactions\n\n")
	if len(r.Transactions) > 0 {
		sb.WriteString("| Transaction | Pair | Amount | Risk | Selected | Executed | Status | Savings |\n")
		sb.WriteString("|-------------|------|--------|------|----------|----------|--------|---------|\n")
		for _, t := range r.Transactions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d (%s) | %s | %s | %s | %.6f |\n",
				t.TransactionID, t.Pair, t.InputAmount, t.RiskScore, t.RiskLevel,
				t.SelectedRoute, orDash(t.ExecutedRoute), t.Status, t.ActualSavings))
		}
	} else {
		sb.WriteString("No transactions.\n")
	}
	sb.WriteString("\n")

	if r.Integrity != nil {
		in := r.Integrity
		sb.WriteString("## Proof Integrity\n\n")
		sb.WriteString("| Checked | Matched | Divergent | In Flight |\n")
		sb.WriteString("|---------|---------|-----------|-----------|\n")
		sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d |\n\n", in.ProofsChecked, in.Matched, in.Divergent, in.SkippedIncomplete))
		for _, e := range in.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		if len(in.Errors) > 0 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func writeDistribution(sb *strings.Builder, name string, d Distribution) {
	sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
		name, d.Count, d.Mean, d.Median, d.P10, d.P90, d.Min, d.Max, d.Stddev))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
