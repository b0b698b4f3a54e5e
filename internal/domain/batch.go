package domain

// BatchStatus is the lifecycle state of a batch.
// Transitions: pending -> processing -> completed | failed, and pending -> failed on cancel.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// String returns the string representation of BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the batch can no longer change state.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// SealTrigger records why a batch left pending.
type SealTrigger string

const (
	SealTriggerSize   SealTrigger = "size"
	SealTriggerTime   SealTrigger = "time"
	SealTriggerFlush  SealTrigger = "flush"
	SealTriggerCancel SealTrigger = "cancel"
)

// BatchMember is one transaction attached to a batch.
type BatchMember struct {
	TransactionID string `json:"transaction_id"`
	Identity      string `json:"identity"`
	InputAmount   uint64 `json:"input_amount"`
}

// Batch groups transactions committed together as one settlement unit.
// Count and TotalValue are always derived from Members.
type Batch struct {
	ID      string        `json:"id"`
	Members []BatchMember `json:"members"`
	Status  BatchStatus   `json:"status"`

	SealTrigger     *SealTrigger         `json:"seal_trigger,omitempty"`
	BatchHash       string               `json:"batch_hash"`
	CommitSignature string               `json:"commit_signature,omitempty"`
	Outcomes        []TransactionOutcome `json:"outcomes,omitempty"`
	FailureReason   string               `json:"failure_reason,omitempty"`

	CreatedAt       int64  `json:"created_at"`                  // ms
	ExecutedAt      *int64 `json:"executed_at,omitempty"`       // ms, execution start
	CompletedAt     *int64 `json:"completed_at,omitempty"`      // ms
	ExecutionTimeMs *int64 `json:"execution_time_ms,omitempty"` // completed_at - executed_at
}

// Count returns the number of members.
func (b *Batch) Count() int {
	return len(b.Members)
}

// TotalValue returns the sum of member input amounts.
func (b *Batch) TotalValue() uint64 {
	var total uint64
	for _, m := range b.Members {
		total += m.InputAmount
	}
	return total
}

// TransactionIDs returns member ids in admission order.
func (b *Batch) TransactionIDs() []string {
	ids := make([]string, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.TransactionID
	}
	return ids
}

// Identities returns the distinct member identities in admission order.
func (b *Batch) Identities() []string {
	seen := make(map[string]struct{}, len(b.Members))
	var out []string
	for _, m := range b.Members {
		if _, ok := seen[m.Identity]; ok {
			continue
		}
		seen[m.Identity] = struct{}{}
		out = append(out, m.Identity)
	}
	return out
}

// HasMember reports whether txID is attached to the batch.
func (b *Batch) HasMember(txID string) bool {
	for _, m := range b.Members {
		if m.TransactionID == txID {
			return true
		}
	}
	return false
}

// EstimatedSavings is the batching benefit estimate: 1% of total value.
func (b *Batch) EstimatedSavings() uint64 {
	return b.TotalValue() * 10 / 1000
}

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Members = append([]BatchMember(nil), b.Members...)
	c.Outcomes = append([]TransactionOutcome(nil), b.Outcomes...)
	return &c
}

// TransactionOutcome is the settlement result for one member.
type TransactionOutcome struct {
	TransactionID string `json:"transaction_id"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// CommitResult is returned by the settlement layer for a sealed batch.
type CommitResult struct {
	Success   bool                 `json:"success"`
	Signature string               `json:"signature"`
	Outcomes  []TransactionOutcome `json:"outcomes"`
}
