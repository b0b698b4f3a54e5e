package domain

// EventType identifies an observer event.
type EventType string

const (
	EventStatus             EventType = "status"
	EventSimulationComplete EventType = "simulation_complete"
	EventExecutionComplete  EventType = "execution_complete"
	EventBatchExecuted      EventType = "batch_executed"
	EventBatchFailed        EventType = "batch_failed"
)

// Event is pushed to observers subscribed to an identity.
type Event struct {
	Type          EventType         `json:"type"`
	Status        TransactionStatus `json:"status,omitempty"`
	Transaction   *Transaction      `json:"transaction,omitempty"`
	BatchID       string            `json:"batch_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// StatusEvent builds a status event.
func StatusEvent(status TransactionStatus) Event {
	return Event{Type: EventStatus, Status: status}
}
