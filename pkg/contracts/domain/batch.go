package domain

import "time"

// BatchStatus is the lifecycle state of a queued batch.
type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
	// BatchFailed means the batch was rejected as a whole, e.g. an invalid range.
	BatchFailed BatchStatus = "failed"
)

// IsTerminal reports whether the batch can no longer change.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchCancelled || s == BatchFailed
}

// Batch is a submitted BatchRequest and everything reported for it so far.
type Batch struct {
	ID         string       `json:"id"`
	Request    BatchRequest `json:"request"`
	Status     BatchStatus  `json:"status"`
	Summary    BatchSummary `json:"summary"`
	Outcomes   []Outcome    `json:"outcomes"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
