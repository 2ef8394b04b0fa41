package enums

import "slices"

// BatchStatus is the lifecycle state of a payout batch. A deleted batch has
// no row, so there is no deleted status.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

var batchStatuses = []BatchStatus{BatchStatusQueued, BatchStatusProcessing, BatchStatusCompleted, BatchStatusFailed}

func (b BatchStatus) String() string { return string(b) }

func (b BatchStatus) IsValid() bool { return slices.Contains(batchStatuses, b) }

// IsTerminal reports whether no further transition is allowed.
func (b BatchStatus) IsTerminal() bool {
	return b == BatchStatusCompleted || b == BatchStatusFailed
}

func ParseBatchStatus(value string) (BatchStatus, error) {
	return parse("batch status", value, batchStatuses)
}
