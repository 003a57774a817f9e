package models

import "time"

// RefetchRequestedEvent arrives on the refetch queue.
type RefetchRequestedEvent struct {
	StudentID   string `json:"student_id"`
	RequestedBy string `json:"requested_by,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

type StatsUpdatedEvent struct {
	StudentID        string               `json:"student_id"`
	BatchID          string               `json:"batch_id,omitempty"`
	UpdatedPlatforms []Platform           `json:"updated_platforms"`
	Failures         map[Platform]Outcome `json:"failures,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
}
