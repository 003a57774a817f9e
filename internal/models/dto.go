package models

import "time"

// Data Transfer Objects

// AggregateResult is what one aggregation run produces for one student.
// Stats is the merged document; Failures lists every platform that kept
// its prior value together with the reason.
type AggregateResult struct {
	StudentID string                `json:"student_id"`
	Stats     StatsDocument         `json:"stats"`
	Updated   []Platform            `json:"updated"`
	Failures  map[Platform]Outcome  `json:"failures"`
	Details   map[Platform]string   `json:"details,omitempty"`
	Anomalies map[Platform][]string `json:"anomalies,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
	Attempts  []FetchAttempt        `json:"-"`
	Duration  time.Duration         `json:"-"`
}

type BatchOptions struct {
	Workers int `json:"workers,omitempty"`
}

type BatchResult struct {
	BatchID          string                          `json:"batch_id"`
	Total            int                             `json:"total"`
	Succeeded        int                             `json:"succeeded"`
	Failed           map[string]map[Platform]Outcome `json:"failed"`
	PersistFailed    map[string]string               `json:"persist_failed,omitempty"`
	Errors           map[string]string               `json:"errors,omitempty"`
	Skipped          int                             `json:"skipped"`
	PlatformsUpdated int                             `json:"platforms_updated"`
	PlatformErrors   int                             `json:"platform_errors"`
	Cancelled        bool                            `json:"cancelled"`
	StartedAt        time.Time                       `json:"started_at"`
	CompletedAt      time.Time                       `json:"completed_at"`
}

type RefetchStatus string

const (
	RefetchStatusOK             RefetchStatus = "ok"
	RefetchStatusPartialFailure RefetchStatus = "partial_failure"
	RefetchStatusAccepted       RefetchStatus = "accepted"
)

type RefetchOneResponse struct {
	Status    RefetchStatus         `json:"status"`
	StudentID string                `json:"student_id"`
	Stats     StatsDocument         `json:"stats"`
	Updated   []Platform            `json:"updated"`
	Failures  map[Platform]Outcome  `json:"failures,omitempty"`
	Details   map[Platform]string   `json:"details,omitempty"`
	Anomalies map[Platform][]string `json:"anomalies,omitempty"`
	Warnings  []string              `json:"warnings,omitempty"`
	Duration  int64                 `json:"duration_ms"`
}

type RefetchAllRequest struct {
	Filter StudentFilter `json:"filter"`
}

type RefetchAllResponse struct {
	Status   RefetchStatus `json:"status"`
	Accepted int           `json:"accepted"`
	BatchID  string        `json:"batch_id"`
}

type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}
