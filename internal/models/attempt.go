package models

import "time"

type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeParseError      Outcome = "parse_error"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeHTTPError       Outcome = "http_error"
	OutcomeDeferred        Outcome = "deferred"
	OutcomeInvalidHandle   Outcome = "invalid_handle"
	OutcomeCancelled       Outcome = "cancelled"
)

func (o Outcome) String() string {
	return string(o)
}

// Transient reports whether the outcome is worth retrying within one run.
func (o Outcome) Transient() bool {
	switch o {
	case OutcomeTimeout, OutcomeConnectionError, OutcomeHTTPError:
		return true
	}
	return false
}

type FetchAttempt struct {
	ID         string    `json:"id" db:"id"`
	Platform   Platform  `json:"platform" db:"platform"`
	StudentID  string    `json:"student_id" db:"student_id"`
	Handle     string    `json:"handle" db:"handle"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	Outcome    Outcome   `json:"outcome" db:"outcome"`
	RetryCount int       `json:"retry_count" db:"retry_count"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
}

type ThrottleState struct {
	LastRequestAt       time.Time `json:"last_request_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BackoffUntil        time.Time `json:"backoff_until"`
}

// PlatformHealth summarizes recent attempts for one platform.
type PlatformHealth struct {
	Platform      Platform        `json:"platform"`
	Attempts      int             `json:"attempts"`
	Successes     int             `json:"successes"`
	Failures      map[Outcome]int `json:"failures"`
	LastSuccessAt *time.Time      `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time      `json:"last_failure_at,omitempty"`
}
