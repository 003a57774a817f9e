package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

type Kind string

const (
	KindTimeout       Kind = "timeout"
	KindConnection    Kind = "connection_error"
	KindRateLimited   Kind = "rate_limited"
	KindNotFound      Kind = "not_found"
	KindHTTP          Kind = "http_error"
	KindInvalidHandle Kind = "invalid_handle"
	KindDeferred      Kind = "deferred"
	KindCancelled     Kind = "cancelled"
)

var kindOutcomes = map[Kind]models.Outcome{
	KindTimeout:       models.OutcomeTimeout,
	KindConnection:    models.OutcomeConnectionError,
	KindRateLimited:   models.OutcomeRateLimited,
	KindNotFound:      models.OutcomeNotFound,
	KindHTTP:          models.OutcomeHTTPError,
	KindInvalidHandle: models.OutcomeInvalidHandle,
	KindDeferred:      models.OutcomeDeferred,
	KindCancelled:     models.OutcomeCancelled,
}

// Error is the failure of one fetch. Status is the HTTP status when the
// upstream answered at all.
type Error struct {
	Platform models.Platform
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s fetch failed: %s", e.Platform, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Outcome() models.Outcome {
	if o, ok := kindOutcomes[e.Kind]; ok {
		return o
	}
	return models.OutcomeHTTPError
}

func newError(platform models.Platform, kind Kind, status int, err error) *Error {
	return &Error{Platform: platform, Kind: kind, Status: status, Err: err}
}

// KindOf extracts the failure kind of err, treating a bare context error as
// cancellation or timeout.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, true
	}
	return "", false
}

// OutcomeOf maps any fetch error onto the attempt outcome vocabulary.
func OutcomeOf(err error) models.Outcome {
	if err == nil {
		return models.OutcomeSuccess
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Outcome()
	}
	if kind, ok := KindOf(err); ok {
		return kindOutcomes[kind]
	}
	return models.OutcomeConnectionError
}
