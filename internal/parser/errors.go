package parser

import (
	"errors"
	"fmt"

	"github.com/algolog/stats-service/internal/models"
)

const (
	ReasonLayoutChanged = "layout-changed"
	ReasonInvalidRating = "invalid-rating"
	ReasonInvalidJSON   = "invalid-json"
	ReasonUpstreamError = "upstream-error"
)

// ParseError means a payload arrived but could not be mapped. It usually
// indicates upstream schema or markup drift.
type ParseError struct {
	Platform models.Platform
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s parse failed: %s", e.Platform, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

func missingField(platform models.Platform, field string) *ParseError {
	return &ParseError{Platform: platform, Reason: "missing-field:" + field}
}

func layoutChanged(platform models.Platform, anchor string) *ParseError {
	return &ParseError{
		Platform: platform,
		Reason:   ReasonLayoutChanged,
		Err:      fmt.Errorf("anchor %q not found", anchor),
	}
}

func invalidJSON(platform models.Platform, err error) *ParseError {
	return &ParseError{Platform: platform, Reason: ReasonInvalidJSON, Err: err}
}

func invalidRating(platform models.Platform, field, text string) *ParseError {
	return &ParseError{
		Platform: platform,
		Reason:   ReasonInvalidRating,
		Err:      fmt.Errorf("%s: cannot parse %q", field, text),
	}
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
