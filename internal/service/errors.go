package service

import "errors"

// Typed errors the delivery layer maps onto status codes.
var (
	ErrValidation      = errors.New("validation error")
	ErrStudentNotFound = errors.New("student not found")
	ErrInProgress      = errors.New("refetch already in progress for student")

	// Persistence or roster failures. Platform failures are never reported here.
	ErrSystem = errors.New("system error")
)
