package common

import (
	"errors"
	"net/http"
)

// Error codes rendered in API error bodies. Ticket state conflicts get their
// own codes so clients can tell a settled ticket from a finalized one.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeValidation    = "VALIDATION_FAILED"
	CodeNotFound      = "NOT_FOUND"
	CodeTicketClosed  = "TICKET_CLOSED"
	CodeNothingToPay  = "NOTHING_TO_PAY"
	CodeUnpaidBalance = "UNPAID_BALANCE"
	CodeInternal      = "INTERNAL"
)

// AppError carries the code, status and optional details an API error renders with.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BadRequest wraps err as a 400 with message.
func BadRequest(message string, err error) *AppError {
	return &AppError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest, Err: err}
}

// Invalid reports failed field validation. details maps field names to the failed rule.
func Invalid(details map[string]string) *AppError {
	return &AppError{Code: CodeValidation, Message: "validation failed", HTTPStatus: http.StatusBadRequest, Details: details}
}

// NotFound wraps err as a 404 with message.
func NotFound(message string, err error) *AppError {
	return &AppError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}

// Conflict wraps err as a 409. code says which ticket state blocked the request.
func Conflict(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusConflict, Err: err}
}

// IsAppError reports whether err wraps an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
