package bridge

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeCapacityExceeded    = "capacity_exceeded"
	CodeInvalidRegistration = "invalid_registration"
	CodeMalformedMessage    = "malformed_message"
	CodeDeliveryFailure     = "delivery_failure"
	CodeRecipientRequired   = "recipient_required"
	CodeNotFound            = "not_found"
	CodeStopped             = "bridge_stopped"
)

// Error is a typed bridge error carrying the HTTP status it maps to
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidRegistration, CodeMalformedMessage, CodeRecipientRequired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDeliveryFailure:
		return http.StatusBadGateway
	case CodeCapacityExceeded, CodeStopped:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusForCode(code)}
}

// ErrStopped is returned by every operation once Run has returned
var ErrStopped = newError(CodeStopped, "bridge is shut down")

func ErrCapacityExceeded(max int) error {
	return newError(CodeCapacityExceeded, fmt.Sprintf("client limit of %d reached", max))
}

func ErrInvalidRegistration(message string) error {
	return newError(CodeInvalidRegistration, message)
}

func ErrMalformedMessage(err error) error {
	return newError(CodeMalformedMessage, err.Error())
}

func ErrDeliveryFailure(clientID string, err error) error {
	return newError(CodeDeliveryFailure, fmt.Sprintf("push to %s failed: %v", clientID, err))
}

func ErrRecipientRequired() error {
	return newError(CodeRecipientRequired, "field 'to' is required")
}

func ErrNotFound(what string) error {
	return newError(CodeNotFound, what+" not found")
}

// IsCode reports whether err is a bridge *Error with the given code
func IsCode(err error, code string) bool {
	var be *Error
	return errors.As(err, &be) && be.Code == code
}
