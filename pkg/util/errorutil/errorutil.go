package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// Error codes exposed to API callers.
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeMissingField         = "MISSING_FIELD"
	CodeInvalidPhoneFormat   = "INVALID_PHONE_FORMAT"
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeNotApproved          = "NOT_APPROVED"
	CodeAlreadyCheckedIn     = "ALREADY_CHECKED_IN"
	CodeStorageFailure       = "STORAGE_FAILURE"
	CodeCredentialGeneration = "CREDENTIAL_GENERATION_FAILED"
	CodeDeliveryFailed       = "DELIVERY_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewMissingField reports every required field that was absent or blank.
func NewMissingField(fields ...string) error {
	return NewDomainError(CodeMissingField,
		"missing required fields: "+strings.Join(fields, ", "),
		http.StatusBadRequest,
		map[string]any{"fields": fields})
}

// NewInvalidPhoneFormat carries the rejected input and the accepted pattern.
func NewInvalidPhoneFormat(input, expected string, err error) error {
	return &DomainError{
		Code:       CodeInvalidPhoneFormat,
		Message:    "invalid phone number format",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"input": input, "expected": expected},
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInvalidTransition(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTransition, message, http.StatusBadRequest, details)
}

func NewNotApproved(details map[string]any) error {
	return NewDomainError(CodeNotApproved, "user not approved", http.StatusBadRequest, details)
}

func NewAlreadyCheckedIn(details map[string]any) error {
	return NewDomainError(CodeAlreadyCheckedIn, "user already checked in", http.StatusBadRequest, details)
}

func NewStorageFailure(err error) error {
	return &DomainError{
		Code:       CodeStorageFailure,
		Message:    "record store unavailable",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewCredentialFailure(err error) error {
	return &DomainError{
		Code:       CodeCredentialGeneration,
		Message:    "failed to generate credential",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewDeliveryFailure(err error) error {
	return &DomainError{
		Code:       CodeDeliveryFailed,
		Message:    "message could not be delivered",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewTooManyRequests(message string) error {
	return NewDomainError(CodeTooManyRequests, message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(statusCode(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeValidationFailed
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	default:
		if status >= 500 {
			return CodeInternal
		}
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}
