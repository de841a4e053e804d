package services

import (
	"errors"

	"github.com/baharkarakas/pixhub/internal/ledger"
)

var (
	ErrValidation                 = errors.New("validation failed")
	ErrDuplicateExternalReference = errors.New("external reference already exists")
	ErrInsufficientFunds          = ledger.ErrInsufficientFunds
	ErrCashOutDisabled            = errors.New("cash-out disabled for merchant")
	ErrNonPositiveNet             = errors.New("net amount must be positive")
	ErrInvalidStatus              = errors.New("invalid status for operation")
	ErrProviderUnavailable        = errors.New("provider not configured")
	ErrProviderFailed             = errors.New("provider call failed")
	ErrNotFound                   = errors.New("not found")
	ErrUnauthorized               = errors.New("unauthorized")
)

// FieldError is a validation failure bound to one request field.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Msg }

func (e *FieldError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error { return &FieldError{Field: field, Msg: msg} }
