package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Check with errors.Is.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrValidation           = errors.New("validation failed")
	ErrEmptyCart            = errors.New("empty cart")
	ErrProvider             = errors.New("payment provider error")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyPaid          = errors.New("order already paid")
	ErrNotPaid              = errors.New("order not paid")
)

// Error is a coded error. Code is logged as err_code by the telegram router.
type Error struct {
	ErrCode string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.ErrCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine readable error code.
func (e *Error) Code() string { return e.ErrCode }

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{ErrCode: "NOT_FOUND", Message: fmt.Sprintf("%s %q not found", resource, id), Err: ErrNotFound}
}

// Validation reports invalid input.
func Validation(field, reason string) *Error {
	return &Error{ErrCode: "VALIDATION_ERROR", Message: fmt.Sprintf("invalid %s: %s", field, reason), Err: ErrValidation}
}

// ValidationWrap reports invalid input caused by err; both sentinels match.
func ValidationWrap(field string, err error) *Error {
	return &Error{ErrCode: "VALIDATION_ERROR", Message: "invalid " + field, Err: errors.Join(ErrValidation, err)}
}

// Provider reports a failed payment provider call.
func Provider(provider string, err error) *Error {
	return &Error{ErrCode: "PROVIDER_ERROR", Message: provider + " request failed", Err: errors.Join(ErrProvider, err)}
}

// Signature reports a webhook payload that failed authentication.
func Signature(provider string, err error) *Error {
	return &Error{ErrCode: "INVALID_SIGNATURE", Message: provider + " signature rejected", Err: errors.Join(ErrInvalidSignature, err)}
}

// MissingConfig reports an absent configuration key.
func MissingConfig(key string) *Error {
	return &Error{ErrCode: "CONFIG_MISSING", Message: key + " is not set", Err: ErrConfigurationMissing}
}
