package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a referenced card, user or request does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation means a business rule was violated
	ErrValidation = errors.New("validation failed")

	// ErrAccessDenied means the caller lacks ownership or privilege
	ErrAccessDenied = errors.New("access denied")

	// ErrEncryption means key material is invalid or ciphertext is malformed
	ErrEncryption = errors.New("encryption failure")

	// ErrUnauthenticated means credentials or a token could not be verified
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCardData means a card number has the wrong shape for display
	ErrInvalidCardData = errors.New("invalid card data")
)

// kindError carries a human readable message and one or more error kinds.
type kindError struct {
	msg   string
	kinds []error
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Is matches any of the kinds the error was built with.
func (e *kindError) Is(target error) bool {
	for _, k := range e.kinds {
		if k == target {
			return true
		}
	}
	return false
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// NotFoundf builds an ErrNotFound error
func NotFoundf(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kinds: []error{ErrNotFound}}
}

// Validationf builds an ErrValidation error
func Validationf(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kinds: []error{ErrValidation}}
}

// AccessDeniedf builds an ErrAccessDenied error
func AccessDeniedf(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kinds: []error{ErrAccessDenied}}
}

// Unauthenticatedf builds an ErrUnauthenticated error
func Unauthenticatedf(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kinds: []error{ErrUnauthenticated}}
}

// InvalidCardDataf builds an ErrInvalidCardData error, which is also a validation error
func InvalidCardDataf(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kinds: []error{ErrInvalidCardData, ErrValidation}}
}

// EncryptionError wraps cause as an ErrEncryption error
func EncryptionError(msg string, cause error) error {
	return &kindError{msg: msg, kinds: []error{ErrEncryption}, cause: cause}
}

// Message returns the human readable part of a kind error, or err.Error() otherwise.
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	return err.Error()
}
