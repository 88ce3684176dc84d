package services

import "errors"

var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrOtpNotFound        = errors.New("no verification code was requested for this email")
	ErrOtpExpired         = errors.New("verification code has expired")
	ErrOtpMismatch        = errors.New("verification code is incorrect")
	ErrOtpTooManyAttempts = errors.New("too many incorrect attempts, request a new code")
	ErrOtpDispatchFailed  = errors.New("verification code could not be sent")
	ErrOtpNotVerified     = errors.New("email has not been verified")
	ErrStaleRegistration  = errors.New("registration data not found, please fill in the form again")
	ErrPersistence        = errors.New("account could not be saved")
	ErrPersistenceTimeout = errors.New("account could not be saved in time")
)

// ValidationError reports a missing or malformed registration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
