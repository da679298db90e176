package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("domain: not found")
	ErrConflict     = errors.New("domain: conflict")
	ErrInvalidInput = errors.New("domain: invalid input")
)

// ErrorKind is the closed set of failure classes that cross the control API
// boundary alongside any human-readable detail.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindChallengeRequired  ErrorKind = "challenge_required"
	KindTransient          ErrorKind = "transient"
	KindSessionInvalid     ErrorKind = "session_invalid"
	KindOperationFailed    ErrorKind = "operation_failed"
)
