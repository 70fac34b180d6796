package errors

import (
	"context"
	"errors"
)

// Sync error taxonomy. Every failure that reaches an outcome or a sync log
// entry is classified into exactly one of these.
var (
	// Per-entity errors
	ErrNetwork            = errors.New("network error")
	ErrRemoteValidation   = errors.New("remote validation error")
	ErrRemoteServer       = errors.New("remote server error")
	ErrStaleToken         = errors.New("stale access token")
	ErrDependencyUnsynced = errors.New("dependency unsynced")
	ErrInvalidRecord      = errors.New("invalid record")

	// Account-fatal
	ErrAuthExpired       = errors.New("authorization expired")
	ErrCredentialMissing = errors.New("credential missing")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Kind is the taxonomy label recorded against a failed attempt.
type Kind string

const (
	KindNone               Kind = ""
	KindNetwork            Kind = "network"
	KindRemoteValidation   Kind = "remote_validation"
	KindRemoteServer       Kind = "remote_server"
	KindStaleToken         Kind = "stale_token"
	KindAuthExpired        Kind = "auth_expired"
	KindDependencyUnsynced Kind = "dependency_unsynced"
	KindInvalidRecord      Kind = "invalid_record"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Classify maps an error chain onto its taxonomy kind. Order matters: an
// auth failure wrapped inside a dependency failure is still account-fatal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthExpired), errors.Is(err, ErrCredentialMissing):
		return KindAuthExpired
	case errors.Is(err, ErrDependencyUnsynced):
		return KindDependencyUnsynced
	case errors.Is(err, ErrStaleToken):
		return KindStaleToken
	case errors.Is(err, ErrRemoteValidation):
		return KindRemoteValidation
	case errors.Is(err, ErrRemoteServer):
		return KindRemoteServer
	case errors.Is(err, ErrInvalidRecord):
		return KindInvalidRecord
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindNetwork
	}
	return KindInternal
}

// IsAccountFatal reports whether err blocks every further call for the account.
func IsAccountFatal(err error) bool {
	return Classify(err) == KindAuthExpired
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
