// Package apperrors defines the failure taxonomy shared by the REST surface,
// the socket gateway, and the services. Every rejection a caller can observe
// wraps one of these sentinels so edges can map them to status codes or ack
// error codes with errors.Is.
package apperrors

import "errors"

var (
	ErrNotAuthenticated     = errors.New("NOT_AUTHENTICATED")
	ErrNotFound             = errors.New("NOT_FOUND")
	ErrForbidden            = errors.New("FORBIDDEN")
	ErrAlreadyMember        = errors.New("ALREADY_MEMBER")
	ErrNotMember            = errors.New("NOT_MEMBER")
	ErrSoleAdminCannotLeave = errors.New("SOLE_ADMIN_CANNOT_LEAVE")
	ErrInvalidInput         = errors.New("INVALID_INPUT")
	ErrUserAlreadyExists    = errors.New("USER_ALREADY_EXISTS")
	ErrInvalidCredentials   = errors.New("INVALID_CREDENTIALS")
	ErrPersistence          = errors.New("PERSISTENCE_FAILURE")
)

// Code returns the stable wire code for err, or "INTERNAL" when the error is
// not part of the taxonomy. Storage-layer errors are reported as
// PERSISTENCE_FAILURE without leaking driver details.
func Code(err error) string {
	for _, sentinel := range []error{
		ErrNotAuthenticated,
		ErrNotFound,
		ErrForbidden,
		ErrAlreadyMember,
		ErrNotMember,
		ErrSoleAdminCannotLeave,
		ErrInvalidInput,
		ErrUserAlreadyExists,
		ErrInvalidCredentials,
		ErrPersistence,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "INTERNAL"
}
