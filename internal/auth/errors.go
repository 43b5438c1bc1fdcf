package auth

import "errors"

var (
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrAccountDisabled  = errors.New("auth: account disabled")
	ErrPermissionDenied = errors.New("auth: permission denied")
	ErrConflict         = errors.New("auth: resource conflict")
	ErrNotFound         = errors.New("auth: not found")
	ErrInvalidInput     = errors.New("auth: invalid input")
)

// SecurityAlert marks an unauthenticated failure that warrants alerting, such
// as presentation of an already-rotated refresh token. It unwraps to
// ErrUnauthenticated so the external response stays indistinguishable from a
// routine denial; callers that alert detect it with errors.As.
type SecurityAlert struct {
	Event        string
	UserID       string
	RevokedCount int
}

func (e *SecurityAlert) Error() string { return ErrUnauthenticated.Error() }

func (e *SecurityAlert) Unwrap() error { return ErrUnauthenticated }
