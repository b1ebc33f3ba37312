package auth

import "errors"

var (
	// ErrUnauthorized covers bad credentials, inactive users and rejected
	// recovery tokens. Deliberately uninformative so callers cannot
	// enumerate accounts.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden means the caller is authenticated but lacks the required
	// permission or role, or presented a refresh token that no longer matches.
	ErrForbidden    = errors.New("auth: forbidden")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInternal wraps unexpected storage failures and wiring faults. The
	// detail is logged server-side and never returned to the caller.
	ErrInternal = errors.New("auth: internal error")
)
