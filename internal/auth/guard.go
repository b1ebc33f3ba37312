package auth

import (
	"context"
	"fmt"
	"strings"
)

// ErrMissingPrincipal signals a wiring fault: a requirement was evaluated on
// a request with no attached principal. Token verification should have
// rejected the request before this point, so this is an internal error, never
// a Forbidden.
var ErrMissingPrincipal = fmt.Errorf("%w: no principal attached to request", ErrInternal)

// Principal is the request-scoped snapshot of an authenticated user as
// embedded in the verified token claims. It is not re-resolved from storage;
// freshness-critical operations reload explicitly.
type Principal struct {
	UserID      string
	Email       string
	FullName    string
	Roles       []string
	Permissions []string
}

// PrincipalFromClaims builds the principal snapshot out of verified claims.
func PrincipalFromClaims(claims *Claims) Principal {
	return Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		FullName:    claims.FullName,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
}

type requirementKind int

const (
	requireNone requirementKind = iota
	requirePermissions
	requireRoles
	requireRefresh
)

// Requirement declares what a protected operation demands from the caller:
// nothing beyond authentication, at least one of a list of permissions, at
// least one of a list of roles, or a valid refresh token. Exactly one
// Requirement is attached to each protected operation at registration and
// inspected at dispatch time.
type Requirement struct {
	kind        requirementKind
	permissions []string
	roles       []string
}

// RequireAuthenticated admits any authenticated principal.
func RequireAuthenticated() Requirement {
	return Requirement{kind: requireNone}
}

// RequirePermissions admits principals holding at least one of the named
// permissions.
func RequirePermissions(names ...string) Requirement {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		normalized = append(normalized, NormalizePermissionName(name))
	}
	return Requirement{kind: requirePermissions, permissions: normalized}
}

// RequireRoles admits principals holding at least one of the named roles.
func RequireRoles(names ...string) Requirement {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		normalized = append(normalized, NormalizeRoleName(name))
	}
	return Requirement{kind: requireRoles, roles: normalized}
}

// RequireRefreshToken bypasses the access-token path: the bearer token is
// verified against the refresh secret instead. Used solely by the refresh
// operation.
func RequireRefreshToken() Requirement {
	return Requirement{kind: requireRefresh}
}

// RefreshOnly reports whether the bearer token must be verified against the
// refresh secret rather than the access secret.
func (r Requirement) RefreshOnly() bool {
	return r.kind == requireRefresh
}

// Evaluate checks the requirement against the principal attached to ctx:
// allow when no specific permission or role is demanded, otherwise allow on
// any overlap between the demanded list and the principal's set, else fail
// with ErrForbidden.
func (r Requirement) Evaluate(ctx context.Context) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrMissingPrincipal
	}
	switch r.kind {
	case requireNone, requireRefresh:
		return nil
	case requirePermissions:
		if overlaps(principal.Permissions, r.permissions) {
			return nil
		}
		return fmt.Errorf("%w: user %s needs a valid permission: %s",
			ErrForbidden, principal.FullName, strings.Join(r.permissions, ", "))
	case requireRoles:
		if overlaps(principal.Roles, r.roles) {
			return nil
		}
		return fmt.Errorf("%w: user %s needs a valid role: %s",
			ErrForbidden, principal.FullName, strings.Join(r.roles, ", "))
	}
	return ErrMissingPrincipal
}

func overlaps(held, required []string) bool {
	for _, h := range held {
		for _, r := range required {
			if h == r {
				return true
			}
		}
	}
	return false
}
