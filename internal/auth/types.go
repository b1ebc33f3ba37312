package auth

import (
	"strings"
	"time"
)

// Built-in role names seeded by the migrations.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Built-in permission names seeded by the migrations.
const (
	PermViewUsers         = "VIEW_USERS"
	PermCreateUser        = "CREATE_USER"
	PermUpdateUser        = "UPDATE_USER"
	PermDeleteUser        = "DELETE_USER"
	PermViewRoles         = "VIEW_ROLES"
	PermManageRoles       = "MANAGE_ROLES"
	PermViewPermissions   = "VIEW_PERMISSIONS"
	PermManagePermissions = "MANAGE_PERMISSIONS"
)

// User is a principal. PasswordDigest is nil for accounts provisioned through
// an external identity provider; such accounts always carry a provider tag.
// RefreshTokenHash holds the SHA-256 of the current refresh token and is nil
// after logout. Lookups used for authentication load Roles (and each role's
// Permissions) eagerly.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordDigest   *string   `json:"-"`
	FullName         string    `json:"full_name"`
	IsActive         bool      `json:"is_active"`
	Provider         *string   `json:"provider,omitempty"`
	RefreshTokenHash *string   `json:"-"`
	Roles            []Role    `json:"roles,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role groups permissions under a unique name. The name is normalized exactly
// once, at creation.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission is a named capability. Same normalize-once-at-creation rule as
// roles.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Profile is the outward projection of a user, built once at the service
// boundary. It never carries the password digest or the stored refresh-token
// hash.
type Profile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	IsActive    bool     `json:"is_active"`
	Provider    string   `json:"provider,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// NewProfile projects a user together with its flattened authorization set.
func NewProfile(u *User) Profile {
	set := Resolve(u)
	p := Profile{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		Roles:       set.Roles,
		Permissions: set.Permissions,
	}
	if u.Provider != nil {
		p.Provider = *u.Provider
	}
	return p
}

// NormalizeEmail lower-cases and trims an email address. Applied before every
// insert and update so the unique index always sees the canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRoleName upper-cases a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// NormalizePermissionName upper-cases a permission name and replaces spaces
// with underscores.
func NormalizePermissionName(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), " ", "_")
}
