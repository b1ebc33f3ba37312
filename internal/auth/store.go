package auth

import "context"

// UserStore persists principals. FindByID and FindByEmail are the lookups
// used for authentication and load roles (with their permissions) eagerly;
// Search returns a light projection without roles. Implementations surface
// uniqueness violations as ErrConflict and missing rows as ErrNotFound.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Search(ctx context.Context, name string, limit, offset int) ([]*User, error)
	Update(ctx context.Context, u *User) error
	ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error
	SetActive(ctx context.Context, userID string, active bool) error
	SetPasswordDigest(ctx context.Context, userID, digest string) error
	// SetRefreshTokenHash overwrites the stored refresh-token hash in a single
	// row update; nil clears it. Rotation relies on this being the only write
	// to the field.
	SetRefreshTokenHash(ctx context.Context, userID string, hash *string) error
}

// RoleStore persists the role catalog. Role lookups load permissions eagerly.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, limit, offset int) ([]*Role, error)
	Delete(ctx context.Context, id string) error
}

// PermissionStore persists the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	FindByID(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context, limit, offset int) ([]Permission, error)
	Update(ctx context.Context, perm *Permission) error
	Delete(ctx context.Context, id string) error
}
