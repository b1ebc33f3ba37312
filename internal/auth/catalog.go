package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Catalog manages the role and permission stores. Names are normalized here,
// exactly once, at creation; the stores enforce uniqueness.
type Catalog struct {
	roles RoleStore
	perms PermissionStore
}

// NewCatalog constructs a Catalog.
func NewCatalog(roles RoleStore, perms PermissionStore) (*Catalog, error) {
	if roles == nil || perms == nil {
		return nil, errors.New("auth: role and permission stores are required")
	}
	return &Catalog{roles: roles, perms: perms}, nil
}

// CreateRole creates a role holding the named permissions. Unknown permission
// names fail with ErrNotFound.
func (c *Catalog) CreateRole(ctx context.Context, name, description string, permissionNames []string) (*Role, error) {
	name = NormalizeRoleName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	perms := make([]Permission, 0, len(permissionNames))
	for _, permName := range permissionNames {
		perm, err := c.perms.FindByName(ctx, NormalizePermissionName(permName))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: permission %q", ErrNotFound, permName)
			}
			return nil, err
		}
		perms = append(perms, *perm)
	}
	role := &Role{
		Name:        name,
		Description: strings.TrimSpace(description),
		Permissions: perms,
	}
	if err := c.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole looks a role up by name.
func (c *Catalog) GetRole(ctx context.Context, name string) (*Role, error) {
	name = NormalizeRoleName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return c.roles.FindByName(ctx, name)
}

// ListRoles returns a page of the role catalog ordered by name.
func (c *Catalog) ListRoles(ctx context.Context, limit, offset int) ([]*Role, error) {
	return c.roles.List(ctx, limit, offset)
}

// DeleteRole removes a role; assignments cascade in the store.
func (c *Catalog) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return c.roles.Delete(ctx, id)
}

// CreatePermission creates a named permission.
func (c *Catalog) CreatePermission(ctx context.Context, name, description string) (*Permission, error) {
	name = NormalizePermissionName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm := &Permission{
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := c.perms.Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// GetPermission looks a permission up by name.
func (c *Catalog) GetPermission(ctx context.Context, name string) (*Permission, error) {
	name = NormalizePermissionName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	return c.perms.FindByName(ctx, name)
}

// ListPermissions returns a page of the permission catalog.
func (c *Catalog) ListPermissions(ctx context.Context, limit, offset int) ([]Permission, error) {
	return c.perms.List(ctx, limit, offset)
}

// UpdatePermission changes a permission's description. The name is immutable
// after creation; normalization happens exactly once.
func (c *Catalog) UpdatePermission(ctx context.Context, id, description string) (*Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	perm, err := c.perms.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perm.Description = strings.TrimSpace(description)
	if err := c.perms.Update(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// DeletePermission removes a permission; role links cascade in the store.
func (c *Catalog) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return c.perms.Delete(ctx, id)
}
