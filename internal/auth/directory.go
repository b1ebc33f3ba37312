package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Directory manages user records outside the authentication flows: lookup,
// search, profile updates, role assignment and activation. Everything it
// returns is a projection; password digests and refresh-token hashes never
// leave this package.
type Directory struct {
	users UserStore
	roles RoleStore
}

// NewDirectory constructs a Directory.
func NewDirectory(users UserStore, roles RoleStore) (*Directory, error) {
	if users == nil || roles == nil {
		return nil, errors.New("auth: user and role stores are required")
	}
	return &Directory{users: users, roles: roles}, nil
}

// GetUser loads a user by id with the full authorization set resolved.
func (d *Directory) GetUser(ctx context.Context, id string) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := d.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := NewProfile(user)
	return &profile, nil
}

// SearchUsers returns a page of light projections matched by display name.
// Roles are not loaded for listings.
func (d *Directory) SearchUsers(ctx context.Context, name string, limit, offset int) ([]Profile, error) {
	users, err := d.users.Search(ctx, strings.TrimSpace(name), limit, offset)
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, Profile{
			ID:       u.ID,
			Email:    u.Email,
			FullName: u.FullName,
			IsActive: u.IsActive,
			Provider: derefOrEmpty(u.Provider),
		})
	}
	return profiles, nil
}

// UserUpdate carries the mutable user fields; nil means unchanged. Roles, if
// present, replaces the assignment set wholesale.
type UserUpdate struct {
	Email    *string
	FullName *string
	Roles    []string
}

// UpdateUser applies the update and returns the refreshed projection. Role
// names resolve against the catalog; unknown names fail with ErrNotFound.
func (d *Directory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := d.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		user.Email = email
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
		}
		user.FullName = name
	}
	if err := d.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if len(upd.Roles) > 0 {
		roleIDs := make([]string, 0, len(upd.Roles))
		newRoles := make([]Role, 0, len(upd.Roles))
		for _, name := range upd.Roles {
			role, err := d.roles.FindByName(ctx, NormalizeRoleName(name))
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
				}
				return nil, err
			}
			roleIDs = append(roleIDs, role.ID)
			newRoles = append(newRoles, *role)
		}
		if err := d.users.ReplaceRoles(ctx, id, roleIDs); err != nil {
			return nil, err
		}
		user.Roles = newRoles
	}
	profile := NewProfile(user)
	return &profile, nil
}

// Activate re-enables a principal at every authentication entry point.
func (d *Directory) Activate(ctx context.Context, id string) error {
	return d.setActive(ctx, id, true)
}

// Deactivate locks a principal out of every authentication entry point. The
// record remains for catalog purposes.
func (d *Directory) Deactivate(ctx context.Context, id string) error {
	return d.setActive(ctx, id, false)
}

func (d *Directory) setActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return d.users.SetActive(ctx, id, active)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
