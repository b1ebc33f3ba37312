package pg

import (
	"context"
	"database/sql"

	"gatehouse.io/internal/auth"
	"gatehouse.io/internal/ids"
)

var (
	_ auth.RoleStore       = (*roleStore)(nil)
	_ auth.PermissionStore = (*permissionStore)(nil)
)

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, role.ID, role.Name, role.Description)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return translateError(err)
	}
	for _, perm := range role.Permissions {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id) values ($1, $2)
			on conflict do nothing
		`, role.ID, perm.ID); err != nil {
			return translateError(err)
		}
	}
	return tx.Commit()
}

func (s *roleStore) FindByID(ctx context.Context, id string) (*auth.Role, error) {
	return s.findOne(ctx, `
		select id, name, description, created_at, updated_at from roles where id = $1
	`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findOne(ctx, `
		select id, name, description, created_at, updated_at from roles where name = $1
	`, name)
}

func (s *roleStore) findOne(ctx context.Context, query, arg string) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var role auth.Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	perms, err := s.loadPermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *roleStore) loadPermissions(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.created_at, p.updated_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *roleStore) List(ctx context.Context, limit, offset int) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		order by name
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, role := range roles {
		perms, err := s.loadPermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	return roles, nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name, description)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, perm.ID, perm.Name, perm.Description)
	if err := row.Scan(&perm.CreatedAt, &perm.UpdatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *permissionStore) FindByID(ctx context.Context, id string) (*auth.Permission, error) {
	return s.findOne(ctx, `
		select id, name, description, created_at, updated_at from permissions where id = $1
	`, id)
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	return s.findOne(ctx, `
		select id, name, description, created_at, updated_at from permissions where name = $1
	`, name)
}

func (s *permissionStore) findOne(ctx context.Context, query, arg string) (*auth.Permission, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var p auth.Permission
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

func (s *permissionStore) List(ctx context.Context, limit, offset int) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from permissions
		order by name
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) Update(ctx context.Context, perm *auth.Permission) error {
	res, err := s.db.ExecContext(ctx, `
		update permissions set description = $2, updated_at = now() where id = $1
	`, perm.ID, perm.Description)
	if err != nil {
		return translateError(err)
	}
	return requireRow(res)
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
