package pg

import (
	"context"
	"database/sql"

	"gatehouse.io/internal/auth"
	"gatehouse.io/internal/ids"
)

var _ auth.UserStore = (*userStore)(nil)

type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_digest, full_name, is_active, provider, refresh_token_hash, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = auth.NormalizeEmail(u.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, email, password_digest, full_name, is_active, provider)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordDigest, u.FullName, u.IsActive, u.Provider)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return translateError(err)
	}
	for _, role := range u.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
			on conflict do nothing
		`, u.ID, role.ID); err != nil {
			return translateError(err)
		}
	}
	return tx.Commit()
}

func (s *userStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `select `+userColumns+` from users where email = $1`, auth.NormalizeEmail(email))
}

func (s *userStore) findOne(ctx context.Context, query, arg string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var u auth.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordDigest, &u.FullName, &u.IsActive,
		&u.Provider, &u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	roles, err := s.loadRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

// loadRoles materializes the user's roles together with each role's
// permissions in a single join, so every authentication lookup sees the full
// authorization graph.
func (s *userStore) loadRoles(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, p.id, p.name, p.description
		from user_roles ur
		join roles r on r.id = ur.role_id
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		order by r.name, p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		roles []auth.Role
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			role     auth.Role
			permID   sql.NullString
			permName sql.NullString
			permDesc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &permID, &permName, &permDesc); err != nil {
			return nil, err
		}
		pos, ok := index[role.ID]
		if !ok {
			pos = len(roles)
			index[role.ID] = pos
			roles = append(roles, role)
		}
		if permID.Valid {
			roles[pos].Permissions = append(roles[pos].Permissions, auth.Permission{
				ID:          permID.String,
				Name:        permName.String,
				Description: permDesc.String,
			})
		}
	}
	return roles, rows.Err()
}

func (s *userStore) Search(ctx context.Context, name string, limit, offset int) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, full_name, is_active, provider, created_at, updated_at
		from users
		where lower(full_name) like '%' || lower($1) || '%'
		order by full_name
		limit $2 offset $3
	`, name, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.Provider, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, u *auth.User) error {
	u.Email = auth.NormalizeEmail(u.Email)
	res, err := s.db.ExecContext(ctx, `
		update users set email = $2, full_name = $3, updated_at = now()
		where id = $1
	`, u.ID, u.Email, u.FullName)
	if err != nil {
		return translateError(err)
	}
	return requireRow(res)
}

func (s *userStore) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id) values ($1, $2)
		`, userID, roleID); err != nil {
			return translateError(err)
		}
	}
	return tx.Commit()
}

func (s *userStore) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active = $2, updated_at = now() where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetPasswordDigest(ctx context.Context, userID, digest string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_digest = $2, updated_at = now() where id = $1
	`, userID, digest)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetRefreshTokenHash(ctx context.Context, userID string, hash *string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set refresh_token_hash = $2, updated_at = now() where id = $1
	`, userID, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}
