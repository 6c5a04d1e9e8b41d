package storage

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/medibook/libs/db"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/access"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/model"
	"github.com/md-rashed-zaman/medibook/services/hospital-api/internal/users"
)

type UserStore struct {
	pool *db.Pool
}

var (
	_ users.Store            = (*UserStore)(nil)
	_ access.PrincipalLoader = (*UserStore)(nil)
)

const userSelect = `
	SELECT u.id::text, u.name, u.email, u.phone, u.gender, u.date_of_birth, u.address, u.password_hash,
		u.role_type, COALESCE(u.role_id::text, ''), u.avatar_key, u.avatar_url,
		u.is_verified, u.is_locked, u.created_at, u.updated_at,
		COALESCE(r.name, ''), COALESCE(r.description, ''), COALESCE(r.permissions, '{}'),
		COALESCE(r.is_active, false), COALESCE(r.created_at, u.created_at), COALESCE(r.updated_at, u.updated_at)
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id`

// scanUser reads a user with its custom role populated when one is assigned.
func scanUser(row rowScanner) (model.User, error) {
	var (
		u                    model.User
		roleID               string
		avatarKey, avatarURL string
		role                 model.Role
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Gender, &u.DateOfBirth, &u.Address, &u.PasswordHash,
		&u.RoleType, &roleID, &avatarKey, &avatarURL,
		&u.IsVerified, &u.IsLocked, &u.CreatedAt, &u.UpdatedAt,
		&role.Name, &role.Description, &role.Permissions, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if roleID != "" {
		role.ID = roleID
		u.Role = model.Populated(role)
	}
	if avatarURL != "" {
		u.Avatar = &model.Avatar{Key: avatarKey, URL: avatarURL}
	}
	return u, nil
}

func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, phone, gender, date_of_birth, address, password_hash, role_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text, created_at, updated_at
	`, u.Name, u.Email, u.Phone, u.Gender, u.DateOfBirth, u.Address, u.PasswordHash, string(u.RoleType),
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return users.ErrEmailTaken
	}
	return err
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE lower(u.email) = lower($1)`, email))
	return u, missing(err, users.ErrNotFound)
}

func (s *UserStore) Get(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
	return u, missing(err, users.ErrNotFound)
}

// LoadPrincipal serves the authentication middleware.
func (s *UserStore) LoadPrincipal(ctx context.Context, userID string) (model.User, *model.Role, error) {
	u, err := s.Get(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return model.User{}, nil, access.ErrUnknownUser
	}
	if err != nil {
		return model.User{}, nil, err
	}
	if r, ok := u.Role.Value(); ok {
		return u, &r, nil
	}
	return u, nil, nil
}

func (s *UserStore) List(ctx context.Context, f users.Filter) ([]model.User, int, error) {
	w := &where{}
	if f.Search != "" {
		w.add("(u.name ILIKE ? OR u.email ILIKE ? OR u.phone ILIKE ?)", likePattern(f.Search))
	}
	if f.RoleType != "" {
		w.add("u.role_type = ?", string(f.RoleType))
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users u`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, userSelect+w.String()+` ORDER BY u.created_at DESC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (s *UserStore) UpdateProfile(ctx context.Context, u model.User) error {
	return s.exec(ctx, `
		UPDATE users
		SET name = $2, phone = $3, gender = $4, date_of_birth = $5, address = $6, updated_at = now()
		WHERE id = $1
	`, u.ID, u.Name, u.Phone, u.Gender, u.DateOfBirth, u.Address)
}

func (s *UserStore) UpdateAccess(ctx context.Context, u model.User) error {
	return s.exec(ctx, `
		UPDATE users
		SET role_type = $2, role_id = $3, is_verified = $4, is_locked = $5, updated_at = now()
		WHERE id = $1
	`, u.ID, string(u.RoleType), nullable(u.Role.ID()), u.IsVerified, u.IsLocked)
}

func (s *UserStore) SetPassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (s *UserStore) SetAvatar(ctx context.Context, id string, avatar model.Avatar) error {
	return s.exec(ctx, `UPDATE users SET avatar_key = $2, avatar_url = $3, updated_at = now() WHERE id = $1`,
		id, avatar.Key, avatar.URL)
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (s *UserStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return missing(err, users.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

const roleSelect = `SELECT id::text, name, description, permissions, is_active, created_at, updated_at FROM roles`

func scanRole(row rowScanner) (model.Role, error) {
	var r model.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Permissions, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *UserStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := s.pool.Query(ctx, roleSelect+` ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Role{}
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *UserStore) Role(ctx context.Context, id string) (model.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx, roleSelect+` WHERE id = $1`, id))
	return r, missing(err, users.ErrRoleNotFound)
}

func (s *UserStore) CreateRole(ctx context.Context, r *model.Role) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, permissions, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at, updated_at
	`, r.Name, r.Description, r.Permissions, r.IsActive).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return users.ErrRoleExists
	}
	return err
}

func (s *UserStore) UpdateRole(ctx context.Context, r *model.Role) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, permissions = $4, is_active = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, r.ID, r.Name, r.Description, r.Permissions, r.IsActive).Scan(&r.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return users.ErrRoleExists
	}
	return missing(err, users.ErrRoleNotFound)
}
