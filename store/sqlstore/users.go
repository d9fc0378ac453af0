package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jrsteele09/care-auth-server/internal/database"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/ids"
	"github.com/jrsteele09/care-auth-server/users"
)

const userColumns = "id, email, full_name, phone, password_hash, role, verified, active, created_at, updated_at, last_login_at"

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *database.DB
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = ids.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.Email = users.NormalizeEmail(user.Email)

	_, err := exec(ctx, r.db, r.db, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FullName, nullIfEmpty(user.Phone), user.PasswordHash, string(user.Role),
		user.Verified, user.Active, user.CreatedAt.UTC(), user.UpdatedAt.UTC(), nullTime(user.LastLoginAt))
	return r.mapUnique(err)
}

func (r *UserRepo) Update(ctx context.Context, user *users.User) error {
	user.Email = users.NormalizeEmail(user.Email)
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}

	res, err := exec(ctx, r.db, r.db, `UPDATE users SET email = ?, full_name = ?, phone = ?, password_hash = ?, role = ?,
		verified = ?, active = ?, updated_at = ?, last_login_at = ? WHERE id = ?`,
		user.Email, user.FullName, nullIfEmpty(user.Phone), user.PasswordHash, string(user.Role),
		user.Verified, user.Active, user.UpdatedAt.UTC(), nullTime(user.LastLoginAt), user.ID)
	if err != nil {
		return r.mapUnique(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := exec(ctx, r.db, r.db, "UPDATE users SET last_login_at = ? WHERE id = ?", at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := exec(ctx, r.db, r.db, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, "email", users.NormalizeEmail(email))
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*users.User, error) {
	if phone == "" {
		return nil, apperrors.ErrNotFound
	}
	return r.getOne(ctx, "phone", phone)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, "id", id)
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) (users.UsersListResponse, error) {
	resp := users.UsersListResponse{Offset: offset, Limit: limit, Users: []*users.User{}}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&resp.Total); err != nil {
		return resp, database.StoreError(err)
	}

	if limit <= 0 {
		limit = resp.Total
	}
	rows, err := r.db.QueryContext(ctx, r.db.Dialect().Rebind("SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return resp, database.StoreError(err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return resp, database.StoreError(err)
		}
		resp.Users = append(resp.Users, u)
	}
	return resp, database.StoreError(rows.Err())
}

func (r *UserRepo) CountByRole(ctx context.Context, role users.Role) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, r.db.Dialect().Rebind("SELECT COUNT(*) FROM users WHERE role = ?"), string(role)).Scan(&count)
	if err != nil {
		return 0, database.StoreError(err)
	}
	return count, nil
}

func (r *UserRepo) getOne(ctx context.Context, column, value string) (*users.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.Dialect().Rebind("SELECT "+userColumns+" FROM users WHERE "+column+" = ?"), value)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (r *UserRepo) mapUnique(err error) error {
	if err == nil {
		return nil
	}
	constraint, ok := r.db.Dialect().UniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(constraint, "phone"):
		return apperrors.ErrDuplicatePhone
	default:
		return apperrors.ErrDuplicateEmail
	}
}

func scanUser(row scanner) (*users.User, error) {
	var (
		u         users.User
		phone     sql.NullString
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &phone, &u.PasswordHash, &role,
		&u.Verified, &u.Active, &u.CreatedAt, &u.UpdatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Phone = phone.String
	u.Role = users.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
