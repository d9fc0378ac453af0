package users

import (
	"context"
	"time"
)

// Repo persists identities. Lookups that miss return errors.ErrNotFound;
// Create returns errors.ErrDuplicateEmail / errors.ErrDuplicatePhone on
// uniqueness violations.
type Repo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	// RecordLogin sets only LastLoginAt, leaving activity and role untouched.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context, offset, limit int) (UsersListResponse, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

type UsersListResponse struct {
	Users  []*User `json:"users"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}
