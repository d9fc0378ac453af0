package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/rs/zerolog/log"
)

// TestUser is a development account created by SeedTestUsers.
type TestUser struct {
	Email    string
	Password string
	FullName string
	Phone    string
	Role     users.Role
}

// TestUsers are the development accounts. Their passwords are deliberately
// simple and bypass the strength policy; never seed them outside DEV.
var TestUsers = []TestUser{
	{Email: "admin@intimacare.com", Password: "admin123", FullName: "IntimaCare Administrator", Phone: "+15550000001", Role: users.RoleOrganization},
	{Email: "doctor@intimacare.com", Password: "doctor123", FullName: "Dr. Sarah Smith", Phone: "+15550000002", Role: users.RoleClinician},
	{Email: "patient@example.com", Password: "patient123", FullName: "John Doe", Phone: "+15550000003", Role: users.RolePatient},
	{Email: "org@healthcorp.com", Password: "org123", FullName: "HealthCorp Organization", Phone: "+15550000004", Role: users.RoleOrganization},
}

// SeedTestUsers creates the development accounts, skipping emails that exist.
// It returns the accounts it created.
func (s *Service) SeedTestUsers(ctx context.Context) ([]TestUser, error) {
	var created []TestUser
	for _, tu := range TestUsers {
		_, err := s.UserByEmail(ctx, tu.Email)
		if err == nil {
			log.Info().Str("email", tu.Email).Msg("test user already exists")
			continue
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return created, err
		}

		if err := s.createUser(ctx, tu.Email, tu.FullName, tu.Phone, tu.Password, tu.Role, true); err != nil {
			return created, fmt.Errorf("seeding %s: %w", tu.Email, err)
		}
		log.Info().Str("email", tu.Email).Str("role", string(tu.Role)).Msg("created test user")
		created = append(created, tu)
	}
	return created, nil
}

// Bootstrap creates a first Organization account when the store has none and
// returns its generated password. created is false when one already exists.
func (s *Service) Bootstrap(ctx context.Context, email string) (password string, created bool, err error) {
	ctx2, cancel := storeContext(ctx, s.storeTimeout)
	count, err := s.users.CountByRole(ctx2, users.RoleOrganization)
	cancel()
	if err != nil {
		return "", false, apperrors.Wrapf(apperrors.StoreError(err), "bootstrap count")
	}
	if count > 0 {
		return "", false, nil
	}

	password, err = GeneratePassword()
	if err != nil {
		return "", false, err
	}
	if err := s.createUser(ctx, email, "Organization Administrator", "", password, users.RoleOrganization, true); err != nil {
		return "", false, fmt.Errorf("bootstrap: %w", err)
	}
	return password, true, nil
}

func (s *Service) createUser(ctx context.Context, email, fullName, phone, password string, role users.Role, verified bool) error {
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	now := s.nowTime().UTC()
	user := &users.User{
		Email:        users.NormalizeEmail(email),
		FullName:     fullName,
		Phone:        users.NormalizePhone(phone),
		PasswordHash: hash,
		Role:         role,
		Verified:     verified,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	return apperrors.StoreError(s.users.Create(ctx, user))
}

// GeneratePassword returns a random password that passes the strength policy.
func GeneratePassword() (string, error) {
	for {
		buf := make([]byte, 18)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating password: %w", err)
		}
		password := base64.RawURLEncoding.EncodeToString(buf)
		if users.ValidatePasswordStrength(password) == nil {
			return password, nil
		}
	}
}
