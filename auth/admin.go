package auth

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/users"
	"github.com/rs/zerolog/log"
)

// Profile is the caller's own view of their account.
type Profile struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         users.Role `json:"role"`
	RoleLabel    string     `json:"role_label"`
	Verified     bool       `json:"verified"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	DashboardURL string     `json:"dashboard_url"`
}

func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ProfileOf(user), nil
}

// ProfileOf builds the profile view of an identity already in hand.
func (s *Service) ProfileOf(user *users.User) *Profile {
	return &Profile{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Phone:        user.Phone,
		Role:         user.Role,
		RoleLabel:    user.Role.Label(),
		Verified:     user.Verified,
		CreatedAt:    user.CreatedAt,
		LastLoginAt:  user.LastLoginAt,
		DashboardURL: s.guard.DashboardFor(user.Role),
	}
}

// UserByEmail is used by the admin CLI to address identities.
func (s *Service) UserByEmail(ctx context.Context, email string) (*users.User, error) {
	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		return nil, apperrors.StoreError(err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, offset, limit int) (users.UsersListResponse, error) {
	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	list, err := s.users.List(ctx, offset, limit)
	if err != nil {
		return users.UsersListResponse{}, apperrors.StoreError(err)
	}
	return list, nil
}

// SetActive activates or deactivates an identity. Deactivation revokes every
// refresh token and terminates every session before returning.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Active != active {
		user.Active = active
		if err := s.updateUser(ctx, user); err != nil {
			return err
		}
	}
	if !active {
		if err := s.endAllAccess(ctx, userID); err != nil {
			return err
		}
	}
	log.Info().Str("user_id", userID).Bool("active", active).Msg("user activity changed")
	return nil
}

func (s *Service) SetVerified(ctx context.Context, userID string, verified bool) error {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	user.Verified = verified
	return s.updateUser(ctx, user)
}

// ChangeRole is the only way an identity's role changes. Sessions are
// terminated so the browser surface picks up the new dashboard on next login.
func (s *Service) ChangeRole(ctx context.Context, userID string, role users.Role) error {
	if !role.Valid() {
		return apperrors.FieldErrors{"role": "must be patient, clinician or organization"}
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == role {
		return nil
	}
	user.Role = role
	if err := s.updateUser(ctx, user); err != nil {
		return err
	}
	if err := s.sessions.TerminateAllForUser(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Str("role", string(role)).Msg("user role changed")
	return nil
}

// DeleteUser ends all access for the identity and removes it.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.endAllAccess(ctx, userID); err != nil {
		return err
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.Delete(ctx, userID); err != nil {
		return apperrors.Wrapf(apperrors.StoreError(err), "delete user")
	}
	log.Info().Str("user_id", userID).Msg("user deleted")
	return nil
}

func (s *Service) endAllAccess(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	return s.sessions.TerminateAllForUser(ctx, userID)
}

func (s *Service) updateUser(ctx context.Context, user *users.User) error {
	user.UpdatedAt = s.nowTime().UTC()

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.Wrapf(apperrors.StoreError(err), "update user")
	}
	return nil
}
