package auth

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/users"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// RegistrationRequest is the sign-up payload shared by the HTML form and the API.
type RegistrationRequest struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

func (r *RegistrationRequest) normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = users.NormalizeEmail(r.Email)
	r.Phone = users.NormalizePhone(r.Phone)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

// Validate checks field formats. Password strength and uniqueness are checked
// by Register.
func (r RegistrationRequest) Validate() error {
	roles := make([]interface{}, 0, len(users.Roles))
	for _, role := range users.Roles {
		roles = append(roles, string(role))
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Phone, validation.Match(phonePattern).Error("must be a valid phone number")),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(stringEquals(r.Password)),
		),
		validation.Field(&r.Role, validation.In(roles...).Error("must be patient, clinician or organization")),
	)
	return toFieldErrors(err)
}

func stringEquals(want string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s != want {
			return fmt.Errorf("passwords do not match")
		}
		return nil
	}
}

func toFieldErrors(err error) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validation.Errors)
	if !ok {
		return err
	}
	fe := apperrors.FieldErrors{}
	for field, ferr := range verrs {
		fe[field] = ferr.Error()
	}
	return fe
}

// FieldErrorsFor maps a registration failure onto form fields. Errors that
// do not belong to a field return nil.
func FieldErrorsFor(err error) apperrors.FieldErrors {
	var fe apperrors.FieldErrors
	switch {
	case apperrors.As(err, &fe):
		return fe
	case apperrors.Is(err, apperrors.ErrDuplicateEmail):
		return apperrors.FieldErrors{"email": apperrors.ErrDuplicateEmail.Error()}
	case apperrors.Is(err, apperrors.ErrDuplicatePhone):
		return apperrors.FieldErrors{"phone": apperrors.ErrDuplicatePhone.Error()}
	case apperrors.Is(err, apperrors.ErrWeakPassword):
		return apperrors.FieldErrors{"password": err.Error()}
	default:
		return nil
	}
}
