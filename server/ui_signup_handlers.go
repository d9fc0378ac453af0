package server

import (
	"net/http"

	"github.com/jrsteele09/care-auth-server/auth"
	apperrors "github.com/jrsteele09/care-auth-server/internal/errors"
	"github.com/jrsteele09/care-auth-server/internal/metrics"
	"github.com/jrsteele09/care-auth-server/users"
)

// SignupPageData is the template model for signup.html
type SignupPageData struct {
	AppName string
	Error   string
	Form    auth.RegistrationRequest
	Errors  map[string]string
	Roles   []RoleOption
}

type RoleOption struct {
	Value    string
	Label    string
	Selected bool
}

func roleOptions(selected users.Role) []RoleOption {
	if !selected.Valid() {
		selected = users.DefaultRole
	}
	options := make([]RoleOption, 0, len(users.Roles))
	for _, role := range users.Roles {
		options = append(options, RoleOption{Value: string(role), Label: role.Label(), Selected: role == selected})
	}
	return options
}

// SignupGetHandler renders the signup page
func (s *Server) SignupGetHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("signup.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if p := guardPrincipal(r); p != nil {
			redirectSuccess(w, r, s.guard.Home(p))
			return
		}
		renderHTML(w, tmpl, http.StatusOK, SignupPageData{
			AppName: s.config.GetAppName(),
			Error:   r.URL.Query().Get("error"),
			Errors:  map[string]string{},
			Roles:   roleOptions(users.DefaultRole),
		})
	}
}

// SignupPostHandler registers the identity and signs it in.
func (s *Server) SignupPostHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("signup.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		req := auth.RegistrationRequest{
			FullName:        r.FormValue("full_name"),
			Email:           r.FormValue("email"),
			Phone:           r.FormValue("phone"),
			Password:        r.FormValue("password"),
			ConfirmPassword: r.FormValue("confirm_password"),
			Role:            r.FormValue("role"),
		}

		user, cookie, err := s.auth.BrowserSignup(r.Context(), req, s.sessionCookie(r))
		if err != nil {
			if apperrors.IsRetryable(err) {
				metrics.AuthEvent("browser_signup", metrics.OutcomeUnavailable)
				s.renderUnavailable(w, r)
				return
			}
			metrics.AuthEvent("browser_signup", metrics.OutcomeFailure)
			if status, _ := statusFor(err); status == http.StatusInternalServerError {
				s.renderInternalError(w, r, err)
				return
			}

			data := SignupPageData{
				AppName: s.config.GetAppName(),
				Form:    auth.RegistrationRequest{FullName: req.FullName, Email: req.Email, Phone: req.Phone, Role: req.Role},
				Errors:  map[string]string{},
				Roles:   roleOptions(users.Role(req.Role)),
			}
			if fe := auth.FieldErrorsFor(err); fe != nil {
				data.Errors = fe
				data.Error = "Please correct the highlighted fields."
			} else {
				data.Error = apperrors.PublicMessage(err)
			}
			renderHTML(w, tmpl, http.StatusBadRequest, data)
			return
		}

		metrics.AuthEvent("browser_signup", metrics.OutcomeSuccess)
		s.setSessionCookie(w, r, cookie)
		redirectSuccess(w, r, s.guard.DashboardFor(user.Role))
	}
}
