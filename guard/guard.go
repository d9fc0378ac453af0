// Package guard decides whether a caller may see a role's area and, when not,
// where to send them instead. A caller is never shown another role's dashboard
// and never gets a bare error for trying: the answer is always a redirect to
// their own dashboard, or to login when nobody is signed in.
package guard

import (
	"context"
	"net/url"

	"github.com/jrsteele09/care-auth-server/users"
)

const (
	DefaultLoginPath  = "/login"
	DashboardRootPath = "/dashboard/"
)

// Principal is the authenticated caller, resolved from a session or a bearer token.
type Principal struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      users.Role `json:"role"`
	SessionID string     `json:"-"`
}

type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Redirect(target string) Decision {
	return Decision{RedirectTo: target}
}

type Guard struct {
	loginPath string
}

type Option func(*Guard)

func WithLoginPath(path string) Option {
	return func(g *Guard) {
		g.loginPath = path
	}
}

func New(options ...Option) *Guard {
	g := &Guard{loginPath: DefaultLoginPath}
	for _, opt := range options {
		opt(g)
	}
	return g
}

func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Authorize allows p into the area of the required role. Anyone else is
// redirected: anonymous callers to login, other roles to their own dashboard.
func (g *Guard) Authorize(p *Principal, required users.Role) Decision {
	if p == nil {
		return Redirect(g.loginPath)
	}
	if p.Role == required && required.Valid() {
		return Allow()
	}
	return Redirect(g.DashboardFor(p.Role))
}

// AuthorizePath is Authorize for a browser request: anonymous callers keep
// the path they asked for in a next parameter.
func (g *Guard) AuthorizePath(p *Principal, required users.Role, requestedPath string) Decision {
	d := g.Authorize(p, required)
	if p == nil {
		d.RedirectTo = g.LoginRedirect(requestedPath)
	}
	return d
}

// Home is the landing page for p.
func (g *Guard) Home(p *Principal) string {
	if p == nil {
		return g.loginPath
	}
	return g.DashboardFor(p.Role)
}

// DashboardFor maps every role to its dashboard path.
func (g *Guard) DashboardFor(role users.Role) string {
	switch role {
	case users.RolePatient:
		return DashboardRootPath + "patient/"
	case users.RoleClinician:
		return DashboardRootPath + "clinician/"
	case users.RoleOrganization:
		return DashboardRootPath + "organization/"
	default:
		return g.loginPath
	}
}

// LoginRedirect builds the login URL carrying next. Only local paths are kept.
func (g *Guard) LoginRedirect(next string) string {
	if !SafeNext(next) {
		return g.loginPath
	}
	return g.loginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext reports whether next is a same-site absolute path.
func SafeNext(next string) bool {
	if len(next) < 1 || next[0] != '/' {
		return false
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return false
	}
	u, err := url.Parse(next)
	return err == nil && u.Scheme == "" && u.Host == ""
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the auth middleware, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
