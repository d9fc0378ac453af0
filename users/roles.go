package users

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Every identity holds exactly one.
type Role string

const (
	RolePatient      Role = "patient"
	RoleClinician    Role = "clinician"
	RoleOrganization Role = "organization"
)

// DefaultRole is assigned at registration when no role is requested.
const DefaultRole = RolePatient

// Roles lists every valid role in display order.
var Roles = []Role{RolePatient, RoleClinician, RoleOrganization}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleClinician, RoleOrganization:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Label is the human readable name used in templates.
func (r Role) Label() string {
	switch r {
	case RolePatient:
		return "Patient"
	case RoleClinician:
		return "Clinician"
	case RoleOrganization:
		return "Organization"
	}
	return "Unknown"
}

// ParseRole accepts the role name in any case ("PATIENT", "Clinician", ...).
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
