package auth

import (
	"context"
	"strings"
)

// Role is the application role of an authenticated user.
type Role string

const (
	RoleAdministrator Role = "Administrator"
	RoleStaff         Role = "Staff"
	RolePatient       Role = "Patient"
	RoleNone          Role = ""
)

// ParseRole maps a role claim onto a Role. Matching is case-insensitive and
// "admin" is accepted as an alias for Administrator.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "administrator", "admin":
		return RoleAdministrator
	case "staff":
		return RoleStaff
	case "patient":
		return RolePatient
	}
	return RoleNone
}

func (r Role) rank() int {
	switch r {
	case RoleAdministrator:
		return 3
	case RoleStaff:
		return 2
	case RolePatient:
		return 1
	}
	return 0
}

// IsAdministrator reports whether r is the Administrator role.
func (r Role) IsAdministrator() bool { return r == RoleAdministrator }

// RoleFromContext returns the most privileged role carried by the request.
func RoleFromContext(ctx context.Context) Role {
	best := RoleNone
	for _, raw := range RolesFromContext(ctx) {
		if r := ParseRole(raw); r.rank() > best.rank() {
			best = r
		}
	}
	return best
}
