package auth

import "errors"

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer may inspect types, rules and execution history.
	RoleViewer Role = "viewer"

	// RoleOperator may also run rules manually.
	RoleOperator Role = "operator"

	// RoleAdmin may also add and remove rules.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token has expired")
	ErrForbidden    = errors.New("auth: insufficient permissions")
	ErrNoSecret     = errors.New("auth: signing secret is empty")
)
