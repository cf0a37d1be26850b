package auth

import "errors"

// Role is the authorisation tier carried in an API token.
type Role string

const (
	// RoleViewer may read link status, peers and the event stream.
	RoleViewer Role = "viewer"

	// RoleOperator may also connect, close and send on the link.
	RoleOperator Role = "operator"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleViewer, RoleOperator:
		return r, nil
	}
	return "", ErrUnknownRole
}

// Auth errors.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: insufficient permissions")
	ErrUnknownRole  = errors.New("auth: unknown role")
	ErrEmptySecret  = errors.New("auth: empty signing secret")
)
