package user

import "errors"

var ErrInvalidRole = errors.New("invalid role")

// Role is issued by the identity provider; this service only reads it from the token.
type Role string

const (
	RoleMember   Role = "member"
	RoleApprover Role = "approver"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleMember, RoleApprover:
		return true
	default:
		return false
	}
}

func (r Role) CanApprove() bool {
	return r == RoleApprover
}

func NewRole(s string) (Role, error) {
	role := Role(s)
	if !role.IsValid() {
		return "", ErrInvalidRole
	}
	return role, nil
}
