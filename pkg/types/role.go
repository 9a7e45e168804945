package types

// Role is the closed set of actor roles the core trusts. It always comes
// from the identity collaborator, never from client input.
type Role string

const (
	RoleStandardUser Role = "standard_user"
	RoleAdmin        Role = "admin"
	RoleSuperAdmin   Role = "super_admin"
)

// IsPrivileged reports whether the role may approve, reject and archive
// directly instead of going through a review workflow.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) IsValid() bool {
	switch r {
	case RoleStandardUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
