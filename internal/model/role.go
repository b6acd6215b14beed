package model

// Role is the caller's standing in a chat. The backend reports it as two
// booleans; not every combination is meaningful, so it is collapsed here into
// a single variant with explicit capability checks.
type Role int

const (
	RoleMember Role = iota
	RoleModerator
	RoleInvited
	// RoleAmbiguous is reported when the backend marks the caller as both
	// moderator and invited. No capability is granted for it.
	RoleAmbiguous
)

// RoleOf maps the backend flags to a Role.
func RoleOf(isModerator, isInvited bool) Role {
	switch {
	case isModerator && isInvited:
		return RoleAmbiguous
	case isModerator:
		return RoleModerator
	case isInvited:
		return RoleInvited
	default:
		return RoleMember
	}
}

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleModerator:
		return "moderator"
	case RoleInvited:
		return "invited"
	default:
		return "ambiguous"
	}
}

// CanOpen reports whether the caller may read and post messages.
func (r Role) CanOpen() bool { return r == RoleMember || r == RoleModerator }

// CanEdit reports whether the caller may change the chat and its members.
func (r Role) CanEdit() bool { return r == RoleModerator }

// CanDelete reports whether the caller may remove the chat.
func (r Role) CanDelete() bool { return r == RoleModerator }

// CanExit reports whether the caller may leave the chat.
func (r Role) CanExit() bool { return r == RoleMember }

// CanRespondInvitation reports whether the caller may accept or decline.
func (r Role) CanRespondInvitation() bool { return r == RoleInvited }

// Require returns nil when allowed reports true for r. An ambiguous role
// is reported as such rather than as a plain denial.
func (r Role) Require(allowed func(Role) bool) error {
	if r == RoleAmbiguous {
		return invalid(KeyRoleAmbiguous)
	}
	if !allowed(r) {
		return invalid(KeyNotAllowed)
	}
	return nil
}
