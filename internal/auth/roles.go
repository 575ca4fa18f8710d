package auth

import "github.com/palpitai/platform/internal/domain"

// RealmForRole returns the realm a user's login token is issued in.
func RealmForRole(role domain.Role) Realm {
	if role == domain.RoleAdmin {
		return RealmAdmin
	}
	return RealmUser
}

// AdminRoles returns the roles allowed on the admin surface.
func AdminRoles() []domain.Role {
	return []domain.Role{domain.RoleAdmin}
}
