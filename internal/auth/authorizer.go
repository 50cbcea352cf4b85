package auth

import "strings"

// Authorizer is the permission-check primitive the engine delegates to. It
// answers whether a user holds a permission string; it never decides which
// permission an action maps to.
type Authorizer interface {
	Can(user *UserContext, permission string) bool
}

// RoleGrants maps role names to permission strings. "entity.*" grants every
// action on an entity; the admin role bypasses the lookup entirely.
type RoleGrants map[string][]string

func (g RoleGrants) Can(user *UserContext, permission string) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	entity, _, _ := strings.Cut(permission, ".")
	for _, role := range user.Roles {
		for _, granted := range g[role] {
			if granted == permission || granted == entity+".*" {
				return true
			}
		}
	}
	return false
}
