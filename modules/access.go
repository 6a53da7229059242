package modules

import (
	"slices"
	"strings"

	"github.com/wispberry-tech/medhelp-web/core"
)

// CanAccess reports whether user may see m. A nil user is a visitor
// without a session.
//
// Resolution order:
//  1. Always-visible modules are visible
//  2. Without a user nothing else is visible
//  3. With required roles the user must hold at least one of them
//  4. With explicit permissions the user must hold at least one of them
//  5. With an entity, administrators are let through; everyone else needs a
//     permission named after the entity ("PRODUCT_READ" or "product:read")
//  6. Anything left is visible
func CanAccess(user *core.User, m Module) bool {
	if m.AlwaysVisible {
		return true
	}
	if user == nil {
		return false
	}

	if len(m.RequiredRoles) > 0 && !HasAnyRole(user, m.RequiredRoles) {
		return false
	}

	if len(m.Permissions) > 0 && !slices.ContainsFunc(m.Permissions, func(p string) bool {
		return slices.Contains(user.Permissions, p)
	}) {
		return false
	}

	if m.Entity != "" {
		if user.IsAdmin() {
			return true
		}
		return hasEntityPermission(user, m.Entity)
	}

	return true
}

// Filter returns the modules of mods that user may see, in their original
// order. Children are filtered the same way.
func Filter(user *core.User, mods []Module) []Module {
	var out []Module
	for _, m := range mods {
		if !CanAccess(user, m) {
			continue
		}
		m = m.clone()
		if len(m.Children) > 0 {
			m.Children = Filter(user, m.Children)
		}
		out = append(out, m)
	}
	return out
}

// Visible returns the enabled sidebar modules user may see
func (r *Registry) Visible(user *core.User) []Module {
	return Filter(user, r.Enabled())
}

// VisibleFooter returns the enabled footer modules user may see
func (r *Registry) VisibleFooter(user *core.User) []Module {
	return Filter(user, r.Footer())
}

// HasPermission reports whether user holds permission. Administrators hold
// every permission.
func HasPermission(user *core.User, permission string) bool {
	return user.HasPermission(permission)
}

// HasRole reports whether user holds role
func HasRole(user *core.User, role string) bool {
	return user.HasRole(role)
}

// HasAnyRole reports whether user holds at least one of roles
func HasAnyRole(user *core.User, roles []string) bool {
	return slices.ContainsFunc(roles, user.HasRole)
}

// HasAllRoles reports whether user holds every one of roles
func HasAllRoles(user *core.User, roles []string) bool {
	if user == nil {
		return false
	}
	for _, role := range roles {
		if !user.HasRole(role) {
			return false
		}
	}
	return true
}

// HasEntityAccess reports whether user holds any permission for entity
func HasEntityAccess(user *core.User, entity string) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return hasEntityPermission(user, entity)
}

func hasEntityPermission(user *core.User, entity string) bool {
	prefix := strings.ToUpper(entity)
	for _, permission := range user.Permissions {
		p := strings.ToUpper(permission)
		if strings.HasPrefix(p, prefix+"_") || strings.HasPrefix(p, prefix+":") {
			return true
		}
	}
	return false
}
