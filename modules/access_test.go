package modules

import (
	"testing"

	"github.com/wispberry-tech/medhelp-web/core"
)

func userWith(roles []string, permissions ...string) *core.User {
	return &core.User{ID: 1, Email: "test@example.com", Roles: roles, Permissions: permissions}
}

func TestCanAccess(t *testing.T) {
	product := Module{ID: "inventory", Title: "Inventory", Href: "/dashboard/inventory", Entity: "product"}
	staff := Module{ID: "staff", Title: "Staff", Href: "/dashboard/staff", Entity: "staff", RequiredRoles: []string{"ADMIN", "MANAGER"}}
	always := Module{ID: "dashboard", Title: "Overview", Href: "/dashboard", AlwaysVisible: true, RequiredRoles: []string{"ADMIN"}}
	explicit := Module{ID: "audit", Title: "Audit", Href: "/dashboard/audit", Permissions: []string{"AUDIT_READ", "AUDIT_EXPORT"}}
	open := Module{ID: "help", Title: "Help", Href: "/dashboard/help"}

	tests := []struct {
		name   string
		user   *core.User
		module Module
		want   bool
	}{
		{name: "always_visible_without_user", user: nil, module: always, want: true},
		{name: "always_visible_ignores_roles", user: userWith(nil), module: always, want: true},
		{name: "no_user_denied", user: nil, module: open, want: false},
		{name: "no_restrictions_visible", user: userWith(nil), module: open, want: true},

		{name: "required_role_missing", user: userWith([]string{"PHARMACIST"}, "STAFF_READ"), module: staff, want: false},
		{name: "required_role_any_of", user: userWith([]string{"MANAGER"}, "STAFF_READ"), module: staff, want: true},
		{name: "required_role_without_entity_permission", user: userWith([]string{"MANAGER"}), module: staff, want: false},
		{name: "required_role_admin", user: userWith([]string{"ADMIN"}), module: staff, want: true},

		{name: "explicit_permission_any_of", user: userWith(nil, "AUDIT_EXPORT"), module: explicit, want: true},
		{name: "explicit_permission_missing", user: userWith(nil, "ORDER_READ"), module: explicit, want: false},

		{name: "entity_admin_without_permissions", user: userWith([]string{"ADMIN"}), module: product, want: true},
		{name: "entity_underscore_permission", user: userWith(nil, "PRODUCT_READ"), module: product, want: true},
		{name: "entity_colon_permission", user: userWith(nil, "product:read"), module: product, want: true},
		{name: "entity_mixed_case_permission", user: userWith(nil, "Product_Update"), module: product, want: true},
		{name: "entity_other_permission", user: userWith(nil, "ORDER_READ"), module: product, want: false},
		{name: "entity_prefix_without_separator", user: userWith(nil, "PRODUCTION_READ"), module: product, want: false},
		{name: "role_names_are_exact", user: userWith([]string{"admin"}), module: product, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.user, tt.module); got != tt.want {
				t.Errorf("CanAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanAccess_RegistryProperties(t *testing.T) {
	registry := Default()
	users := []*core.User{
		nil,
		userWith(nil),
		userWith([]string{"PHARMACIST"}, "PRODUCT_READ"),
		userWith([]string{"ADMIN"}),
	}

	for _, m := range append(registry.All(), registry.Footer()...) {
		for _, user := range users {
			got := CanAccess(user, m)

			if m.AlwaysVisible && !got {
				t.Errorf("Always-visible module %s hidden for %+v", m.ID, user)
			}
			if !m.AlwaysVisible && len(m.RequiredRoles) > 0 && user != nil && !HasAnyRole(user, m.RequiredRoles) && got {
				t.Errorf("Module %s visible without a required role for %+v", m.ID, user)
			}
			if m.Entity != "" && user != nil && user.IsAdmin() && !got {
				t.Errorf("Entity module %s hidden for an administrator", m.ID)
			}
		}
	}
}

func TestFilter(t *testing.T) {
	mods := []Module{
		{ID: "b", Title: "B", Href: "/b", Entity: "order"},
		{ID: "a", Title: "A", Href: "/a", AlwaysVisible: true},
		{ID: "c", Title: "C", Href: "/c", Entity: "product"},
		{ID: "d", Title: "D", Href: "/d", Entity: "product", Children: []Module{
			{ID: "d1", Title: "D1", Href: "/d/1", Entity: "product"},
			{ID: "d2", Title: "D2", Href: "/d/2", RequiredRoles: []string{"ADMIN"}},
		}},
	}

	got := Filter(userWith(nil, "PRODUCT_READ"), mods)

	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	want := []string{"a", "c", "d"}
	if len(ids) != len(want) {
		t.Fatalf("Filter() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Filter() = %v, want %v", ids, want)
		}
	}

	if len(got[2].Children) != 1 || got[2].Children[0].ID != "d1" {
		t.Errorf("Expected children to be filtered, got %+v", got[2].Children)
	}
	if len(mods[3].Children) != 2 {
		t.Error("Filter must not modify its input")
	}
}

func TestRoleHelpers(t *testing.T) {
	user := userWith([]string{"MANAGER", "PHARMACIST"}, "ORDER_READ", "branch:update")

	if !HasRole(user, "MANAGER") || HasRole(user, "ADMIN") {
		t.Error("HasRole returned an unexpected result")
	}
	if !HasAnyRole(user, []string{"ADMIN", "PHARMACIST"}) {
		t.Error("Expected HasAnyRole to match PHARMACIST")
	}
	if HasAnyRole(user, nil) {
		t.Error("Expected HasAnyRole with no roles to be false")
	}
	if !HasAllRoles(user, []string{"MANAGER", "PHARMACIST"}) || HasAllRoles(user, []string{"MANAGER", "ADMIN"}) {
		t.Error("HasAllRoles returned an unexpected result")
	}
	if !HasPermission(user, "ORDER_READ") || HasPermission(user, "ORDER_DELETE") {
		t.Error("HasPermission returned an unexpected result")
	}
	if !HasPermission(userWith([]string{"ADMIN"}), "ANYTHING") {
		t.Error("Expected administrators to hold every permission")
	}
	if !HasEntityAccess(user, "branch") || HasEntityAccess(user, "invoice") {
		t.Error("HasEntityAccess returned an unexpected result")
	}

	var nobody *core.User
	if HasRole(nobody, "ADMIN") || HasAnyRole(nobody, []string{"ADMIN"}) || HasAllRoles(nobody, nil) ||
		HasPermission(nobody, "ORDER_READ") || HasEntityAccess(nobody, "order") {
		t.Error("Expected a nil user to hold nothing")
	}
}
