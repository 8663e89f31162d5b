package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "resident submit", role: RoleResident, action: ActionSubmit, allow: true},
		{name: "resident read", role: RoleResident, action: ActionRead, allow: false},
		{name: "resident accept", role: RoleResident, action: ActionAccept, allow: false},
		{name: "staff read", role: RoleStaff, action: ActionRead, allow: true},
		{name: "staff submit", role: RoleStaff, action: ActionSubmit, allow: true},
		{name: "staff decline", role: RoleStaff, action: ActionDecline, allow: false},
		{name: "admin accept", role: RoleAdmin, action: ActionAccept, allow: true},
		{name: "admin officials", role: RoleAdmin, action: ActionManageOfficials, allow: true},
		{name: "unknown role", role: Role("mayor"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("admin"); got != RoleAdmin {
		t.Fatalf("Normalize(admin) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleResident {
		t.Fatalf("Normalize(superuser) = %q, want resident", got)
	}
}
