package auth

import "testing"

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles {
		got, err := ParseRole(string(r))
		if err != nil || got != r {
			t.Errorf("ParseRole(%s) = %s, %v", r, got, err)
		}
	}
	for _, bad := range []string{"", "admin", "NURSE", "Doctor"} {
		if _, err := ParseRole(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestCredentialPrefix(t *testing.T) {
	want := map[Role]string{
		RoleAdmin:         "admin",
		RoleReceptionist:  "recp",
		RoleDoctor:        "doc",
		RolePharmacist:    "pharm",
		RoleLabTechnician: "lab",
	}
	for _, r := range AllRoles {
		if r.CredentialPrefix() != want[r] {
			t.Errorf("%s prefix = %q, want %q", r, r.CredentialPrefix(), want[r])
		}
	}
}

func TestRoleIn(t *testing.T) {
	if !RoleDoctor.In(RoleAdmin, RoleDoctor) {
		t.Error("expected DOCTOR in set")
	}
	if RoleDoctor.In() {
		t.Error("empty set contains nothing")
	}
}
