package auth

import "fmt"

// Role is the closed set of staff roles. Every permission decision is made
// against these values; unknown strings never reach a handler.
type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleReceptionist  Role = "RECEPTIONIST"
	RoleDoctor        Role = "DOCTOR"
	RolePharmacist    Role = "PHARMACIST"
	RoleLabTechnician Role = "LAB_TECHNICIAN"
)

var AllRoles = []Role{RoleAdmin, RoleReceptionist, RoleDoctor, RolePharmacist, RoleLabTechnician}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleReceptionist, RoleDoctor, RolePharmacist, RoleLabTechnician:
		return true
	}
	return false
}

// CredentialPrefix is the username prefix for generated staff accounts.
func (r Role) CredentialPrefix() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleReceptionist:
		return "recp"
	case RoleDoctor:
		return "doc"
	case RolePharmacist:
		return "pharm"
	case RoleLabTechnician:
		return "lab"
	}
	panic(fmt.Sprintf("auth: credential prefix for invalid role %q", string(r)))
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}
