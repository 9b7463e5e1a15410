package staff

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/platform/auth"
)

type Department struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// User is a staff account. PasswordHash never leaves the server.
type User struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Role           auth.Role  `db:"role" json:"role"`
	DepartmentID   *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	DepartmentName *string    `db:"department_name" json:"department_name,omitempty"`
	Email          string     `db:"email" json:"email"`
	ContactNumber  string     `db:"contact_number" json:"contact_number"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u *User) Principal() auth.Principal {
	return auth.Principal{ID: u.ID, Username: u.Username, Role: u.Role}
}

// SplitName puts the first word in first_name and the rest in last_name.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// Profile is the public view of a staff member.
type Profile struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	Name           string     `json:"name"`
	Role           auth.Role  `json:"role"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	DepartmentName string     `json:"department_name"`
}

func (u *User) Profile() Profile {
	p := Profile{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.FullName(),
		Role:         u.Role,
		DepartmentID: u.DepartmentID,
	}
	if u.DepartmentName != nil {
		p.DepartmentName = *u.DepartmentName
	}
	return p
}

type EmployeeInput struct {
	FullName      string     `json:"full_name"`
	Role          string     `json:"role"`
	DepartmentID  *uuid.UUID `json:"department_id"`
	Email         string     `json:"email"`
	ContactNumber string     `json:"contact_number"`
}

type EmployeeUpdate struct {
	FullName      *string    `json:"full_name"`
	DepartmentID  *uuid.UUID `json:"department_id"`
	Email         *string    `json:"email"`
	ContactNumber *string    `json:"contact_number"`
	IsActive      *bool      `json:"is_active"`
}

// Credentials are returned once, when an employee account is created.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type NewEmployee struct {
	Employee    *User       `json:"employee"`
	Credentials Credentials `json:"credentials"`
}

type DepartmentInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	*auth.TokenPair
	User Profile `json:"user"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type LogoutRequest struct {
	Refresh string `json:"refresh"`
}
