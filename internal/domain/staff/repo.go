package staff

import (
	"context"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/platform/auth"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns non-admin staff, optionally narrowed to one role.
	List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error)
	ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*User, error)
}

type DepartmentRepository interface {
	Create(ctx context.Context, d *Department) error
	GetByID(ctx context.Context, id uuid.UUID) (*Department, error)
	Update(ctx context.Context, d *Department) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Department, error)
}
