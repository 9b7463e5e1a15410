package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/identifier"
)

// Service manages departments and employee accounts.
type Service struct {
	users UserRepository
	depts DepartmentRepository
	seq   identifier.Sequencer
	tx    db.Transactor
}

func NewService(users UserRepository, depts DepartmentRepository, seq identifier.Sequencer, tx db.Transactor) *Service {
	return &Service{users: users, depts: depts, seq: seq, tx: tx}
}

// -- Employees --

// CreateEmployee creates a staff account with a generated username and
// password (doc001/pass001, recp001/pass001, ...). The counter is per role
// and is never reused, even after an account is deleted.
func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (*NewEmployee, error) {
	role, err := auth.ParseRole(strings.TrimSpace(in.Role))
	if err != nil {
		return nil, apperr.Validation("role must be one of ADMIN, RECEPTIONIST, DOCTOR, PHARMACIST, LAB_TECHNICIAN")
	}
	first, last := SplitName(in.FullName)
	if first == "" {
		return nil, apperr.Validation("full_name is required")
	}
	if role == auth.RoleDoctor && in.DepartmentID == nil {
		return nil, apperr.Validation("department_id is required for doctors")
	}

	var out *NewEmployee
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if in.DepartmentID != nil {
			if _, err := s.depts.GetByID(ctx, *in.DepartmentID); err != nil {
				return err
			}
		}
		n, err := s.seq.Next(ctx, identifier.CredentialCounter(string(role)))
		if err != nil {
			return fmt.Errorf("next credential number: %w", err)
		}
		username, password := identifier.Credentials(role.CredentialPrefix(), n)
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		u := &User{
			Username:      username,
			PasswordHash:  hash,
			FirstName:     first,
			LastName:      last,
			Role:          role,
			DepartmentID:  in.DepartmentID,
			Email:         strings.TrimSpace(in.Email),
			ContactNumber: strings.TrimSpace(in.ContactNumber),
			IsActive:      true,
		}
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		out = &NewEmployee{Employee: u, Credentials: Credentials{Username: username, Password: password}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetEmployee(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	var r auth.Role
	if role != "" {
		parsed, err := auth.ParseRole(role)
		if err != nil {
			return nil, 0, apperr.Validation("unknown role %q", role)
		}
		r = parsed
	}
	return s.users.List(ctx, r, limit, offset)
}

func (s *Service) UpdateEmployee(ctx context.Context, id uuid.UUID, in EmployeeUpdate) (*User, error) {
	var out *User
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.FullName != nil {
			first, last := SplitName(*in.FullName)
			if first == "" {
				return apperr.Validation("full_name must not be empty")
			}
			u.FirstName, u.LastName = first, last
		}
		if in.DepartmentID != nil {
			if _, err := s.depts.GetByID(ctx, *in.DepartmentID); err != nil {
				return err
			}
			u.DepartmentID = in.DepartmentID
		}
		if in.Email != nil {
			u.Email = strings.TrimSpace(*in.Email)
		}
		if in.ContactNumber != nil {
			u.ContactNumber = strings.TrimSpace(*in.ContactNumber)
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (s *Service) DeleteEmployee(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	if caller.ID == id {
		return apperr.Validation("you cannot delete your own account")
	}
	return s.users.Delete(ctx, id)
}

// CreateUser creates an account with an explicit username and password.
// It backs the bootstrap command that provisions the first admin.
func (s *Service) CreateUser(ctx context.Context, username, password, fullName string, role auth.Role) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Validation("username is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	first, last := SplitName(fullName)
	u := &User{
		Username:     username,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// -- Departments --

func (s *Service) CreateDepartment(ctx context.Context, in DepartmentInput) (*Department, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	d := &Department{Name: name, Description: in.Description}
	if err := s.depts.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.depts.GetByID(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context) ([]*Department, error) {
	return s.depts.List(ctx)
}

func (s *Service) UpdateDepartment(ctx context.Context, id uuid.UUID, in DepartmentInput) (*Department, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	d, err := s.depts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name = name
	if in.Description != nil {
		d.Description = in.Description
	}
	if err := s.depts.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	return s.depts.Delete(ctx, id)
}

// DoctorsByDepartment lists active doctors of one department.
func (s *Service) DoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*User, error) {
	if _, err := s.depts.GetByID(ctx, departmentID); err != nil {
		return nil, err
	}
	return s.users.ListDoctorsByDepartment(ctx, departmentID)
}
