package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the appointment row until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// ActiveForDoctor returns PENDING and IN_PROGRESS appointments in token order.
	ActiveForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error)
}

// Directory resolves the records an appointment points at. Each check
// returns a NotFound error when the reference cannot be used.
type Directory interface {
	CheckPatient(ctx context.Context, id uuid.UUID) error
	CheckDoctor(ctx context.Context, id uuid.UUID) error
	CheckDepartment(ctx context.Context, id uuid.UUID) error
}
