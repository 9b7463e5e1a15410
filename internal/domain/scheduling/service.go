package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/identifier"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

// ErrNotAssigned hides appointments belonging to other doctors.
var ErrNotAssigned = apperr.NotFound("appointment not found or not assigned to you")

type Service struct {
	appointments AppointmentRepository
	directory    Directory
	seq          identifier.Sequencer
	tx           db.Transactor
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewService(appts AppointmentRepository, dir Directory, seq identifier.Sequencer, tx db.Transactor,
	pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{appointments: appts, directory: dir, seq: seq, tx: tx, events: pub, metrics: m, logger: logger}
}

// -- Receptionist --

// Book creates a PENDING appointment and issues the next token. The token
// counter advances inside the same transaction as the insert, so a failed
// booking does not consume a token.
func (s *Service) Book(ctx context.Context, actor auth.Principal, in AppointmentInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil || in.DoctorID == uuid.Nil || in.DepartmentID == uuid.Nil {
		return nil, apperr.Validation("patient_id, doctor_id and department_id are required")
	}

	var booked *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.directory.CheckPatient(ctx, in.PatientID); err != nil {
			return err
		}
		if err := s.directory.CheckDoctor(ctx, in.DoctorID); err != nil {
			return err
		}
		if err := s.directory.CheckDepartment(ctx, in.DepartmentID); err != nil {
			return err
		}

		n, err := s.seq.Next(ctx, identifier.TokenCounter)
		if err != nil {
			return fmt.Errorf("next token: %w", err)
		}
		a := &Appointment{
			PatientID:    in.PatientID,
			DoctorID:     in.DoctorID,
			DepartmentID: in.DepartmentID,
			TokenNumber:  identifier.Token(n),
			TokenSeq:     n,
			Status:       StatusPending,
		}
		if actor.ID != uuid.Nil {
			by := actor.ID
			a.CreatedBy = &by
		}
		if err := s.appointments.Create(ctx, a); err != nil {
			return err
		}
		booked = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AppointmentBooked()
	events.Emit(ctx, s.events, s.logger, events.New(events.AppointmentBooked, actor.ID.String(), map[string]interface{}{
		"appointment_id": booked.ID.String(),
		"token_number":   booked.TokenNumber,
		"doctor_id":      booked.DoctorID.String(),
		"patient_id":     booked.PatientID.String(),
	}))
	return booked, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.List(ctx, f, limit, offset)
}

// Update applies a receptionist edit under a row lock.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in AppointmentUpdate) (*Appointment, error) {
	var next Status
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, apperr.Validation("status must be one of PENDING, IN_PROGRESS, COMPLETED")
		}
		next = st
	}

	var updated *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		reassign := (in.DoctorID != nil && *in.DoctorID != a.DoctorID) ||
			(in.DepartmentID != nil && *in.DepartmentID != a.DepartmentID)
		if reassign {
			if a.Status != StatusPending {
				return apperr.Conflict("only pending appointments can be reassigned")
			}
			if in.DoctorID != nil {
				if err := s.directory.CheckDoctor(ctx, *in.DoctorID); err != nil {
					return err
				}
				a.DoctorID = *in.DoctorID
			}
			if in.DepartmentID != nil {
				if err := s.directory.CheckDepartment(ctx, *in.DepartmentID); err != nil {
					return err
				}
				a.DepartmentID = *in.DepartmentID
			}
		}

		if next != "" {
			if !a.Status.CanMoveTo(next) {
				return apperr.Conflict("completed appointment cannot change status")
			}
			a.Status = next
		}
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Reload for the joined names after a reassignment.
	return s.appointments.GetByID(ctx, updated.ID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.appointments.Delete(ctx, id)
}

// -- Doctor --

// DoctorQueue returns the doctor's active appointments split into the one
// being seen now and those waiting.
func (s *Service) DoctorQueue(ctx context.Context, doctorID uuid.UUID) (Queue, error) {
	active, err := s.appointments.ActiveForDoctor(ctx, doctorID)
	if err != nil {
		return Queue{}, err
	}
	return NewQueue(active), nil
}

// AssignedTo returns the appointment only when doctorID is its doctor.
func (s *Service) AssignedTo(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, ErrNotAssigned
	}
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, ErrNotAssigned
	}
	return a, nil
}

// SetStatus is the doctor's status change. A completed appointment is final.
func (s *Service) SetStatus(ctx context.Context, doctorID, id uuid.UUID, raw string) (*Appointment, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, apperr.Validation("status must be one of PENDING, IN_PROGRESS, COMPLETED")
	}

	var out *Appointment
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetForUpdate(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) {
			return ErrNotAssigned
		}
		if err != nil {
			return err
		}
		if a.DoctorID != doctorID {
			return ErrNotAssigned
		}
		if !a.Status.CanMoveTo(next) {
			return apperr.Conflict("completed appointment cannot change status")
		}
		if a.Status == next {
			out = a
			return nil
		}
		if err := s.appointments.UpdateStatus(ctx, id, next); err != nil {
			return err
		}
		a.Status = next
		out = a
		return nil
	})
	return out, err
}
