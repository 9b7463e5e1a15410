package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Active reports whether the appointment still belongs in a doctor's queue.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanMoveTo reports whether a status change is allowed. COMPLETED is final.
func (s Status) CanMoveTo(next Status) bool {
	return s != StatusCompleted || next == StatusCompleted
}

type Appointment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientCode    string     `db:"patient_code" json:"patient_code"`
	PatientName    string     `db:"patient_name" json:"patient_name"`
	DoctorID       uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	DoctorName     string     `db:"doctor_name" json:"doctor_name"`
	DepartmentID   uuid.UUID  `db:"department_id" json:"department_id"`
	DepartmentName string     `db:"department_name" json:"department_name"`
	TokenNumber    string     `db:"token_number" json:"token_number"`
	TokenSeq       int64      `db:"token_seq" json:"-"`
	Status         Status     `db:"status" json:"status"`
	CreatedBy      *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

type AppointmentInput struct {
	PatientID    uuid.UUID `json:"patient_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	DepartmentID uuid.UUID `json:"department_id"`
}

// AppointmentUpdate is the receptionist's edit. Doctor and department may
// only change while the appointment is PENDING.
type AppointmentUpdate struct {
	DoctorID     *uuid.UUID `json:"doctor_id"`
	DepartmentID *uuid.UUID `json:"department_id"`
	Status       *string    `json:"status"`
}

// StatusUpdate is the only field a doctor may change. Other keys in the
// request body are dropped by the binder.
type StatusUpdate struct {
	Status string `json:"status"`
}

// Queue is a doctor's view of today's work: the first active appointment by
// token order, followed by the rest.
type Queue struct {
	Current  *Appointment   `json:"current"`
	Upcoming []*Appointment `json:"upcoming"`
}

func NewQueue(active []*Appointment) Queue {
	q := Queue{Upcoming: []*Appointment{}}
	if len(active) == 0 {
		return q
	}
	q.Current = active[0]
	q.Upcoming = append(q.Upcoming, active[1:]...)
	return q
}

type ListFilter struct {
	Status    Status
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}
