package consultation

import (
	"context"

	"github.com/google/uuid"
)

type ConsultationRepository interface {
	// Create fails with Conflict when the appointment already has a
	// consultation.
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	Update(ctx context.Context, c *Consultation) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	ListForPatient(ctx context.Context, patientID, doctorID uuid.UUID) ([]*Consultation, error)

	// ReplacePrescriptions deletes the consultation's items and inserts
	// items in order.
	ReplacePrescriptions(ctx context.Context, consultationID uuid.UUID, items []PrescriptionItem) error
	// Prescriptions loads the items of several consultations at once.
	Prescriptions(ctx context.Context, consultationIDs []uuid.UUID) (map[uuid.UUID][]PrescriptionItem, error)
}

// PatientReader backs the doctor's patient views.
type PatientReader interface {
	Summary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error)
	// SeenBy lists distinct patients with a completed appointment with the
	// doctor.
	SeenBy(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error)
}
