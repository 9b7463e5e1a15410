package consultation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/platform/apperr"
)

// Consultation is the encounter record a doctor writes for one appointment.
type Consultation struct {
	ID            uuid.UUID          `db:"id" json:"id"`
	AppointmentID uuid.UUID          `db:"appointment_id" json:"appointment_id"`
	TokenNumber   string             `db:"token_number" json:"token_number"`
	DoctorID      uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	DoctorName    string             `db:"doctor_name" json:"doctor_name"`
	PatientID     uuid.UUID          `db:"patient_id" json:"patient_id"`
	PatientCode   string             `db:"patient_code" json:"patient_code"`
	PatientName   string             `db:"patient_name" json:"patient_name"`
	Diagnosis     string             `db:"diagnosis" json:"diagnosis"`
	ClinicalNotes string             `db:"clinical_notes" json:"clinical_notes"`
	ReferToLab    bool               `db:"refer_to_lab" json:"refer_to_lab"`
	Prescriptions []PrescriptionItem `json:"prescriptions"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}

// PrescriptionItem is free text: the medicine is matched against the
// pharmacy catalogue only when it is dispensed.
type PrescriptionItem struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID uuid.UUID `db:"consultation_id" json:"consultation_id"`
	MedicineName   string    `db:"medicine_name" json:"medicine_name"`
	Quantity       int       `db:"quantity" json:"quantity"`
	Dosage         string    `db:"dosage" json:"dosage"`
	Frequency      string    `db:"frequency" json:"frequency"`
	Duration       string    `db:"duration" json:"duration"`
	Instructions   string    `db:"instructions" json:"instructions"`
}

type PrescriptionInput struct {
	MedicineName string `json:"medicine_name"`
	Quantity     *int   `json:"quantity"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

type ConsultationInput struct {
	Diagnosis     string              `json:"diagnosis"`
	ClinicalNotes string              `json:"clinical_notes"`
	ReferToLab    bool                `json:"refer_to_lab"`
	TestType      string              `json:"test_type"`
	Remarks       string              `json:"remarks"`
	Prescriptions []PrescriptionInput `json:"prescriptions"`
}

// ConsultationUpdate changes only the fields present in the payload. A nil
// Prescriptions keeps the current items; an empty list clears them.
type ConsultationUpdate struct {
	Diagnosis     *string              `json:"diagnosis"`
	ClinicalNotes *string              `json:"clinical_notes"`
	ReferToLab    *bool                `json:"refer_to_lab"`
	TestType      string               `json:"test_type"`
	Remarks       string               `json:"remarks"`
	Prescriptions *[]PrescriptionInput `json:"prescriptions"`
}

// PatientSummary is the doctor-facing view of a patient they have seen.
type PatientSummary struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientCode   string    `db:"patient_code" json:"patient_id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Age           int       `db:"age" json:"age"`
	Gender        *string   `db:"gender" json:"gender"`
	ContactNumber *string   `db:"contact_number" json:"contact_number"`
}

type PatientHistory struct {
	PatientSummary
	Consultations []*Consultation `json:"consultations"`
}

// prescriptionItems validates the inputs and applies defaults. Quantity
// defaults to 1.
func prescriptionItems(in []PrescriptionInput) ([]PrescriptionItem, error) {
	items := make([]PrescriptionItem, 0, len(in))
	for i, p := range in {
		name := strings.TrimSpace(p.MedicineName)
		if name == "" {
			return nil, apperr.Validation("prescriptions[%d]: medicine_name is required", i)
		}
		qty := 1
		if p.Quantity != nil {
			qty = *p.Quantity
		}
		if qty <= 0 {
			return nil, apperr.Validation("prescriptions[%d]: quantity must be positive", i)
		}
		items = append(items, PrescriptionItem{
			MedicineName: name,
			Quantity:     qty,
			Dosage:       strings.TrimSpace(p.Dosage),
			Frequency:    strings.TrimSpace(p.Frequency),
			Duration:     strings.TrimSpace(p.Duration),
			Instructions: strings.TrimSpace(p.Instructions),
		})
	}
	return items, nil
}
