package patient

import (
	"time"

	"github.com/google/uuid"
)

var validGenders = map[string]bool{"Male": true, "Female": true, "Other": true}

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"O+": true, "O-": true, "AB+": true, "AB-": true,
}

// Patient is the shared record every workflow hangs off. PatientCode is
// assigned at registration and never changes.
type Patient struct {
	ID            uuid.UUID `db:"id" json:"id"`
	PatientCode   string    `db:"patient_code" json:"patient_id"`
	FullName      string    `db:"full_name" json:"full_name"`
	Age           int       `db:"age" json:"age"`
	Gender        *string   `db:"gender" json:"gender,omitempty"`
	BloodGroup    *string   `db:"blood_group" json:"blood_group,omitempty"`
	ContactNumber *string   `db:"contact_number" json:"contact_number,omitempty"`
	Address       *string   `db:"address" json:"address,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type Vitals struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Height           *string    `db:"height" json:"height,omitempty"`
	Weight           *string    `db:"weight" json:"weight,omitempty"`
	BloodPressure    *string    `db:"blood_pressure" json:"blood_pressure,omitempty"`
	HeartRate        *int       `db:"heart_rate" json:"heart_rate,omitempty"`
	OxygenSaturation *int       `db:"oxygen_saturation" json:"oxygen_saturation,omitempty"`
	RecordedBy       *uuid.UUID `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt       time.Time  `db:"recorded_at" json:"recorded_at"`
}

// PatientInput is used for both registration and full updates.
type PatientInput struct {
	FullName      string  `json:"full_name"`
	Age           *int    `json:"age"`
	Gender        *string `json:"gender"`
	BloodGroup    *string `json:"blood_group"`
	ContactNumber *string `json:"contact_number"`
	Address       *string `json:"address"`
}

type VitalsInput struct {
	Height           *string `json:"height"`
	Weight           *string `json:"weight"`
	BloodPressure    *string `json:"blood_pressure"`
	HeartRate        *int    `json:"heart_rate"`
	OxygenSaturation *int    `json:"oxygen_saturation"`
}

// ListFilter narrows a patient listing. Phone matches contact_number as a
// substring; Query matches name or patient code.
type ListFilter struct {
	Phone string
	Query string
}
