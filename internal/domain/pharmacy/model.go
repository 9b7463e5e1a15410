package pharmacy

import (
	"time"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/domain/consultation"
)

type Medicine struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	GenericName   string    `db:"generic_name" json:"generic_name"`
	Description   string    `db:"description" json:"description"`
	UnitPrice     float64   `db:"unit_price" json:"unit_price"`
	StockQuantity int       `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// MedicineInput carries the fields to set. Nil fields keep their current
// value on update and take defaults on create.
type MedicineInput struct {
	Name          *string  `json:"name"`
	GenericName   *string  `json:"generic_name"`
	Description   *string  `json:"description"`
	UnitPrice     *float64 `json:"unit_price"`
	StockQuantity *int     `json:"stock_quantity"`
	IsActive      *bool    `json:"is_active"`
}

type SaleStatus string

const (
	SalePending   SaleStatus = "PENDING"
	SaleDispensed SaleStatus = "DISPENSED"
)

type Sale struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientCode    string     `db:"patient_code" json:"patient_code"`
	PatientName    string     `db:"patient_name" json:"patient_name"`
	DoctorID       *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	DoctorName     *string    `db:"doctor_name" json:"doctor_name,omitempty"`
	ConsultationID *uuid.UUID `db:"consultation_id" json:"consultation_id,omitempty"`
	CreatedBy      *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	Status         SaleStatus `db:"status" json:"status"`
	TotalAmount    float64    `db:"total_amount" json:"total_amount"`
	Items          []SaleItem `json:"items"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// SaleItem snapshots the medicine's name and price at dispense time.
type SaleItem struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	SaleID       uuid.UUID  `db:"sale_id" json:"sale_id"`
	MedicineID   *uuid.UUID `db:"medicine_id" json:"medicine_id,omitempty"`
	MedicineName string     `db:"medicine_name" json:"medicine_name"`
	Quantity     int        `db:"quantity" json:"quantity"`
	UnitPrice    float64    `db:"unit_price" json:"unit_price"`
	Subtotal     float64    `db:"subtotal" json:"subtotal"`
}

type SaleLine struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
}

// SaleInput dispenses against a consultation, or sells to a patient
// directly when ConsultationID is nil.
type SaleInput struct {
	ConsultationID *uuid.UUID `json:"consultation_id"`
	PatientID      *uuid.UUID `json:"patient_id"`
	Items          []SaleLine `json:"items"`
}

// Prescription is a consultation as the pharmacy sees it.
type Prescription struct {
	*consultation.Consultation
	Dispensed bool  `json:"dispensed"`
	Sale      *Sale `json:"sale,omitempty"`
}
