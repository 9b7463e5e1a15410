package lab

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/domain/billing"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusProcessing RequestStatus = "PROCESSING"
	StatusCompleted  RequestStatus = "COMPLETED"
)

// TestType is a priced entry in the lab catalogue. Requests refer to it by
// name.
type TestType struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     float64   `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type TestTypeInput struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price"`
}

type Request struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	AppointmentID uuid.UUID     `db:"appointment_id" json:"appointment_id"`
	TokenNumber   string        `db:"token_number" json:"token_number"`
	DoctorID      uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	DoctorName    string        `db:"doctor_name" json:"doctor_name"`
	PatientID     uuid.UUID     `db:"patient_id" json:"patient_id"`
	PatientCode   string        `db:"patient_code" json:"patient_code"`
	PatientName   string        `db:"patient_name" json:"patient_name"`
	TestType      string        `db:"test_type" json:"test_type"`
	Remarks       string        `db:"remarks" json:"remarks"`
	Status        RequestStatus `db:"status" json:"status"`
	RequestedAt   time.Time     `db:"requested_at" json:"requested_at"`
	ProcessedAt   *time.Time    `db:"processed_at" json:"processed_at,omitempty"`
}

type Result struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	LabRequestID  uuid.UUID  `db:"lab_request_id" json:"lab_request_id"`
	TechnicianID  uuid.UUID  `db:"technician_id" json:"technician_id"`
	ResultDetails string     `db:"result_details" json:"result_details"`
	ResultFile    *string    `db:"result_file" json:"result_file,omitempty"`
	BillID        *uuid.UUID `db:"bill_id" json:"bill_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// RequestWithResult pairs a request with its result once processed.
type RequestWithResult struct {
	*Request
	Result *Result `json:"result,omitempty"`
}

type RequestInput struct {
	TestType string `json:"test_type"`
	Remarks  string `json:"remarks"`
}

// Upload is an optional report file attached to a result.
type Upload struct {
	FileName    string
	ContentType string
	Content     io.Reader
}

type ProcessInput struct {
	ResultDetails string  `json:"result_details"`
	File          *Upload `json:"-"`
}

// Outcome is everything one processing step wrote.
type Outcome struct {
	Request *Request         `json:"request"`
	Result  *Result          `json:"result"`
	Bill    *billing.LabBill `json:"bill"`
}
