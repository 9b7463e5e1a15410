package billing

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hillcrest/hms/internal/platform/apperr"
)

// Ledger sources.
const (
	SourceConsultation = "consultation"
	SourceLab          = "lab"
	SourcePharmacy     = "pharmacy"
)

var validSources = map[string]bool{SourceConsultation: true, SourceLab: true, SourcePharmacy: true}

// ConsultationBill charges the consultation fee for one appointment.
type ConsultationBill struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AppointmentID   uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	TokenNumber     string     `db:"token_number" json:"token_number"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName     string     `db:"patient_name" json:"patient_name"`
	ConsultationFee float64    `db:"consultation_fee" json:"consultation_fee"`
	CreatedBy       *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// LabBill is written by the lab workflow when a result is recorded.
// ReferenceID is the lab result it charges for.
type LabBill struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientName string     `db:"patient_name" json:"patient_name,omitempty"`
	Amount      float64    `db:"amount" json:"amount"`
	Description string     `db:"description" json:"description"`
	ReferenceID uuid.UUID  `db:"reference_id" json:"reference_id"`
	CreatedBy   *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// LedgerEntry is one row of the billing_ledger view.
type LedgerEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Source      string     `db:"source" json:"source"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientCode string     `db:"patient_code" json:"patient_code"`
	PatientName string     `db:"patient_name" json:"patient_name"`
	Amount      float64    `db:"amount" json:"amount"`
	Description string     `db:"description" json:"description"`
	ReferenceID uuid.UUID  `db:"reference_id" json:"reference_id"`
	CreatedBy   *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type LedgerFilter struct {
	Source    string
	PatientID *uuid.UUID
}

// ConsultationBillInput accepts the fee as a JSON number, a string or null.
type ConsultationBillInput struct {
	AppointmentID   uuid.UUID       `json:"appointment_id"`
	ConsultationFee json.RawMessage `json:"consultation_fee"`
}

// ParseFee reads a fee sent as a number or a string. Missing, null, empty
// and zero fees fall back to def.
func ParseFee(raw json.RawMessage, def float64) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return def, nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, apperr.Validation("consultation_fee must be a number")
		}
	} else {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return def, nil
	}

	fee, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(fee) || math.IsInf(fee, 0) {
		return 0, apperr.Validation("consultation_fee must be a number")
	}
	if fee < 0 {
		return 0, apperr.Validation("consultation_fee must not be negative")
	}
	// sub-cent amounts round to zero and take the default too
	if fee = Round(fee); fee == 0 {
		return def, nil
	}
	return fee, nil
}

// Round rounds a money amount to two decimals.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
