package billing

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

// maxExportRows bounds a single spreadsheet export.
const maxExportRows = 50000

type Service struct {
	bills        ConsultationBillRepository
	labBills     LabBillRepository
	ledger       LedgerRepository
	appointments scheduling.AppointmentRepository
	defaultFee   float64
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func NewService(bills ConsultationBillRepository, labBills LabBillRepository, ledger LedgerRepository,
	appts scheduling.AppointmentRepository, defaultFee float64,
	pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		bills:        bills,
		labBills:     labBills,
		ledger:       ledger,
		appointments: appts,
		defaultFee:   defaultFee,
		events:       pub,
		metrics:      m,
		logger:       logger,
	}
}

// CreateConsultationBill charges the consultation fee for an appointment.
// Each appointment is billed at most once.
func (s *Service) CreateConsultationBill(ctx context.Context, actor auth.Principal, in ConsultationBillInput) (*ConsultationBill, error) {
	if in.AppointmentID == uuid.Nil {
		return nil, apperr.Validation("appointment_id is required")
	}
	fee, err := ParseFee(in.ConsultationFee, s.defaultFee)
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.GetByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}

	b := &ConsultationBill{
		AppointmentID:   appt.ID,
		TokenNumber:     appt.TokenNumber,
		PatientID:       appt.PatientID,
		PatientName:     appt.PatientName,
		ConsultationFee: fee,
	}
	if actor.ID != uuid.Nil {
		by := actor.ID
		b.CreatedBy = &by
	}
	if err := s.bills.Create(ctx, b); err != nil {
		return nil, err
	}

	s.metrics.BillCreated(SourceConsultation, fee)
	events.Emit(ctx, s.events, s.logger, events.New(events.BillCreated, actor.ID.String(), map[string]interface{}{
		"source":         SourceConsultation,
		"bill_id":        b.ID.String(),
		"appointment_id": b.AppointmentID.String(),
		"amount":         fee,
	}))
	return b, nil
}

func (s *Service) GetConsultationBill(ctx context.Context, id uuid.UUID) (*ConsultationBill, error) {
	return s.bills.GetByID(ctx, id)
}

func (s *Service) ListConsultationBills(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*ConsultationBill, int, error) {
	return s.bills.List(ctx, patientID, limit, offset)
}

func (s *Service) ListLabBills(ctx context.Context, limit, offset int) ([]*LabBill, int, error) {
	return s.labBills.List(ctx, limit, offset)
}

func (f LedgerFilter) validate() error {
	if f.Source != "" && !validSources[f.Source] {
		return apperr.Validation("source must be one of consultation, lab, pharmacy")
	}
	return nil
}

func (s *Service) Ledger(ctx context.Context, f LedgerFilter, limit, offset int) ([]*LedgerEntry, int, error) {
	if err := f.validate(); err != nil {
		return nil, 0, err
	}
	return s.ledger.List(ctx, f, limit, offset)
}

// ExportLedger writes the filtered ledger to w as a spreadsheet.
func (s *Service) ExportLedger(ctx context.Context, f LedgerFilter, w io.Writer) error {
	if err := f.validate(); err != nil {
		return err
	}
	entries, total, err := s.ledger.List(ctx, f, maxExportRows, 0)
	if err != nil {
		return err
	}
	if total > len(entries) {
		s.logger.Warn().Int("total", total).Int("exported", len(entries)).Msg("ledger export truncated")
	}
	return WriteLedger(w, entries)
}
