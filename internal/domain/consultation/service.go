package consultation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/lab"
	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
)

var errNotFound = apperr.NotFound("consultation not found")

type Service struct {
	consultations ConsultationRepository
	patients      PatientReader
	appointments  scheduling.AppointmentRepository
	labRequests   lab.RequestRepository
	tx            db.Transactor
	events        events.Publisher
	logger        zerolog.Logger
}

func NewService(consultations ConsultationRepository, patients PatientReader,
	appts scheduling.AppointmentRepository, labRequests lab.RequestRepository,
	tx db.Transactor, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		consultations: consultations,
		patients:      patients,
		appointments:  appts,
		labRequests:   labRequests,
		tx:            tx,
		events:        pub,
		logger:        logger,
	}
}

// Create records the consultation for one of the doctor's appointments and
// completes the appointment. With refer_to_lab and a test type it also
// files a lab request unless the appointment already has one.
func (s *Service) Create(ctx context.Context, doctor auth.Principal, appointmentID uuid.UUID, in ConsultationInput) (*Consultation, error) {
	items, err := prescriptionItems(in.Prescriptions)
	if err != nil {
		return nil, err
	}

	var (
		out        *Consultation
		labRequest *lab.Request
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appointments.GetForUpdate(ctx, appointmentID)
		if apperr.Is(err, apperr.KindNotFound) {
			return scheduling.ErrNotAssigned
		}
		if err != nil {
			return err
		}
		if appt.DoctorID != doctor.ID {
			return scheduling.ErrNotAssigned
		}

		exists, err := s.consultations.ExistsForAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("consultation already exists")
		}

		c := &Consultation{
			AppointmentID: appt.ID,
			TokenNumber:   appt.TokenNumber,
			DoctorID:      doctor.ID,
			DoctorName:    appt.DoctorName,
			PatientID:     appt.PatientID,
			PatientCode:   appt.PatientCode,
			PatientName:   appt.PatientName,
			Diagnosis:     strings.TrimSpace(in.Diagnosis),
			ClinicalNotes: strings.TrimSpace(in.ClinicalNotes),
			ReferToLab:    in.ReferToLab,
		}
		if err := s.consultations.Create(ctx, c); err != nil {
			return err
		}
		if err := s.consultations.ReplacePrescriptions(ctx, c.ID, items); err != nil {
			return err
		}
		c.Prescriptions = items

		if c.ReferToLab {
			if labRequest, err = s.referToLab(ctx, appt, in.TestType, in.Remarks); err != nil {
				return err
			}
		}

		if appt.Status != scheduling.StatusCompleted {
			if err := s.appointments.UpdateStatus(ctx, appt.ID, scheduling.StatusCompleted); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	actor := doctor.ID.String()
	events.Emit(ctx, s.events, s.logger, events.New(events.ConsultationCompleted, actor, map[string]interface{}{
		"consultation_id": out.ID.String(),
		"appointment_id":  out.AppointmentID.String(),
		"prescriptions":   len(out.Prescriptions),
		"refer_to_lab":    out.ReferToLab,
	}))
	s.emitLabRequested(ctx, actor, labRequest)
	return out, nil
}

// referToLab files a PENDING request for the appointment. It returns nil
// when no test type is given or a request already exists.
func (s *Service) referToLab(ctx context.Context, appt *scheduling.Appointment, testType, remarks string) (*lab.Request, error) {
	testType = strings.TrimSpace(testType)
	if testType == "" {
		return nil, nil
	}
	r := &lab.Request{
		AppointmentID: appt.ID,
		TokenNumber:   appt.TokenNumber,
		DoctorID:      appt.DoctorID,
		DoctorName:    appt.DoctorName,
		PatientID:     appt.PatientID,
		PatientCode:   appt.PatientCode,
		PatientName:   appt.PatientName,
		TestType:      testType,
		Remarks:       strings.TrimSpace(remarks),
		Status:        lab.StatusPending,
	}
	created, err := s.labRequests.CreateIfAbsent(ctx, r)
	if err != nil || !created {
		return nil, err
	}
	return r, nil
}

func (s *Service) emitLabRequested(ctx context.Context, actor string, r *lab.Request) {
	if r == nil {
		return
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.LabRequested, actor, map[string]interface{}{
		"lab_request_id": r.ID.String(),
		"appointment_id": r.AppointmentID.String(),
		"test_type":      r.TestType,
	}))
}

// Update applies the fields present in the payload. Only the consultation's
// doctor may change it.
func (s *Service) Update(ctx context.Context, doctor auth.Principal, id uuid.UUID, in ConsultationUpdate) (*Consultation, error) {
	var items []PrescriptionItem
	if in.Prescriptions != nil {
		var err error
		if items, err = prescriptionItems(*in.Prescriptions); err != nil {
			return nil, err
		}
	}

	var (
		out        *Consultation
		labRequest *lab.Request
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.consultations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if c.DoctorID != doctor.ID {
			return errNotFound
		}

		if in.Diagnosis != nil {
			c.Diagnosis = strings.TrimSpace(*in.Diagnosis)
		}
		if in.ClinicalNotes != nil {
			c.ClinicalNotes = strings.TrimSpace(*in.ClinicalNotes)
		}
		if in.ReferToLab != nil {
			c.ReferToLab = *in.ReferToLab
		}
		if err := s.consultations.Update(ctx, c); err != nil {
			return err
		}

		if in.Prescriptions != nil {
			if err := s.consultations.ReplacePrescriptions(ctx, c.ID, items); err != nil {
				return err
			}
			c.Prescriptions = items
		}

		if c.ReferToLab && in.TestType != "" {
			appt, err := s.appointments.GetByID(ctx, c.AppointmentID)
			if err != nil {
				return err
			}
			if labRequest, err = s.referToLab(ctx, appt, in.TestType, in.Remarks); err != nil {
				return err
			}
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitLabRequested(ctx, doctor.ID.String(), labRequest)
	return out, nil
}

// Get returns one of the doctor's consultations.
func (s *Service) Get(ctx context.Context, doctorID, id uuid.UUID) (*Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.DoctorID != doctorID {
		return nil, errNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.consultations.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) Patients(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	return s.patients.SeenBy(ctx, doctorID, limit, offset)
}

// History returns the patient with the consultations this doctor wrote for
// them, newest first.
func (s *Service) History(ctx context.Context, doctorID, patientID uuid.UUID) (*PatientHistory, error) {
	p, err := s.patients.Summary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	items, err := s.consultations.ListForPatient(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.RecordAccessed, doctorID.String(), map[string]interface{}{
		"patient_id": patientID.String(),
		"view":       "patient_history",
	}))
	return &PatientHistory{PatientSummary: *p, Consultations: items}, nil
}
