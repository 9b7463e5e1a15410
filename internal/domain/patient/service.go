package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/identifier"
)

type Service struct {
	patients PatientRepository
	vitals   VitalsRepository
	seq      identifier.Sequencer
	tx       db.Transactor
	events   events.Publisher
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, vitals VitalsRepository, seq identifier.Sequencer, tx db.Transactor, pub events.Publisher, logger zerolog.Logger) *Service {
	return &Service{patients: patients, vitals: vitals, seq: seq, tx: tx, events: pub, logger: logger}
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (in PatientInput) normalize() (PatientInput, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.FullName == "" {
		return in, apperr.Validation("full_name is required")
	}
	if in.Age == nil {
		return in, apperr.Validation("age is required")
	}
	if *in.Age < 0 || *in.Age > 150 {
		return in, apperr.Validation("age must be between 0 and 150")
	}
	in.Gender = optional(in.Gender)
	if in.Gender != nil && !validGenders[*in.Gender] {
		return in, apperr.Validation("gender must be one of Male, Female, Other")
	}
	in.BloodGroup = optional(in.BloodGroup)
	if in.BloodGroup != nil && !validBloodGroups[strings.ToUpper(*in.BloodGroup)] {
		return in, apperr.Validation("invalid blood_group %q", *in.BloodGroup)
	}
	if in.BloodGroup != nil {
		upper := strings.ToUpper(*in.BloodGroup)
		in.BloodGroup = &upper
	}
	in.ContactNumber = optional(in.ContactNumber)
	in.Address = optional(in.Address)
	return in, nil
}

// Register creates a patient and assigns the next PT#### code in the same
// transaction as the insert.
func (s *Service) Register(ctx context.Context, actor auth.Principal, in PatientInput) (*Patient, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	p := &Patient{
		FullName:      in.FullName,
		Age:           *in.Age,
		Gender:        in.Gender,
		BloodGroup:    in.BloodGroup,
		ContactNumber: in.ContactNumber,
		Address:       in.Address,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.seq.Next(ctx, identifier.PatientCounter)
		if err != nil {
			return fmt.Errorf("next patient code: %w", err)
		}
		p.PatientCode = identifier.PatientCode(n)
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.logger, events.New(events.PatientRegistered, actor.ID.String(), map[string]interface{}{
		"patient_id":   p.ID.String(),
		"patient_code": p.PatientCode,
	}))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return s.patients.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	f.Phone = strings.TrimSpace(f.Phone)
	f.Query = strings.TrimSpace(f.Query)
	return s.patients.List(ctx, f, limit, offset)
}

// Update replaces the demographics. The patient code is kept as assigned.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FullName = in.FullName
	p.Age = *in.Age
	p.Gender = in.Gender
	p.BloodGroup = in.BloodGroup
	p.ContactNumber = in.ContactNumber
	p.Address = in.Address
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

// -- Vitals --

func (s *Service) RecordVitals(ctx context.Context, actor auth.Principal, patientID uuid.UUID, in VitalsInput) (*Vitals, error) {
	if in.HeartRate != nil && *in.HeartRate <= 0 {
		return nil, apperr.Validation("heart_rate must be positive")
	}
	if in.OxygenSaturation != nil && (*in.OxygenSaturation < 0 || *in.OxygenSaturation > 100) {
		return nil, apperr.Validation("oxygen_saturation must be between 0 and 100")
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	v := &Vitals{
		PatientID:        patientID,
		Height:           optional(in.Height),
		Weight:           optional(in.Weight),
		BloodPressure:    optional(in.BloodPressure),
		HeartRate:        in.HeartRate,
		OxygenSaturation: in.OxygenSaturation,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		v.RecordedBy = &id
	}
	if err := s.vitals.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) ListVitals(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Vitals, int, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return s.vitals.ListByPatient(ctx, patientID, limit, offset)
}
