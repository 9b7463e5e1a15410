package consultation

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/lab"
	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
)

// -- Mock Repositories --

type mockConsultationRepo struct {
	store map[uuid.UUID]*Consultation
	items map[uuid.UUID][]PrescriptionItem
}

func newMockConsultationRepo() *mockConsultationRepo {
	return &mockConsultationRepo{
		store: make(map[uuid.UUID]*Consultation),
		items: make(map[uuid.UUID][]PrescriptionItem),
	}
}

func (m *mockConsultationRepo) Create(_ context.Context, c *Consultation) error {
	for _, existing := range m.store {
		if existing.AppointmentID == c.AppointmentID {
			return apperr.Conflict("consultation already exists")
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockConsultationRepo) load(c *Consultation) *Consultation {
	cp := *c
	cp.Prescriptions = append([]PrescriptionItem{}, m.items[c.ID]...)
	return &cp
}

func (m *mockConsultationRepo) GetByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("consultation not found")
	}
	return m.load(c), nil
}

func (m *mockConsultationRepo) ExistsForAppointment(_ context.Context, appointmentID uuid.UUID) (bool, error) {
	for _, c := range m.store {
		if c.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockConsultationRepo) Update(_ context.Context, c *Consultation) error {
	stored, ok := m.store[c.ID]
	if !ok {
		return apperr.NotFound("consultation not found")
	}
	stored.Diagnosis, stored.ClinicalNotes, stored.ReferToLab = c.Diagnosis, c.ClinicalNotes, c.ReferToLab
	return nil
}

func (m *mockConsultationRepo) sorted(keep func(*Consultation) bool) []*Consultation {
	out := []*Consultation{}
	for _, c := range m.store {
		if keep(c) {
			out = append(out, m.load(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockConsultationRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	out := m.sorted(func(c *Consultation) bool { return c.DoctorID == doctorID })
	return out, len(out), nil
}

func (m *mockConsultationRepo) ListForPatient(_ context.Context, patientID, doctorID uuid.UUID) ([]*Consultation, error) {
	return m.sorted(func(c *Consultation) bool { return c.PatientID == patientID && c.DoctorID == doctorID }), nil
}

func (m *mockConsultationRepo) ReplacePrescriptions(_ context.Context, consultationID uuid.UUID, items []PrescriptionItem) error {
	for i := range items {
		items[i].ID = uuid.New()
		items[i].ConsultationID = consultationID
	}
	m.items[consultationID] = append([]PrescriptionItem{}, items...)
	return nil
}

func (m *mockConsultationRepo) Prescriptions(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]PrescriptionItem, error) {
	out := make(map[uuid.UUID][]PrescriptionItem)
	for _, id := range ids {
		out[id] = m.items[id]
	}
	return out, nil
}

type mockPatientReader struct {
	patients map[uuid.UUID]*PatientSummary
	seen     map[uuid.UUID][]*PatientSummary
}

func (m *mockPatientReader) Summary(_ context.Context, id uuid.UUID) (*PatientSummary, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

func (m *mockPatientReader) SeenBy(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	out := m.seen[doctorID]
	return out, len(out), nil
}

// mockAppointments implements the appointment calls consultations make.
type mockAppointments struct {
	scheduling.AppointmentRepository
	store map[uuid.UUID]*scheduling.Appointment
}

func (m *mockAppointments) GetByID(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAppointments) GetForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status scheduling.Status) error {
	m.store[id].Status = status
	return nil
}

type mockLabRequests struct {
	lab.RequestRepository
	byAppointment map[uuid.UUID]*lab.Request
}

func (m *mockLabRequests) CreateIfAbsent(_ context.Context, r *lab.Request) (bool, error) {
	if _, ok := m.byAppointment[r.AppointmentID]; ok {
		return false, nil
	}
	r.ID = uuid.New()
	m.byAppointment[r.AppointmentID] = r
	return true, nil
}

type fixture struct {
	svc           *Service
	consultations *mockConsultationRepo
	appts         *mockAppointments
	labRequests   *mockLabRequests
	patients      *mockPatientReader
	pub           *events.MemoryPublisher
	doctor        auth.Principal
	appt          *scheduling.Appointment
	patient       *PatientSummary
}

func newFixture() *fixture {
	doctor := auth.Principal{ID: uuid.New(), Username: "doc001", Role: auth.RoleDoctor}
	patient := &PatientSummary{ID: uuid.New(), PatientCode: "PT0001", FullName: "Asha Menon", Age: 34}
	appt := &scheduling.Appointment{
		ID: uuid.New(), PatientID: patient.ID, PatientCode: patient.PatientCode, PatientName: patient.FullName,
		DoctorID: doctor.ID, DoctorName: "Dr. Rao", TokenNumber: "T001", Status: scheduling.StatusInProgress,
	}
	f := &fixture{
		consultations: newMockConsultationRepo(),
		appts:         &mockAppointments{store: map[uuid.UUID]*scheduling.Appointment{appt.ID: appt}},
		labRequests:   &mockLabRequests{byAppointment: make(map[uuid.UUID]*lab.Request)},
		patients: &mockPatientReader{
			patients: map[uuid.UUID]*PatientSummary{patient.ID: patient},
			seen:     map[uuid.UUID][]*PatientSummary{doctor.ID: {patient}},
		},
		pub:     events.NewMemoryPublisher(),
		doctor:  doctor,
		appt:    appt,
		patient: patient,
	}
	f.svc = NewService(f.consultations, f.patients, f.appts, f.labRequests, db.NopTransactor{}, f.pub, zerolog.Nop())
	return f
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func TestCreate_CompletesAppointment(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
		Diagnosis:     "Viral fever",
		ClinicalNotes: "rest and fluids",
		Prescriptions: []PrescriptionInput{
			{MedicineName: "Paracetamol", Quantity: intPtr(10), Dosage: "500 mg", Frequency: "1-0-1"},
			{MedicineName: "ORS"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.PatientCode != "PT0001" || c.TokenNumber != "T001" || len(c.Prescriptions) != 2 {
		t.Errorf("unexpected consultation %+v", c)
	}
	if c.Prescriptions[1].Quantity != 1 {
		t.Errorf("expected default quantity 1, got %d", c.Prescriptions[1].Quantity)
	}
	if f.appts.store[f.appt.ID].Status != scheduling.StatusCompleted {
		t.Errorf("expected appointment COMPLETED, got %s", f.appts.store[f.appt.ID].Status)
	}
	if len(f.labRequests.byAppointment) != 0 {
		t.Error("expected no lab request without referral")
	}
	if got := f.pub.Types(); len(got) != 1 || got[0] != events.ConsultationCompleted {
		t.Errorf("unexpected events %v", got)
	}
}

func TestCreate_ReferToLab(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
		Diagnosis: "Anaemia?", ReferToLab: true, TestType: "CBC",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r, ok := f.labRequests.byAppointment[f.appt.ID]
	if !ok {
		t.Fatal("expected a lab request")
	}
	if r.Status != lab.StatusPending || r.TestType != "CBC" || r.DoctorID != f.doctor.ID || r.PatientID != f.patient.ID {
		t.Errorf("unexpected lab request %+v", r)
	}
	types := f.pub.Types()
	if len(types) != 2 || types[1] != events.LabRequested {
		t.Errorf("unexpected events %v", types)
	}
}

func TestCreate_ReferWithExistingRequest(t *testing.T) {
	f := newFixture()
	existing := &lab.Request{ID: uuid.New(), AppointmentID: f.appt.ID, TestType: "Lipid Profile"}
	f.labRequests.byAppointment[f.appt.ID] = existing

	if _, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
		ReferToLab: true, TestType: "CBC",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.labRequests.byAppointment[f.appt.ID] != existing {
		t.Error("expected existing lab request kept")
	}
	for _, typ := range f.pub.Types() {
		if typ == events.LabRequested {
			t.Error("unexpected lab.requested event")
		}
	}
}

func TestCreate_Twice(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{Diagnosis: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{Diagnosis: "b"})
	expectKind(t, err, apperr.KindConflict)
	if err.Error() != "consultation already exists" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCreate_NotAssigned(t *testing.T) {
	f := newFixture()
	other := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	_, err := f.svc.Create(context.Background(), other, f.appt.ID, ConsultationInput{})
	if !errors.Is(err, scheduling.ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned, got %v", err)
	}
	_, err = f.svc.Create(context.Background(), f.doctor, uuid.New(), ConsultationInput{})
	if !errors.Is(err, scheduling.ErrNotAssigned) {
		t.Fatalf("expected ErrNotAssigned for unknown appointment, got %v", err)
	}
	if f.appts.store[f.appt.ID].Status != scheduling.StatusInProgress {
		t.Error("appointment status changed")
	}
}

func TestCreate_InvalidPrescription(t *testing.T) {
	tests := []struct {
		name string
		item PrescriptionInput
	}{
		{"missing medicine", PrescriptionInput{Quantity: intPtr(1)}},
		{"blank medicine", PrescriptionInput{MedicineName: "  "}},
		{"zero quantity", PrescriptionInput{MedicineName: "ORS", Quantity: intPtr(0)}},
		{"negative quantity", PrescriptionInput{MedicineName: "ORS", Quantity: intPtr(-2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
				Prescriptions: []PrescriptionInput{tt.item},
			})
			expectKind(t, err, apperr.KindValidation)
			if len(f.consultations.store) != 0 {
				t.Error("expected nothing stored")
			}
		})
	}
}

func TestUpdate_Prescriptions(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
		Diagnosis:     "Viral fever",
		Prescriptions: []PrescriptionInput{{MedicineName: "Paracetamol"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("absent list keeps items", func(t *testing.T) {
		got, err := f.svc.Update(context.Background(), f.doctor, c.ID, ConsultationUpdate{Diagnosis: strPtr("Dengue")})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Diagnosis != "Dengue" || len(got.Prescriptions) != 1 {
			t.Errorf("unexpected consultation %+v", got)
		}
	})

	t.Run("list replaces items", func(t *testing.T) {
		items := []PrescriptionInput{{MedicineName: "ORS", Quantity: intPtr(3)}, {MedicineName: "Zinc"}}
		got, err := f.svc.Update(context.Background(), f.doctor, c.ID, ConsultationUpdate{Prescriptions: &items})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		stored, _ := f.consultations.GetByID(context.Background(), c.ID)
		if len(got.Prescriptions) != 2 || len(stored.Prescriptions) != 2 || stored.Prescriptions[0].MedicineName != "ORS" {
			t.Errorf("unexpected items %+v", stored.Prescriptions)
		}
		if stored.Diagnosis != "Dengue" {
			t.Errorf("expected diagnosis kept, got %q", stored.Diagnosis)
		}
	})

	t.Run("empty list clears items", func(t *testing.T) {
		items := []PrescriptionInput{}
		if _, err := f.svc.Update(context.Background(), f.doctor, c.ID, ConsultationUpdate{Prescriptions: &items}); err != nil {
			t.Fatalf("update: %v", err)
		}
		stored, _ := f.consultations.GetByID(context.Background(), c.ID)
		if len(stored.Prescriptions) != 0 {
			t.Errorf("expected no items, got %d", len(stored.Prescriptions))
		}
	})

	t.Run("other doctor", func(t *testing.T) {
		other := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
		_, err := f.svc.Update(context.Background(), other, c.ID, ConsultationUpdate{Diagnosis: strPtr("x")})
		expectKind(t, err, apperr.KindNotFound)
	})

	t.Run("late referral files request", func(t *testing.T) {
		refer := true
		got, err := f.svc.Update(context.Background(), f.doctor, c.ID, ConsultationUpdate{ReferToLab: &refer, TestType: "CBC"})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if !got.ReferToLab || f.labRequests.byAppointment[f.appt.ID] == nil {
			t.Error("expected referral and lab request")
		}
	})
}

func TestGetAndList_OwnOnly(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{Diagnosis: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), f.doctor.ID, c.ID); err != nil {
		t.Errorf("get own: %v", err)
	}
	_, err = f.svc.Get(context.Background(), uuid.New(), c.ID)
	expectKind(t, err, apperr.KindNotFound)

	items, total, err := f.svc.List(context.Background(), uuid.New(), 20, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Errorf("expected empty list for another doctor, got %d %v", total, err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(context.Background(), f.doctor, f.appt.ID, ConsultationInput{
		Diagnosis: "Viral fever", Prescriptions: []PrescriptionInput{{MedicineName: "ORS"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	h, err := f.svc.History(context.Background(), f.doctor.ID, f.patient.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.PatientCode != "PT0001" || len(h.Consultations) != 1 || len(h.Consultations[0].Prescriptions) != 1 {
		t.Errorf("unexpected history %+v", h)
	}

	other, err := f.svc.History(context.Background(), uuid.New(), f.patient.ID)
	if err != nil || len(other.Consultations) != 0 {
		t.Errorf("expected no consultations for another doctor, got %v", err)
	}

	_, err = f.svc.History(context.Background(), f.doctor.ID, uuid.New())
	expectKind(t, err, apperr.KindNotFound)

	patients, total, _ := f.svc.Patients(context.Background(), f.doctor.ID, 20, 0)
	if total != 1 || patients[0].ID != f.patient.ID {
		t.Errorf("unexpected patients %v", patients)
	}
}
