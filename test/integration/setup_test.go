//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/billing"
	"github.com/hillcrest/hms/internal/domain/consultation"
	"github.com/hillcrest/hms/internal/domain/lab"
	"github.com/hillcrest/hms/internal/domain/patient"
	"github.com/hillcrest/hms/internal/domain/pharmacy"
	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/domain/staff"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/blobstore"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/identifier"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

// connStr points at the shared container, started once in TestMain.
var connStr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}
	connStr = dsn

	code := m.Run()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// newSchema migrates a fresh schema and returns a pool whose connections
// use it as search_path. The schema is dropped when the test ends.
func newSchema(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	schema := "hms_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := db.NewPool(ctx, connStr, "", 4, 1)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := db.NewMigrator(admin, findMigrationsDir()).Up(ctx, schema); err != nil {
		admin.Close()
		t.Fatalf("migrate %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, connStr, schema, 20, 2)
	if err != nil {
		admin.Close()
		t.Fatalf("connect to %s: %v", schema, err)
	}
	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
		admin.Close()
	})
	return pool
}

// hospital is every service wired against one migrated schema.
type hospital struct {
	pool   *pgxpool.Pool
	events *events.MemoryPublisher

	staff        *staff.Service
	patients     *patient.Service
	scheduling   *scheduling.Service
	billing      *billing.Service
	lab          *lab.Service
	consultation *consultation.Service
	pharmacy     *pharmacy.Service

	dept         *staff.Department
	receptionist auth.Principal
	doctor       auth.Principal
	tech         auth.Principal
	pharmacist   auth.Principal
}

func newHospital(t *testing.T) *hospital {
	t.Helper()
	pool := newSchema(t)
	logger := zerolog.Nop()
	pub := events.NewMemoryPublisher()
	m := metrics.New()
	seq := identifier.NewPGSequencer(pool)
	tx := db.NewTransactor(pool)

	users := staff.NewUserRepoPG(pool)
	patientRepo := patient.NewPatientRepoPG(pool)
	appointments := scheduling.NewAppointmentRepoPG(pool)
	labBills := billing.NewLabBillRepoPG(pool)
	labRequests := lab.NewRequestRepoPG(pool)
	consultations := consultation.NewConsultationRepoPG(pool)

	h := &hospital{
		pool:       pool,
		events:     pub,
		staff:      staff.NewService(users, staff.NewDepartmentRepoPG(pool), seq, tx),
		patients:   patient.NewService(patientRepo, patient.NewVitalsRepoPG(pool), seq, tx, pub, logger),
		scheduling: scheduling.NewService(appointments, scheduling.NewDirectoryPG(pool), seq, tx, pub, m, logger),
		billing: billing.NewService(billing.NewConsultationBillRepoPG(pool), labBills, billing.NewLedgerRepoPG(pool),
			appointments, 300, pub, m, logger),
		lab: lab.NewService(lab.NewTestTypeRepoPG(pool), labRequests, lab.NewResultRepoPG(pool), labBills,
			appointments, blobstore.NewMemoryStore(1<<20), tx, lab.Config{}, pub, m, logger),
		consultation: consultation.NewService(consultations, consultation.NewPatientReaderPG(pool),
			appointments, labRequests, tx, pub, logger),
		pharmacy: pharmacy.NewService(pharmacy.NewMedicineRepoPG(pool), pharmacy.NewSaleRepoPG(pool),
			consultations, patientRepo, tx, pub, m, logger),
	}

	ctx := context.Background()
	dept, err := h.staff.CreateDepartment(ctx, staff.DepartmentInput{Name: "General Medicine"})
	if err != nil {
		t.Fatalf("create department: %v", err)
	}
	h.dept = dept
	h.receptionist = h.employee(t, "Rita Desk", auth.RoleReceptionist, nil)
	h.doctor = h.employee(t, "Dana One", auth.RoleDoctor, &dept.ID)
	h.tech = h.employee(t, "Lee Bench", auth.RoleLabTechnician, nil)
	h.pharmacist = h.employee(t, "Pat Counter", auth.RolePharmacist, nil)
	return h
}

func (h *hospital) employee(t *testing.T, name string, role auth.Role, dept *uuid.UUID) auth.Principal {
	t.Helper()
	out, err := h.staff.CreateEmployee(context.Background(), staff.EmployeeInput{
		FullName:     name,
		Role:         string(role),
		DepartmentID: dept,
	})
	if err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return auth.Principal{ID: out.Employee.ID, Username: out.Employee.Username, Role: role}
}

func (h *hospital) registerPatient(t *testing.T, name string, age int) *patient.Patient {
	t.Helper()
	p, err := h.patients.Register(context.Background(), h.receptionist, patient.PatientInput{FullName: name, Age: &age})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return p
}

func (h *hospital) book(t *testing.T, p *patient.Patient, doctor auth.Principal) *scheduling.Appointment {
	t.Helper()
	a, err := h.scheduling.Book(context.Background(), h.receptionist, scheduling.AppointmentInput{
		PatientID:    p.ID,
		DoctorID:     doctor.ID,
		DepartmentID: h.dept.ID,
	})
	if err != nil {
		t.Fatalf("book appointment: %v", err)
	}
	return a
}

func (h *hospital) consult(t *testing.T, a *scheduling.Appointment, in consultation.ConsultationInput) *consultation.Consultation {
	t.Helper()
	c, err := h.consultation.Create(context.Background(), h.doctor, a.ID, in)
	if err != nil {
		t.Fatalf("create consultation: %v", err)
	}
	return c
}

func (h *hospital) medicine(t *testing.T, name string, price float64, stock int) *pharmacy.Medicine {
	t.Helper()
	m, err := h.pharmacy.CreateMedicine(context.Background(), pharmacy.MedicineInput{
		Name:          &name,
		UnitPrice:     &price,
		StockQuantity: &stock,
	})
	if err != nil {
		t.Fatalf("create medicine %s: %v", name, err)
	}
	return m
}

func ptrFloat(f float64) *float64 { return &f }
