package lab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/billing"
	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/blobstore"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

// ErrAlreadyProcessed is returned for a request that is missing its PENDING
// state when a technician tries to record a result.
var ErrAlreadyProcessed = apperr.Conflict("invalid or already processed request")

type Config struct {
	// StrictPricing rejects results whose test type has no catalogue price
	// instead of billing zero.
	StrictPricing bool
}

type Service struct {
	types        TestTypeRepository
	requests     RequestRepository
	results      ResultRepository
	bills        billing.LabBillRepository
	appointments scheduling.AppointmentRepository
	blobs        blobstore.BlobStore
	tx           db.Transactor
	cfg          Config
	events       events.Publisher
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(types TestTypeRepository, requests RequestRepository, results ResultRepository,
	bills billing.LabBillRepository, appts scheduling.AppointmentRepository, blobs blobstore.BlobStore,
	tx db.Transactor, cfg Config, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		types:        types,
		requests:     requests,
		results:      results,
		bills:        bills,
		appointments: appts,
		blobs:        blobs,
		tx:           tx,
		cfg:          cfg,
		events:       pub,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// -- Test Types --

func (in TestTypeInput) validate() (string, float64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", 0, apperr.Validation("name is required")
	}
	if in.Price == nil {
		return "", 0, apperr.Validation("price is required")
	}
	if *in.Price < 0 {
		return "", 0, apperr.Validation("price must not be negative")
	}
	return name, billing.Round(*in.Price), nil
}

func (s *Service) CreateTestType(ctx context.Context, in TestTypeInput) (*TestType, error) {
	name, price, err := in.validate()
	if err != nil {
		return nil, err
	}
	t := &TestType{Name: name, Price: price}
	if err := s.types.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) GetTestType(ctx context.Context, id uuid.UUID) (*TestType, error) {
	return s.types.GetByID(ctx, id)
}

func (s *Service) ListTestTypes(ctx context.Context) ([]*TestType, error) {
	return s.types.List(ctx)
}

func (s *Service) UpdateTestType(ctx context.Context, id uuid.UUID, in TestTypeInput) (*TestType, error) {
	name, price, err := in.validate()
	if err != nil {
		return nil, err
	}
	t, err := s.types.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name, t.Price = name, price
	if err := s.types.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTestType(ctx context.Context, id uuid.UUID) error {
	return s.types.Delete(ctx, id)
}

// -- Requests --

// RequestTest files a lab request for one of the doctor's own appointments.
// An appointment carries at most one request.
func (s *Service) RequestTest(ctx context.Context, doctor auth.Principal, appointmentID uuid.UUID, in RequestInput) (*Request, error) {
	testType := strings.TrimSpace(in.TestType)
	if testType == "" {
		return nil, apperr.Validation("test_type is required")
	}
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if apperr.Is(err, apperr.KindNotFound) || (err == nil && appt.DoctorID != doctor.ID) {
		return nil, scheduling.ErrNotAssigned
	}
	if err != nil {
		return nil, err
	}

	r := &Request{
		AppointmentID: appt.ID,
		TokenNumber:   appt.TokenNumber,
		DoctorID:      doctor.ID,
		DoctorName:    appt.DoctorName,
		PatientID:     appt.PatientID,
		PatientCode:   appt.PatientCode,
		PatientName:   appt.PatientName,
		TestType:      testType,
		Remarks:       strings.TrimSpace(in.Remarks),
		Status:        StatusPending,
	}
	if err := s.requests.Create(ctx, r); err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, s.logger, events.New(events.LabRequested, doctor.ID.String(), map[string]interface{}{
		"lab_request_id": r.ID.String(),
		"appointment_id": r.AppointmentID.String(),
		"test_type":      r.TestType,
	}))
	return r, nil
}

func (s *Service) Pending(ctx context.Context, limit, offset int) ([]*Request, int, error) {
	return s.requests.ListByStatus(ctx, StatusPending, limit, offset)
}

// Completed lists processed requests together with their results.
func (s *Service) Completed(ctx context.Context, limit, offset int) ([]*RequestWithResult, int, error) {
	items, total, err := s.requests.ListByStatus(ctx, StatusCompleted, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.attachResults(ctx, items)
	return out, total, err
}

// PendingRequest returns a request that is still waiting at the bench.
func (s *Service) PendingRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, apperr.NotFound("pending lab request not found")
	}
	return r, nil
}

// CompletedRequest returns a processed request with its result. Doctors
// only see their own requests.
func (s *Service) CompletedRequest(ctx context.Context, caller auth.Principal, id uuid.UUID) (*RequestWithResult, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCompleted || (caller.Role == auth.RoleDoctor && r.DoctorID != caller.ID) {
		return nil, apperr.NotFound("completed lab request not found")
	}
	out, err := s.attachResults(ctx, []*Request{r})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *Service) attachResults(ctx context.Context, items []*Request) ([]*RequestWithResult, error) {
	out := make([]*RequestWithResult, 0, len(items))
	for _, r := range items {
		rw := &RequestWithResult{Request: r}
		if r.Status == StatusCompleted {
			res, err := s.results.GetByRequest(ctx, r.ID)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return nil, err
			}
			rw.Result = res
		}
		out = append(out, rw)
	}
	return out, nil
}

// -- Processing --

// Process records a result for a PENDING request. The result, the request's
// completion, the lab bill and the bill link are written in one
// transaction. An attached file is stored first and removed again if the
// transaction fails.
func (s *Service) Process(ctx context.Context, tech auth.Principal, requestID uuid.UUID, in ProcessInput) (*Outcome, error) {
	details := strings.TrimSpace(in.ResultDetails)
	if details == "" && in.File == nil {
		return nil, apperr.Validation("result_details or a result file is required")
	}

	// Fail fast before storing a file for a request that cannot be processed.
	current, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, ErrAlreadyProcessed
	}

	var blobID *string
	if in.File != nil {
		meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
			FileName:    in.File.FileName,
			ContentType: in.File.ContentType,
			Category:    blobstore.CategoryLabReport,
			PatientID:   current.PatientID.String(),
			CreatedBy:   tech.ID.String(),
		}, in.File.Content)
		if err != nil {
			return nil, uploadError(err)
		}
		blobID = &meta.ID
	}

	out := &Outcome{}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrAlreadyProcessed
		}

		price, err := s.price(ctx, req.TestType)
		if err != nil {
			return err
		}

		res := &Result{
			LabRequestID:  req.ID,
			TechnicianID:  tech.ID,
			ResultDetails: details,
			ResultFile:    blobID,
		}
		if err := s.results.Create(ctx, res); err != nil {
			return err
		}

		processedAt := s.now().UTC()
		if err := s.requests.MarkCompleted(ctx, req.ID, processedAt); err != nil {
			return err
		}
		req.Status = StatusCompleted
		req.ProcessedAt = &processedAt

		bill := &billing.LabBill{
			PatientID:   req.PatientID,
			PatientName: req.PatientName,
			Amount:      price,
			Description: "Lab Test: " + req.TestType,
			ReferenceID: res.ID,
		}
		by := tech.ID
		bill.CreatedBy = &by
		if err := s.bills.Create(ctx, bill); err != nil {
			return err
		}
		if err := s.results.LinkBill(ctx, res.ID, bill.ID); err != nil {
			return err
		}
		res.BillID = &bill.ID

		out.Request, out.Result, out.Bill = req, res, bill
		return nil
	})
	if err != nil {
		if blobID != nil {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), *blobID); derr != nil {
				s.logger.Error().Err(derr).Str("blob_id", *blobID).Msg("remove orphaned lab report failed")
			}
		}
		return nil, err
	}

	s.metrics.LabResultRecorded()
	s.metrics.BillCreated(billing.SourceLab, out.Bill.Amount)
	actor := tech.ID.String()
	events.Emit(ctx, s.events, s.logger, events.New(events.LabResultRecorded, actor, map[string]interface{}{
		"lab_request_id": out.Request.ID.String(),
		"result_id":      out.Result.ID.String(),
	}))
	events.Emit(ctx, s.events, s.logger, events.New(events.BillCreated, actor, map[string]interface{}{
		"source":  billing.SourceLab,
		"bill_id": out.Bill.ID.String(),
		"amount":  out.Bill.Amount,
	}))
	return out, nil
}

// price looks the test type up by exact name. Unknown names bill zero
// unless strict pricing is on.
func (s *Service) price(ctx context.Context, testType string) (float64, error) {
	t, err := s.types.GetByName(ctx, testType)
	if err == nil {
		return t.Price, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return 0, err
	}
	if s.cfg.StrictPricing {
		return 0, apperr.Validation("no price configured for lab test %q", testType)
	}
	s.logger.Warn().Str("test_type", testType).Msg("no catalogue price for lab test, billing 0")
	return 0, nil
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("result file is too large")
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperr.Validation("result file must be a PDF, PNG, JPEG, text or CSV file")
	case errors.Is(err, blobstore.ErrMissingFileName):
		return apperr.Validation("result file name is required")
	}
	return fmt.Errorf("store lab report: %w", err)
}

// -- Reports --

// ResultFile opens the report attached to a result. Doctors only see
// reports for their own requests.
func (s *Service) ResultFile(ctx context.Context, caller auth.Principal, resultID uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	res, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}
	if caller.Role == auth.RoleDoctor {
		req, err := s.requests.GetByID(ctx, res.LabRequestID)
		if err != nil {
			return nil, nil, err
		}
		if req.DoctorID != caller.ID {
			return nil, nil, apperr.NotFound("lab result not found")
		}
	}
	if res.ResultFile == nil {
		return nil, nil, apperr.NotFound("lab result has no file")
	}
	rc, meta, err := s.blobs.Download(ctx, *res.ResultFile)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, apperr.NotFound("lab report file is missing")
	}
	return rc, meta, err
}

func (s *Service) ListBills(ctx context.Context, limit, offset int) ([]*billing.LabBill, int, error) {
	return s.bills.List(ctx, limit, offset)
}

// -- Doctor views --

func (s *Service) DoctorRequests(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*RequestWithResult, int, error) {
	items, total, err := s.requests.ListByDoctor(ctx, doctorID, "", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.attachResults(ctx, items)
	return out, total, err
}

func (s *Service) DoctorResults(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*RequestWithResult, int, error) {
	items, total, err := s.requests.ListByDoctor(ctx, doctorID, StatusCompleted, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.attachResults(ctx, items)
	return out, total, err
}

// DoctorResult returns one of the doctor's requests with its result.
func (s *Service) DoctorResult(ctx context.Context, doctorID, requestID uuid.UUID) (*RequestWithResult, error) {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != doctorID {
		return nil, apperr.NotFound("lab request not found")
	}
	out, err := s.attachResults(ctx, []*Request{r})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
