package lab

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TestTypeRepository interface {
	Create(ctx context.Context, t *TestType) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestType, error)
	GetByName(ctx context.Context, name string) (*TestType, error)
	Update(ctx context.Context, t *TestType) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*TestType, error)
}

type RequestRepository interface {
	// Create fails with Conflict when the appointment already has a request.
	Create(ctx context.Context, r *Request) error
	// CreateIfAbsent inserts r unless the appointment already has a request
	// and reports whether a row was written.
	CreateIfAbsent(ctx context.Context, r *Request) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByStatus(ctx context.Context, status RequestStatus, limit, offset int) ([]*Request, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status RequestStatus, limit, offset int) ([]*Request, int, error)
}

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	GetByRequest(ctx context.Context, requestID uuid.UUID) (*Result, error)
	LinkBill(ctx context.Context, resultID, billID uuid.UUID) error
}
