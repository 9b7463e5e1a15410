package billing

import (
	"context"

	"github.com/google/uuid"
)

type ConsultationBillRepository interface {
	Create(ctx context.Context, b *ConsultationBill) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsultationBill, error)
	List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*ConsultationBill, int, error)
}

type LabBillRepository interface {
	Create(ctx context.Context, b *LabBill) error
	List(ctx context.Context, limit, offset int) ([]*LabBill, int, error)
}

// LedgerRepository reads the union of every bill source. There is no write
// path: bills enter the ledger only through their own tables.
type LedgerRepository interface {
	List(ctx context.Context, f LedgerFilter, limit, offset int) ([]*LedgerEntry, int, error)
}
