package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List matches q against name and generic name.
	List(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error)
	// LockForSale locks the given medicines in id order until the
	// surrounding transaction ends. Unknown ids are absent from the map.
	LockForSale(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error)
	// DecrementStock fails with Validation when stock is below qty.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

type SaleRepository interface {
	// Create inserts the sale as PENDING.
	Create(ctx context.Context, s *Sale) error
	AddItem(ctx context.Context, item *SaleItem) error
	// MarkDispensed sets the total and the DISPENSED status. A second
	// dispensed sale for the same consultation fails with Conflict.
	MarkDispensed(ctx context.Context, id uuid.UUID, total float64) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sale, error)
	// DispensedFor returns the consultation's dispensed sale or NotFound.
	DispensedFor(ctx context.Context, consultationID uuid.UUID) (*Sale, error)
	// List matches q against the patient name.
	List(ctx context.Context, q string, limit, offset int) ([]*Sale, int, error)
	// ActivePrescriptions lists consultations with at least one
	// prescription item and no dispensed sale, newest first.
	ActivePrescriptions(ctx context.Context, limit, offset int) ([]uuid.UUID, int, error)
}
