package pharmacy

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hillcrest/hms/internal/domain/billing"
	"github.com/hillcrest/hms/internal/domain/consultation"
	"github.com/hillcrest/hms/internal/domain/patient"
	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/metrics"
)

type Service struct {
	medicines     MedicineRepository
	sales         SaleRepository
	consultations consultation.ConsultationRepository
	patients      patient.PatientRepository
	tx            db.Transactor
	events        events.Publisher
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

func NewService(medicines MedicineRepository, sales SaleRepository,
	consultations consultation.ConsultationRepository, patients patient.PatientRepository,
	tx db.Transactor, pub events.Publisher, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		medicines:     medicines,
		sales:         sales,
		consultations: consultations,
		patients:      patients,
		tx:            tx,
		events:        pub,
		metrics:       m,
		logger:        logger,
	}
}

// -- Medicines --

func (in MedicineInput) apply(m *Medicine) error {
	if in.Name != nil {
		m.Name = strings.TrimSpace(*in.Name)
	}
	if in.GenericName != nil {
		m.GenericName = strings.TrimSpace(*in.GenericName)
	}
	if in.Description != nil {
		m.Description = strings.TrimSpace(*in.Description)
	}
	if in.UnitPrice != nil {
		m.UnitPrice = billing.Round(*in.UnitPrice)
	}
	if in.StockQuantity != nil {
		m.StockQuantity = *in.StockQuantity
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}

	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	if m.UnitPrice < 0 {
		return apperr.Validation("unit_price must not be negative")
	}
	if m.StockQuantity < 0 {
		return apperr.Validation("stock_quantity must not be negative")
	}
	return nil
}

func (s *Service) CreateMedicine(ctx context.Context, in MedicineInput) (*Medicine, error) {
	if in.UnitPrice == nil {
		return nil, apperr.Validation("unit_price is required")
	}
	m := &Medicine{IsActive: true}
	if err := in.apply(m); err != nil {
		return nil, err
	}
	if err := s.medicines.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) ListMedicines(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error) {
	return s.medicines.List(ctx, strings.TrimSpace(q), limit, offset)
}

// UpdateMedicine applies the present fields. Setting stock_quantity here is
// the restock path; dispensing is the only other stock change.
func (s *Service) UpdateMedicine(ctx context.Context, id uuid.UUID, in MedicineInput) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(m); err != nil {
		return nil, err
	}
	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, id uuid.UUID) error {
	return s.medicines.Delete(ctx, id)
}

// -- Sales --

type lineTotal struct {
	id  uuid.UUID
	qty int
}

// aggregate sums quantities per medicine and returns them in id order, the
// order rows are locked in.
func aggregate(lines []SaleLine) []lineTotal {
	sums := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		sums[l.MedicineID] += l.Quantity
	}
	out := make([]lineTotal, 0, len(sums))
	for id, qty := range sums {
		out = append(out, lineTotal{id: id, qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].id[:], out[j].id[:]) < 0 })
	return out
}

// CreateSale dispenses medicines in one transaction. Every line is checked
// against the locked stock before anything is written, so a rejected sale
// leaves stock untouched.
func (s *Service) CreateSale(ctx context.Context, actor auth.Principal, in SaleInput) (*Sale, error) {
	if len(in.Items) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	if in.ConsultationID == nil && in.PatientID == nil {
		return nil, apperr.Validation("consultation_id or patient_id is required")
	}
	totals := aggregate(in.Items)
	ids := make([]uuid.UUID, len(totals))
	for i, t := range totals {
		ids[i] = t.id
	}

	var (
		out   *Sale
		units int
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		by := actor.ID
		sale := &Sale{ConsultationID: in.ConsultationID, CreatedBy: &by}

		if in.ConsultationID != nil {
			c, err := s.consultations.GetByID(ctx, *in.ConsultationID)
			if err != nil {
				return err
			}
			prior, err := s.sales.DispensedFor(ctx, c.ID)
			if err != nil && !apperr.Is(err, apperr.KindNotFound) {
				return err
			}
			if prior != nil {
				return apperr.Conflict("prescription already dispensed")
			}
			doctorID, doctorName := c.DoctorID, c.DoctorName
			sale.PatientID, sale.PatientCode, sale.PatientName = c.PatientID, c.PatientCode, c.PatientName
			sale.DoctorID, sale.DoctorName = &doctorID, &doctorName
		} else {
			p, err := s.patients.GetByID(ctx, *in.PatientID)
			if err != nil {
				return err
			}
			sale.PatientID, sale.PatientCode, sale.PatientName = p.ID, p.PatientCode, p.FullName
		}

		locked, err := s.medicines.LockForSale(ctx, ids)
		if err != nil {
			return err
		}
		for _, l := range in.Items {
			m, ok := locked[l.MedicineID]
			if !ok {
				return apperr.NotFound("medicine %s not found", l.MedicineID)
			}
			if l.Quantity <= 0 {
				return apperr.Validation("invalid quantity selected for %s", m.Name)
			}
		}
		for _, t := range totals {
			m := locked[t.id]
			if !m.IsActive {
				return apperr.Validation("%s is not available for sale", m.Name)
			}
			if m.StockQuantity < t.qty {
				return apperr.Validation("not enough stock for %s. available: %d", m.Name, m.StockQuantity)
			}
		}

		if err := s.sales.Create(ctx, sale); err != nil {
			return err
		}
		var total float64
		sale.Items = make([]SaleItem, 0, len(totals))
		for _, t := range totals {
			m := locked[t.id]
			if err := s.medicines.DecrementStock(ctx, m.ID, t.qty); err != nil {
				if apperr.Is(err, apperr.KindValidation) {
					return apperr.Validation("not enough stock for %s. available: %d", m.Name, m.StockQuantity)
				}
				return err
			}
			medicineID := m.ID
			item := SaleItem{
				SaleID:       sale.ID,
				MedicineID:   &medicineID,
				MedicineName: m.Name,
				Quantity:     t.qty,
				UnitPrice:    m.UnitPrice,
				Subtotal:     billing.Round(m.UnitPrice * float64(t.qty)),
			}
			if err := s.sales.AddItem(ctx, &item); err != nil {
				return err
			}
			sale.Items = append(sale.Items, item)
			total += item.Subtotal
			units += t.qty
		}

		sale.TotalAmount = billing.Round(total)
		if err := s.sales.MarkDispensed(ctx, sale.ID, sale.TotalAmount); err != nil {
			return err
		}
		sale.Status = SaleDispensed
		out = sale
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ItemsDispensed(units)
	s.metrics.BillCreated(billing.SourcePharmacy, out.TotalAmount)
	payload := map[string]interface{}{
		"sale_id": out.ID.String(),
		"units":   units,
		"total":   out.TotalAmount,
	}
	if out.ConsultationID != nil {
		payload["consultation_id"] = out.ConsultationID.String()
	}
	actorID := actor.ID.String()
	events.Emit(ctx, s.events, s.logger, events.New(events.PrescriptionDispensed, actorID, payload))
	events.Emit(ctx, s.events, s.logger, events.New(events.BillCreated, actorID, map[string]interface{}{
		"source":  billing.SourcePharmacy,
		"bill_id": out.ID.String(),
		"amount":  out.TotalAmount,
	}))
	return out, nil
}

func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (*Sale, error) {
	return s.sales.GetByID(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, q string, limit, offset int) ([]*Sale, int, error) {
	return s.sales.List(ctx, strings.TrimSpace(q), limit, offset)
}

// -- Prescriptions --

func (s *Service) ActivePrescriptions(ctx context.Context, limit, offset int) ([]*Prescription, int, error) {
	ids, total, err := s.sales.ActivePrescriptions(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Prescription, 0, len(ids))
	for _, id := range ids {
		c, err := s.consultations.GetByID(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &Prescription{Consultation: c})
	}
	return out, total, nil
}

// Prescription returns a consultation with its dispense state.
func (s *Service) Prescription(ctx context.Context, consultationID uuid.UUID) (*Prescription, error) {
	c, err := s.consultations.GetByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}
	sale, err := s.sales.DispensedFor(ctx, consultationID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return &Prescription{Consultation: c, Dispensed: sale != nil, Sale: sale}, nil
}
