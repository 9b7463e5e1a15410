package pharmacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/db"
)

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const medicineCols = `id, name, generic_name, description, unit_price, stock_quantity, is_active, created_at, updated_at`

func (r *medicineRepoPG) scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Description, &m.UnitPrice,
		&m.StockQuantity, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medicine not found")
	}
	return &m, err
}

func mapMedicineWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "medicine already exists")
	case db.IsCheckViolation(err):
		return apperr.Wrap(apperr.KindValidation, err, "unit_price and stock_quantity must not be negative")
	}
	return err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicine (id, name, generic_name, description, unit_price, stock_quantity, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		m.ID, m.Name, m.GenericName, m.Description, m.UnitPrice, m.StockQuantity, m.IsActive,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return mapMedicineWriteErr(err)
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return r.scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicine SET name=$2, generic_name=$3, description=$4, unit_price=$5,
			stock_quantity=$6, is_active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.Name, m.GenericName, m.Description, m.UnitPrice, m.StockQuantity, m.IsActive,
	).Scan(&m.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("medicine not found")
	}
	return mapMedicineWriteErr(err)
}

func (r *medicineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medicine WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine not found")
	}
	return nil
}

func (r *medicineRepoPG) List(ctx context.Context, q string, limit, offset int) ([]*Medicine, int, error) {
	where := ""
	var args []interface{}
	if q != "" {
		where = ` WHERE name ILIKE $1 OR generic_name ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicine`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + medicineCols + ` FROM medicine` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Medicine{}
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) LockForSale(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicineCols+` FROM medicine
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]*Medicine, len(ids))
	for rows.Next() {
		m, err := r.scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medicine SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2`, id, qty)
	if err != nil {
		return mapMedicineWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Validation("not enough stock")
	}
	return nil
}

// =========== Sale Repository ===========

type saleRepoPG struct{ pool *pgxpool.Pool }

func NewSaleRepoPG(pool *pgxpool.Pool) SaleRepository { return &saleRepoPG{pool: pool} }

func (r *saleRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const saleCols = `s.id, s.patient_id, p.patient_code, p.full_name, s.doctor_id,
	NULLIF(TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')), ''),
	s.consultation_id, s.created_by, s.status, s.total_amount, s.created_at`

const saleFrom = ` FROM pharmacy_sale s
	JOIN patient p ON p.id = s.patient_id
	LEFT JOIN staff_user u ON u.id = s.doctor_id`

func (r *saleRepoPG) scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.PatientID, &s.PatientCode, &s.PatientName, &s.DoctorID, &s.DoctorName,
		&s.ConsultationID, &s.CreatedBy, &s.Status, &s.TotalAmount, &s.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("sale not found")
	}
	return &s, err
}

func (r *saleRepoPG) Create(ctx context.Context, s *Sale) error {
	s.ID = uuid.New()
	s.Status = SalePending
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacy_sale (id, patient_id, doctor_id, consultation_id, created_by, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		s.ID, s.PatientID, s.DoctorID, s.ConsultationID, s.CreatedBy, s.Status,
	).Scan(&s.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindNotFound, err, "patient or consultation not found")
	}
	return err
}

func (r *saleRepoPG) AddItem(ctx context.Context, it *SaleItem) error {
	it.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO pharmacy_sale_item (id, sale_id, medicine_id, medicine_name, quantity, unit_price, subtotal)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		it.ID, it.SaleID, it.MedicineID, it.MedicineName, it.Quantity, it.UnitPrice, it.Subtotal)
	return err
}

func (r *saleRepoPG) MarkDispensed(ctx context.Context, id uuid.UUID, total float64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE pharmacy_sale SET status = 'DISPENSED', total_amount = $2
		WHERE id = $1 AND status = 'PENDING'`, id, total)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "prescription already dispensed")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sale not found")
	}
	return nil
}

func (r *saleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Sale, error) {
	s, err := r.scanSale(r.conn(ctx).QueryRow(ctx, `SELECT `+saleCols+saleFrom+` WHERE s.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, []*Sale{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *saleRepoPG) DispensedFor(ctx context.Context, consultationID uuid.UUID) (*Sale, error) {
	s, err := r.scanSale(r.conn(ctx).QueryRow(ctx, `SELECT `+saleCols+saleFrom+`
		WHERE s.consultation_id = $1 AND s.status = 'DISPENSED'`, consultationID))
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, []*Sale{s}); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *saleRepoPG) List(ctx context.Context, q string, limit, offset int) ([]*Sale, int, error) {
	where := ` WHERE s.status = 'DISPENSED'`
	args := []interface{}{}
	if q != "" {
		where += ` AND p.full_name ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+saleFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + saleCols + saleFrom + where +
		fmt.Sprintf(` ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items := []*Sale{}
	for rows.Next() {
		s, err := r.scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, r.attach(ctx, items)
}

func (r *saleRepoPG) attach(ctx context.Context, sales []*Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(sales))
	byID := make(map[uuid.UUID]*Sale, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
		s.Items = []SaleItem{}
		byID[s.ID] = s
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, sale_id, medicine_id, medicine_name, quantity, unit_price, subtotal
		FROM pharmacy_sale_item WHERE sale_id = ANY($1) ORDER BY medicine_name`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.MedicineID, &it.MedicineName,
			&it.Quantity, &it.UnitPrice, &it.Subtotal); err != nil {
			return err
		}
		byID[it.SaleID].Items = append(byID[it.SaleID].Items, it)
	}
	return rows.Err()
}

func (r *saleRepoPG) ActivePrescriptions(ctx context.Context, limit, offset int) ([]uuid.UUID, int, error) {
	const active = ` FROM consultation c
		WHERE EXISTS (SELECT 1 FROM prescription_item pi WHERE pi.consultation_id = c.id)
		  AND NOT EXISTS (SELECT 1 FROM pharmacy_sale s
		                  WHERE s.consultation_id = c.id AND s.status = 'DISPENSED')`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+active).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT c.id`+active+`
		ORDER BY c.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, 0, err
		}
		ids = append(ids, id)
	}
	return ids, total, rows.Err()
}
