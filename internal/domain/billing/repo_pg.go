package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/db"
)

// =========== Consultation Bill Repository ===========

type consultationBillRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationBillRepoPG(pool *pgxpool.Pool) ConsultationBillRepository {
	return &consultationBillRepoPG{pool: pool}
}

func (r *consultationBillRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const cbCols = `cb.id, cb.appointment_id, a.token_number, a.patient_id, p.full_name,
	cb.consultation_fee, cb.created_by, cb.created_at`

const cbFrom = ` FROM consultation_bill cb
	JOIN appointment a ON a.id = cb.appointment_id
	JOIN patient p ON p.id = a.patient_id`

func (r *consultationBillRepoPG) scanBill(row pgx.Row) (*ConsultationBill, error) {
	var b ConsultationBill
	err := row.Scan(&b.ID, &b.AppointmentID, &b.TokenNumber, &b.PatientID, &b.PatientName,
		&b.ConsultationFee, &b.CreatedBy, &b.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("bill not found")
	}
	return &b, err
}

func (r *consultationBillRepoPG) Create(ctx context.Context, b *ConsultationBill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation_bill (id, appointment_id, consultation_fee, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		b.ID, b.AppointmentID, b.ConsultationFee, b.CreatedBy).Scan(&b.CreatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "consultation bill already exists for this appointment")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "appointment not found")
	}
	return err
}

func (r *consultationBillRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsultationBill, error) {
	return r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+cbCols+cbFrom+` WHERE cb.id = $1`, id))
}

func (r *consultationBillRepoPG) List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*ConsultationBill, int, error) {
	where := ""
	var args []interface{}
	if patientID != nil {
		where = ` WHERE a.patient_id = $1`
		args = append(args, *patientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+cbFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + cbCols + cbFrom + where +
		fmt.Sprintf(` ORDER BY cb.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*ConsultationBill{}
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// =========== Lab Bill Repository ===========

type labBillRepoPG struct{ pool *pgxpool.Pool }

func NewLabBillRepoPG(pool *pgxpool.Pool) LabBillRepository { return &labBillRepoPG{pool: pool} }

func (r *labBillRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *labBillRepoPG) Create(ctx context.Context, b *LabBill) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_bill (id, patient_id, amount, description, reference_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		b.ID, b.PatientID, b.Amount, b.Description, b.ReferenceID, b.CreatedBy).Scan(&b.CreatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "lab result already billed")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "patient not found")
	}
	return err
}

func (r *labBillRepoPG) List(ctx context.Context, limit, offset int) ([]*LabBill, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_bill`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT lb.id, lb.patient_id, p.full_name, lb.amount, lb.description, lb.reference_id,
			lb.created_by, lb.created_at
		FROM lab_bill lb JOIN patient p ON p.id = lb.patient_id
		ORDER BY lb.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*LabBill{}
	for rows.Next() {
		var b LabBill
		if err := rows.Scan(&b.ID, &b.PatientID, &b.PatientName, &b.Amount, &b.Description,
			&b.ReferenceID, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &b)
	}
	return items, total, rows.Err()
}

// =========== Ledger Repository ===========

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewLedgerRepoPG(pool *pgxpool.Pool) LedgerRepository { return &ledgerRepoPG{pool: pool} }

func (r *ledgerRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *ledgerRepoPG) List(ctx context.Context, f LedgerFilter, limit, offset int) ([]*LedgerEntry, int, error) {
	var where []string
	var args []interface{}
	idx := 1
	if f.Source != "" {
		where = append(where, fmt.Sprintf("l.source = $%d", idx))
		args = append(args, f.Source)
		idx++
	}
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("l.patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_ledger l`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT l.id, l.source, l.patient_id, p.patient_code, p.full_name, l.amount,
			l.description, l.reference_id, l.created_by, l.created_at
		FROM billing_ledger l JOIN patient p ON p.id = l.patient_id` + clause +
		fmt.Sprintf(` ORDER BY l.created_at DESC, l.id LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.PatientID, &e.PatientCode, &e.PatientName, &e.Amount,
			&e.Description, &e.ReferenceID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
