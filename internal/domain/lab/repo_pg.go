package lab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/db"
)

// =========== Test Type Repository ===========

type testTypeRepoPG struct{ pool *pgxpool.Pool }

func NewTestTypeRepoPG(pool *pgxpool.Pool) TestTypeRepository { return &testTypeRepoPG{pool: pool} }

func (r *testTypeRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const testTypeCols = `id, name, price, created_at, updated_at`

func (r *testTypeRepoPG) scanTestType(row pgx.Row) (*TestType, error) {
	var t TestType
	err := row.Scan(&t.ID, &t.Name, &t.Price, &t.CreatedAt, &t.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("lab test type not found")
	}
	return &t, err
}

func (r *testTypeRepoPG) Create(ctx context.Context, t *TestType) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_test_type (id, name, price) VALUES ($1,$2,$3)
		RETURNING created_at, updated_at`, t.ID, t.Name, t.Price).Scan(&t.CreatedAt, &t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "lab test type already exists")
	}
	return err
}

func (r *testTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TestType, error) {
	return r.scanTestType(r.conn(ctx).QueryRow(ctx, `SELECT `+testTypeCols+` FROM lab_test_type WHERE id = $1`, id))
}

// GetByName matches the exact catalogue name.
func (r *testTypeRepoPG) GetByName(ctx context.Context, name string) (*TestType, error) {
	return r.scanTestType(r.conn(ctx).QueryRow(ctx, `SELECT `+testTypeCols+` FROM lab_test_type WHERE name = $1`, name))
}

func (r *testTypeRepoPG) Update(ctx context.Context, t *TestType) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE lab_test_type SET name=$2, price=$3, updated_at=NOW() WHERE id = $1
		RETURNING updated_at`, t.ID, t.Name, t.Price).Scan(&t.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("lab test type not found")
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "lab test type already exists")
	}
	return err
}

func (r *testTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_test_type WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lab test type not found")
	}
	return nil
}

func (r *testTypeRepoPG) List(ctx context.Context) ([]*TestType, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+testTypeCols+` FROM lab_test_type ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*TestType{}
	for rows.Next() {
		t, err := r.scanTestType(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository { return &requestRepoPG{pool: pool} }

func (r *requestRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const requestCols = `r.id, r.appointment_id, a.token_number, r.doctor_id,
	TRIM(u.first_name || ' ' || u.last_name), r.patient_id, p.patient_code, p.full_name,
	r.test_type, r.remarks, r.status, r.requested_at, r.processed_at`

const requestFrom = ` FROM lab_test_request r
	JOIN appointment a ON a.id = r.appointment_id
	JOIN staff_user u ON u.id = r.doctor_id
	JOIN patient p ON p.id = r.patient_id`

func (r *requestRepoPG) scanRequest(row pgx.Row) (*Request, error) {
	var q Request
	err := row.Scan(&q.ID, &q.AppointmentID, &q.TokenNumber, &q.DoctorID, &q.DoctorName,
		&q.PatientID, &q.PatientCode, &q.PatientName, &q.TestType, &q.Remarks, &q.Status,
		&q.RequestedAt, &q.ProcessedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("lab request not found")
	}
	return &q, err
}

func mapRequestWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "lab request already exists for this appointment")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "appointment not found")
	}
	return err
}

func (r *requestRepoPG) Create(ctx context.Context, q *Request) error {
	q.ID = uuid.New()
	if q.Status == "" {
		q.Status = StatusPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_test_request (id, appointment_id, doctor_id, patient_id, test_type, remarks, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING requested_at`,
		q.ID, q.AppointmentID, q.DoctorID, q.PatientID, q.TestType, q.Remarks, q.Status,
	).Scan(&q.RequestedAt)
	return mapRequestWriteErr(err)
}

func (r *requestRepoPG) CreateIfAbsent(ctx context.Context, q *Request) (bool, error) {
	q.ID = uuid.New()
	if q.Status == "" {
		q.Status = StatusPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_test_request (id, appointment_id, doctor_id, patient_id, test_type, remarks, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (appointment_id) DO NOTHING
		RETURNING requested_at`,
		q.ID, q.AppointmentID, q.DoctorID, q.PatientID, q.TestType, q.Remarks, q.Status,
	).Scan(&q.RequestedAt)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, mapRequestWriteErr(err)
	}
	return true, nil
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+requestFrom+` WHERE r.id = $1`, id))
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+requestFrom+` WHERE r.id = $1 FOR UPDATE OF r`, id))
}

func (r *requestRepoPG) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_test_request SET status = 'COMPLETED', processed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lab request not found")
	}
	return nil
}

func (r *requestRepoPG) list(ctx context.Context, where string, args []interface{}, order string, limit, offset int) ([]*Request, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_test_request r`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + requestCols + requestFrom + where + ` ORDER BY ` + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Request{}
	for rows.Next() {
		q, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, rows.Err()
}

// ListByStatus orders pending work oldest first and finished work newest first.
func (r *requestRepoPG) ListByStatus(ctx context.Context, status RequestStatus, limit, offset int) ([]*Request, int, error) {
	order := `r.requested_at ASC`
	if status == StatusCompleted {
		order = `r.processed_at DESC`
	}
	return r.list(ctx, ` WHERE r.status = $1`, []interface{}{status}, order, limit, offset)
}

func (r *requestRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status RequestStatus, limit, offset int) ([]*Request, int, error) {
	if status == "" {
		return r.list(ctx, ` WHERE r.doctor_id = $1`, []interface{}{doctorID}, `r.requested_at DESC`, limit, offset)
	}
	return r.list(ctx, ` WHERE r.doctor_id = $1 AND r.status = $2`, []interface{}{doctorID, status},
		`r.requested_at DESC`, limit, offset)
}

// =========== Result Repository ===========

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository { return &resultRepoPG{pool: pool} }

func (r *resultRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const resultCols = `id, lab_request_id, technician_id, result_details, result_file, bill_id, created_at`

func (r *resultRepoPG) scanResult(row pgx.Row) (*Result, error) {
	var res Result
	err := row.Scan(&res.ID, &res.LabRequestID, &res.TechnicianID, &res.ResultDetails,
		&res.ResultFile, &res.BillID, &res.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("lab result not found")
	}
	return &res, err
}

func (r *resultRepoPG) Create(ctx context.Context, res *Result) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lab_test_result (id, lab_request_id, technician_id, result_details, result_file)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		res.ID, res.LabRequestID, res.TechnicianID, res.ResultDetails, res.ResultFile,
	).Scan(&res.CreatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "invalid or already processed request")
	}
	return err
}

func (r *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+resultCols+` FROM lab_test_result WHERE id = $1`, id))
}

func (r *resultRepoPG) GetByRequest(ctx context.Context, requestID uuid.UUID) (*Result, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx,
		`SELECT `+resultCols+` FROM lab_test_result WHERE lab_request_id = $1`, requestID))
}

func (r *resultRepoPG) LinkBill(ctx context.Context, resultID, billID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_test_result SET bill_id = $2 WHERE id = $1 AND bill_id IS NULL`, resultID, billID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("lab result already billed")
	}
	return nil
}
