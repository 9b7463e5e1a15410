package scheduling

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

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, p.patient_code, p.full_name, a.doctor_id,
	TRIM(u.first_name || ' ' || u.last_name), a.department_id, d.name,
	a.token_number, a.token_seq, a.status, a.created_by, a.created_at, a.updated_at`

const apptFrom = ` FROM appointment a
	JOIN patient p ON p.id = a.patient_id
	JOIN staff_user u ON u.id = a.doctor_id
	JOIN department d ON d.id = a.department_id`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientCode, &a.PatientName, &a.DoctorID,
		&a.DoctorName, &a.DepartmentID, &a.DepartmentName,
		&a.TokenNumber, &a.TokenSeq, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, department_id, token_number,
			token_seq, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.DepartmentID, a.TokenNumber, a.TokenSeq, a.Status, a.CreatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "token already issued")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "patient, doctor or department not found")
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+apptFrom+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+apptFrom+` WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET doctor_id=$2, department_id=$3, status=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.DoctorID, a.DepartmentID, a.Status).Scan(&a.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("appointment not found")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "doctor or department not found")
	}
	return err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "appointment has a consultation, bill or lab request")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment not found")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	var where []string
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.DoctorID != nil {
		where = append(where, fmt.Sprintf("a.doctor_id = $%d", idx))
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("a.patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + apptFrom + clause +
		fmt.Sprintf(` ORDER BY a.token_seq DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ActiveForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+apptFrom+`
		WHERE a.doctor_id = $1 AND a.status IN ('PENDING','IN_PROGRESS')
		ORDER BY a.token_seq ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Directory ===========

type directoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG checks references against the patient, staff_user and
// department tables.
func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (d *directoryPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, d.pool) }

func (d *directoryPG) exists(ctx context.Context, query string, id uuid.UUID, notFound string) error {
	var ok bool
	if err := d.conn(ctx).QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("%s", notFound)
	}
	return nil
}

func (d *directoryPG) CheckPatient(ctx context.Context, id uuid.UUID) error {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE id = $1)`, id, "patient not found")
}

func (d *directoryPG) CheckDoctor(ctx context.Context, id uuid.UUID) error {
	return d.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM staff_user WHERE id = $1 AND role = 'DOCTOR' AND is_active)`,
		id, "doctor not found")
}

func (d *directoryPG) CheckDepartment(ctx context.Context, id uuid.UUID) error {
	return d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM department WHERE id = $1)`, id, "department not found")
}
