package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `u.id, u.username, u.password_hash, u.first_name, u.last_name, u.role,
	u.department_id, d.name, u.email, u.contact_number, u.is_active, u.created_at, u.updated_at`

const userFrom = ` FROM staff_user u LEFT JOIN department d ON d.id = u.department_id`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.DepartmentID, &u.DepartmentName, &u.Email, &u.ContactNumber, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("employee not found")
	}
	return &u, err
}

func mapUserWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "username already exists")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "department not found")
	}
	return err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staff_user (id, username, password_hash, first_name, last_name, role,
			department_id, email, contact_number, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.DepartmentID, u.Email, u.ContactNumber, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapUserWriteErr(err)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE u.id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE u.username = $1`, username))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE staff_user SET first_name=$2, last_name=$3, department_id=$4, email=$5,
			contact_number=$6, is_active=$7, password_hash=$8, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.DepartmentID, u.Email, u.ContactNumber, u.IsActive, u.PasswordHash)
	if err != nil {
		return mapUserWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("employee not found")
	}
	return nil
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM staff_user WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "employee has clinical records; deactivate the account instead")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("employee not found")
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, role auth.Role, limit, offset int) ([]*User, int, error) {
	where := ` WHERE u.role <> 'ADMIN'`
	var args []interface{}
	if role != "" {
		where = ` WHERE u.role = $1`
		args = append(args, role)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_user u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userCols + userFrom + where +
		fmt.Sprintf(` ORDER BY u.username LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *userRepoPG) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+userFrom+`
		WHERE u.role = 'DOCTOR' AND u.department_id = $1 AND u.is_active
		ORDER BY u.first_name, u.last_name`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *userRepoPG) collect(rows pgx.Rows) ([]*User, error) {
	items := []*User{}
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// =========== Department Repository ===========

type departmentRepoPG struct{ pool *pgxpool.Pool }

func NewDepartmentRepoPG(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepoPG{pool: pool}
}

func (r *departmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const deptCols = `id, name, description, created_at, updated_at`

func (r *departmentRepoPG) scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("department not found")
	}
	return &d, err
}

func (r *departmentRepoPG) Create(ctx context.Context, d *Department) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO department (id, name, description) VALUES ($1,$2,$3)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Description).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "department already exists")
	}
	return err
}

func (r *departmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return r.scanDepartment(r.conn(ctx).QueryRow(ctx, `SELECT `+deptCols+` FROM department WHERE id = $1`, id))
}

func (r *departmentRepoPG) Update(ctx context.Context, d *Department) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE department SET name=$2, description=$3, updated_at=NOW() WHERE id = $1
		RETURNING updated_at`, d.ID, d.Name, d.Description).Scan(&d.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("department not found")
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "department already exists")
	}
	return err
}

func (r *departmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM department WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return apperr.Wrap(apperr.KindConflict, err, "department is still referenced by staff or appointments")
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("department not found")
	}
	return nil
}

func (r *departmentRepoPG) List(ctx context.Context) ([]*Department, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+deptCols+` FROM department ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Department{}
	for rows.Next() {
		d, err := r.scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
