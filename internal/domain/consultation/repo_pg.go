package consultation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/db"
)

// =========== Consultation Repository ===========

type consultationRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationRepoPG(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const consultationCols = `c.id, c.appointment_id, a.token_number, c.doctor_id,
	TRIM(u.first_name || ' ' || u.last_name), c.patient_id, p.patient_code, p.full_name,
	c.diagnosis, c.clinical_notes, c.refer_to_lab, c.created_at, c.updated_at`

const consultationFrom = ` FROM consultation c
	JOIN appointment a ON a.id = c.appointment_id
	JOIN staff_user u ON u.id = c.doctor_id
	JOIN patient p ON p.id = c.patient_id`

func (r *consultationRepoPG) scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.AppointmentID, &c.TokenNumber, &c.DoctorID, &c.DoctorName,
		&c.PatientID, &c.PatientCode, &c.PatientName,
		&c.Diagnosis, &c.ClinicalNotes, &c.ReferToLab, &c.CreatedAt, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("consultation not found")
	}
	return &c, err
}

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (id, appointment_id, doctor_id, patient_id, diagnosis,
			clinical_notes, refer_to_lab)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		c.ID, c.AppointmentID, c.DoctorID, c.PatientID, c.Diagnosis, c.ClinicalNotes, c.ReferToLab,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err):
		return apperr.Wrap(apperr.KindConflict, err, "consultation already exists")
	case db.IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.KindNotFound, err, "appointment not found")
	}
	return err
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := r.scanConsultation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationCols+consultationFrom+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, []*Consultation{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *consultationRepoPG) ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM consultation WHERE appointment_id = $1)`, appointmentID).Scan(&exists)
	return exists, err
}

func (r *consultationRepoPG) Update(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultation SET diagnosis=$2, clinical_notes=$3, refer_to_lab=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Diagnosis, c.ClinicalNotes, c.ReferToLab).Scan(&c.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("consultation not found")
	}
	return err
}

func (r *consultationRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consultationCols+consultationFrom+`
		WHERE c.doctor_id = $1
		ORDER BY c.created_at DESC LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(ctx, rows)
	return items, total, err
}

func (r *consultationRepoPG) ListForPatient(ctx context.Context, patientID, doctorID uuid.UUID) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consultationCols+consultationFrom+`
		WHERE c.patient_id = $1 AND c.doctor_id = $2
		ORDER BY c.created_at DESC`, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// collect drains rows before loading prescriptions; a pgx connection runs
// one query at a time.
func (r *consultationRepoPG) collect(ctx context.Context, rows pgx.Rows) ([]*Consultation, error) {
	items := []*Consultation{}
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, r.attach(ctx, items)
}

func (r *consultationRepoPG) attach(ctx context.Context, items []*Consultation) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(items))
	for i, c := range items {
		ids[i] = c.ID
	}
	byID, err := r.Prescriptions(ctx, ids)
	if err != nil {
		return err
	}
	for _, c := range items {
		c.Prescriptions = byID[c.ID]
		if c.Prescriptions == nil {
			c.Prescriptions = []PrescriptionItem{}
		}
	}
	return nil
}

func (r *consultationRepoPG) ReplacePrescriptions(ctx context.Context, consultationID uuid.UUID, items []PrescriptionItem) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM prescription_item WHERE consultation_id = $1`, consultationID); err != nil {
		return err
	}
	for i := range items {
		it := &items[i]
		it.ID = uuid.New()
		it.ConsultationID = consultationID
		_, err := q.Exec(ctx, `
			INSERT INTO prescription_item (id, consultation_id, medicine_name, quantity, dosage,
				frequency, duration, instructions, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, consultationID, it.MedicineName, it.Quantity, it.Dosage,
			it.Frequency, it.Duration, it.Instructions, i)
		if db.IsCheckViolation(err) {
			return apperr.Wrap(apperr.KindValidation, err, "invalid prescription item")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *consultationRepoPG) Prescriptions(ctx context.Context, consultationIDs []uuid.UUID) (map[uuid.UUID][]PrescriptionItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, medicine_name, quantity, dosage, frequency, duration, instructions
		FROM prescription_item
		WHERE consultation_id = ANY($1)
		ORDER BY consultation_id, position`, consultationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]PrescriptionItem, len(consultationIDs))
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.ConsultationID, &it.MedicineName, &it.Quantity, &it.Dosage,
			&it.Frequency, &it.Duration, &it.Instructions); err != nil {
			return nil, err
		}
		out[it.ConsultationID] = append(out[it.ConsultationID], it)
	}
	return out, rows.Err()
}

// =========== Patient Reader ===========

type patientReaderPG struct{ pool *pgxpool.Pool }

func NewPatientReaderPG(pool *pgxpool.Pool) PatientReader { return &patientReaderPG{pool: pool} }

func (r *patientReaderPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const summaryCols = `p.id, p.patient_code, p.full_name, p.age, p.gender, p.contact_number`

func scanSummary(row pgx.Row) (*PatientSummary, error) {
	var s PatientSummary
	err := row.Scan(&s.ID, &s.PatientCode, &s.FullName, &s.Age, &s.Gender, &s.ContactNumber)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient not found")
	}
	return &s, err
}

func (r *patientReaderPG) Summary(ctx context.Context, patientID uuid.UUID) (*PatientSummary, error) {
	return scanSummary(r.conn(ctx).QueryRow(ctx, `SELECT `+summaryCols+` FROM patient p WHERE p.id = $1`, patientID))
}

func (r *patientReaderPG) SeenBy(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientSummary, int, error) {
	const seen = ` FROM patient p WHERE EXISTS (
		SELECT 1 FROM appointment a
		WHERE a.patient_id = p.id AND a.doctor_id = $1 AND a.status = 'COMPLETED')`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+seen, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+summaryCols+seen+`
		ORDER BY p.full_name LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*PatientSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
