package triage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Patient Repository ===========

type patientRepoPG struct{ db queryable }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{db: pool} }

const patientCols = `id, fhir_id, name, date_of_birth, gender, chief_complaint,
	arrival_time, priority, status, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FHIRID, &p.Name, &p.DateOfBirth, &p.Gender, &p.ChiefComplaint,
		&p.ArrivalTime, &p.Priority, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.db.QueryRow(ctx, `
		INSERT INTO triage_patient (id, fhir_id, name, date_of_birth, gender, chief_complaint,
			arrival_time, priority, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		p.ID, p.FHIRID, p.Name, p.DateOfBirth, p.Gender, p.ChiefComplaint,
		p.ArrivalTime, p.Priority, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM triage_patient WHERE id = $1`, id))
}

func (r *patientRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `
		UPDATE triage_patient SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols, id, status))
}

func (r *patientRepoPG) UpdatePriority(ctx context.Context, id uuid.UUID, priority int) (*Patient, error) {
	return scanPatient(r.db.QueryRow(ctx, `
		UPDATE triage_patient SET priority = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols, id, priority))
}

func (r *patientRepoPG) Queue(ctx context.Context, status string, limit, offset int) ([]*Patient, int, error) {
	query := `SELECT ` + patientCols + ` FROM triage_patient WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM triage_patient WHERE 1=1`
	var args []interface{}
	idx := 1

	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		countQuery += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, status)
		idx++
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY priority ASC, arrival_time ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Vitals Repository ===========

type vitalsRepoPG struct{ db queryable }

func NewVitalsRepoPG(pool *pgxpool.Pool) VitalsRepository { return &vitalsRepoPG{db: pool} }

const vitalsCols = `id, patient_id, temperature, blood_pressure, heart_rate,
	respiratory_rate, oxygen_saturation, pain_level, recorded_at`

func scanVitals(row pgx.Row) (*Vitals, error) {
	var v Vitals
	err := row.Scan(&v.ID, &v.PatientID, &v.Temperature, &v.BloodPressure, &v.HeartRate,
		&v.RespiratoryRate, &v.OxygenSaturation, &v.PainLevel, &v.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vitalsRepoPG) Create(ctx context.Context, v *Vitals) error {
	v.ID = uuid.New()
	_, err := r.db.Exec(ctx, `
		INSERT INTO triage_vitals (id, patient_id, temperature, blood_pressure, heart_rate,
			respiratory_rate, oxygen_saturation, pain_level, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.PatientID, v.Temperature, v.BloodPressure, v.HeartRate,
		v.RespiratoryRate, v.OxygenSaturation, v.PainLevel, v.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert vitals: %w", err)
	}
	return nil
}

func (r *vitalsRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Vitals, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vitalsCols+` FROM triage_vitals WHERE patient_id = $1 ORDER BY recorded_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list vitals: %w", err)
	}
	defer rows.Close()
	var items []*Vitals
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *vitalsRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Vitals, error) {
	return scanVitals(r.db.QueryRow(ctx, `SELECT `+vitalsCols+` FROM triage_vitals WHERE patient_id = $1 ORDER BY recorded_at DESC LIMIT 1`, patientID))
}
