package patient

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientSelect = `
	SELECT p.id, p.name, p.blood_group, p.gender, p.contact, p.hospital_id, h.name, p.created_at
	FROM patients p
	LEFT JOIN hospitals h ON p.hospital_id = h.id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.BloodGroup, &p.Gender, &p.Contact, &p.HospitalID,
		&p.HospitalName, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, blood_group, gender, contact, hospital_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.Name, p.BloodGroup, p.Gender, p.Contact, p.HospitalID,
	).Scan(&p.CreatedAt)
	return db.Classify(err, "patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.id = $1`, id))
	return p, db.Classify(err, "patient")
}

func (r *patientRepoPG) GetForUpdate(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, patientSelect+` WHERE p.id = $1 FOR UPDATE OF p`, id))
	return p, db.Classify(err, "patient")
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, patientSelect+` ORDER BY p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET name = $1, blood_group = $2, gender = $3, contact = $4, hospital_id = $5
		WHERE id = $6
		RETURNING created_at`,
		p.Name, p.BloodGroup, p.Gender, p.Contact, p.HospitalID, p.ID,
	).Scan(&p.CreatedAt)
	return db.Classify(err, "patient")
}

func (r *patientRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) HospitalExists(ctx context.Context, id int) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hospitals WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *patientRepoPG) CountIssuedUnits(ctx context.Context, id string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_units WHERE patient_id = $1 AND status = 'Issued'`, id).Scan(&n)
	return n, err
}
