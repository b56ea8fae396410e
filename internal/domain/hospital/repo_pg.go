package hospital

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &hospitalRepoPG{pool: pool}
}

func (r *hospitalRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const hospitalCols = `id, name, location, created_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	if err := row.Scan(&h.ID, &h.Name, &h.Location, &h.CreatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO hospitals (name, location) VALUES ($1, $2) RETURNING id, created_at`,
		h.Name, h.Location,
	).Scan(&h.ID, &h.CreatedAt)
	return db.Classify(err, "hospital")
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id int) (*Hospital, error) {
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx,
		`SELECT `+hospitalCols+` FROM hospitals WHERE id = $1`, id))
	return h, db.Classify(err, "hospital")
}

func (r *hospitalRepoPG) GetForUpdate(ctx context.Context, id int) (*Hospital, error) {
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx,
		`SELECT `+hospitalCols+` FROM hospitals WHERE id = $1 FOR UPDATE`, id))
	return h, db.Classify(err, "hospital")
}

func (r *hospitalRepoPG) List(ctx context.Context) ([]*Hospital, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hospitalCols+` FROM hospitals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Hospital
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (r *hospitalRepoPG) Update(ctx context.Context, h *Hospital) error {
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE hospitals SET name = $1, location = $2 WHERE id = $3 RETURNING created_at`,
		h.Name, h.Location, h.ID,
	).Scan(&h.CreatedAt)
	return db.Classify(err, "hospital")
}

func (r *hospitalRepoPG) Delete(ctx context.Context, id int) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospitals WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "hospital")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("hospital")
	}
	return nil
}

func (r *hospitalRepoPG) CountPatients(ctx context.Context, id int) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE hospital_id = $1`, id).Scan(&n)
	return n, err
}
