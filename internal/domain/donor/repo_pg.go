package donor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type donorRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &donorRepoPG{pool: pool}
}

func (r *donorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const donorCols = `id, name, age, gender, contact, address, blood_group, medical_history, created_at`

func scanDonor(row pgx.Row) (*Donor, error) {
	var d Donor
	err := row.Scan(&d.ID, &d.Name, &d.Age, &d.Gender, &d.Contact, &d.Address,
		&d.BloodGroup, &d.MedicalHistory, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collect(rows pgx.Rows) ([]*Donor, error) {
	defer rows.Close()
	var items []*Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *donorRepoPG) Create(ctx context.Context, d *Donor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO donors (name, age, gender, contact, address, blood_group, medical_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		d.Name, d.Age, d.Gender, d.Contact, d.Address, d.BloodGroup, d.MedicalHistory,
	).Scan(&d.ID, &d.CreatedAt)
	return db.Classify(err, "donor")
}

func (r *donorRepoPG) GetByID(ctx context.Context, id int) (*Donor, error) {
	d, err := scanDonor(r.conn(ctx).QueryRow(ctx, `SELECT `+donorCols+` FROM donors WHERE id = $1`, id))
	return d, db.Classify(err, "donor")
}

func (r *donorRepoPG) GetForUpdate(ctx context.Context, id int) (*Donor, error) {
	d, err := scanDonor(r.conn(ctx).QueryRow(ctx, `SELECT `+donorCols+` FROM donors WHERE id = $1 FOR UPDATE`, id))
	return d, db.Classify(err, "donor")
}

func (r *donorRepoPG) List(ctx context.Context) ([]*Donor, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+donorCols+` FROM donors ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *donorRepoPG) Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Donor, int, error) {
	var where []string
	var args []interface{}
	if q.Name != "" {
		args = append(args, "%"+q.Name+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if q.BloodGroup != "" {
		args = append(args, q.BloodGroup)
		where = append(where, fmt.Sprintf("blood_group = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donors`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM donors%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
			donorCols, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *donorRepoPG) Update(ctx context.Context, d *Donor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE donors SET name = $1, age = $2, gender = $3, contact = $4, address = $5,
			blood_group = $6, medical_history = $7
		WHERE id = $8
		RETURNING created_at`,
		d.Name, d.Age, d.Gender, d.Contact, d.Address, d.BloodGroup, d.MedicalHistory, d.ID,
	).Scan(&d.CreatedAt)
	return db.Classify(err, "donor")
}

func (r *donorRepoPG) Delete(ctx context.Context, id int) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM donors WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "donor")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("donor")
	}
	return nil
}

func (r *donorRepoPG) CountUnits(ctx context.Context, id int) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM blood_units WHERE donor_id = $1`, id).Scan(&n)
	return n, err
}
