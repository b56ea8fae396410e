package staff

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &staffRepoPG{pool: pool}
}

func (r *staffRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const staffCols = `id, name, role, created_at`

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	if err := row.Scan(&s.ID, &s.Name, &s.Role, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func classify(err error) error {
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return db.Classify(err, "staff member")
}

func (r *staffRepoPG) Create(ctx context.Context, s *Staff) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO staff (id, name, role) VALUES ($1, $2, $3) RETURNING created_at`,
		s.ID, s.Name, s.Role,
	).Scan(&s.CreatedAt)
	return classify(err)
}

func (r *staffRepoPG) GetByID(ctx context.Context, id string) (*Staff, error) {
	s, err := scanStaff(r.conn(ctx).QueryRow(ctx, `SELECT `+staffCols+` FROM staff WHERE id = $1`, id))
	return s, db.Classify(err, "staff member")
}

func (r *staffRepoPG) List(ctx context.Context) ([]*Staff, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+staffCols+` FROM staff ORDER BY role, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *staffRepoPG) Update(ctx context.Context, s *Staff) error {
	err := r.conn(ctx).QueryRow(ctx,
		`UPDATE staff SET name = $1, role = $2 WHERE id = $3 RETURNING created_at`,
		s.Name, s.Role, s.ID,
	).Scan(&s.CreatedAt)
	return classify(err)
}

func (r *staffRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "staff member")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff member")
	}
	return nil
}
