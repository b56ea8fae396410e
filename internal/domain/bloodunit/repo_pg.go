package bloodunit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type unitRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const unitCols = `bu.id, bu.blood_group, bu.donation_date, bu.expiry_date, bu.status,
	bu.donor_id, bu.patient_id, bu.created_at, bu.updated_at`

const viewFrom = `
	FROM blood_units bu
	LEFT JOIN donors d ON bu.donor_id = d.id
	LEFT JOIN patients p ON bu.patient_id = p.id
	LEFT JOIN hospitals h ON p.hospital_id = h.id`

const viewCols = unitCols + `, d.name, p.name, h.name`

func scanUnit(row pgx.Row) (*BloodUnit, error) {
	var u BloodUnit
	err := row.Scan(&u.ID, &u.BloodGroup, &u.DonationDate, &u.ExpiryDate, &u.Status,
		&u.DonorID, &u.PatientID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanView(row pgx.Row) (*UnitView, error) {
	var v UnitView
	err := row.Scan(&v.ID, &v.BloodGroup, &v.DonationDate, &v.ExpiryDate, &v.Status,
		&v.DonorID, &v.PatientID, &v.CreatedAt, &v.UpdatedAt,
		&v.DonorName, &v.PatientName, &v.HospitalName)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func collectViews(rows pgx.Rows) ([]*UnitView, error) {
	defer rows.Close()
	var items []*UnitView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *unitRepoPG) Create(ctx context.Context, u *BloodUnit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_units (id, blood_group, donation_date, expiry_date, status, donor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		u.ID, u.BloodGroup, u.DonationDate, u.ExpiryDate, u.Status, u.DonorID,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return db.Classify(err, "blood unit")
}

func (r *unitRepoPG) GetByID(ctx context.Context, id string) (*BloodUnit, error) {
	u, err := scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitCols+` FROM blood_units bu WHERE bu.id = $1`, id))
	return u, db.Classify(err, "blood unit")
}

func (r *unitRepoPG) GetForUpdate(ctx context.Context, id string) (*BloodUnit, error) {
	u, err := scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitCols+` FROM blood_units bu WHERE bu.id = $1 FOR UPDATE`, id))
	return u, db.Classify(err, "blood unit")
}

func (r *unitRepoPG) Update(ctx context.Context, u *BloodUnit) (bool, error) {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE blood_units
		SET blood_group = $2, donation_date = $3, expiry_date = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'Available'
		RETURNING updated_at`,
		u.ID, u.BloodGroup, u.DonationDate, u.ExpiryDate,
	).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.Classify(err, "blood unit")
	}
	return true, nil
}

func (r *unitRepoPG) MarkIssued(ctx context.Context, id, patientID string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE blood_units SET status = 'Issued', patient_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'Available'`, id, patientID)
	if err != nil {
		return false, db.Classify(err, "blood unit")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *unitRepoPG) ExpireBefore(ctx context.Context, day time.Time) ([]*BloodUnit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE blood_units bu SET status = 'Expired', updated_at = NOW()
		WHERE bu.status = 'Available' AND bu.expiry_date < $1
		RETURNING `+unitCols, day)
	if err != nil {
		return nil, fmt.Errorf("expire units: %w", err)
	}
	defer rows.Close()
	var units []*BloodUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *unitRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM blood_units WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "blood unit")
	}
	if tag.RowsAffected() == 0 {
		return db.Classify(pgx.ErrNoRows, "blood unit")
	}
	return nil
}

func (r *unitRepoPG) List(ctx context.Context) ([]*UnitView, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+viewCols+viewFrom+` ORDER BY bu.donation_date DESC, bu.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blood units: %w", err)
	}
	return collectViews(rows)
}

func (r *unitRepoPG) Filter(ctx context.Context, f Filter, limit, offset int) ([]*UnitView, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.BloodGroup != "" {
		add("bu.blood_group = $%d", string(f.BloodGroup))
	}
	if f.Status != "" {
		add("bu.status = $%d", string(f.Status))
	}
	if f.DonorName != "" {
		add("d.name ILIKE $%d", "%"+f.DonorName+"%")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+viewFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blood units: %w", err)
	}

	args = append(args, limit, offset)
	q := `SELECT ` + viewCols + viewFrom + clause +
		fmt.Sprintf(` ORDER BY bu.donation_date DESC, bu.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("filter blood units: %w", err)
	}
	items, err := collectViews(rows)
	return items, total, err
}

func (r *unitRepoPG) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*UnitView, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+viewCols+viewFrom+`
		WHERE bu.status = 'Available' AND bu.expiry_date BETWEEN $1 AND $2
		ORDER BY bu.expiry_date ASC, bu.id ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list near-expiry units: %w", err)
	}
	return collectViews(rows)
}

func (r *unitRepoPG) LockInventory(ctx context.Context, groups []bloodgroup.Group) error {
	if len(groups) == 0 {
		return nil
	}
	names := bloodgroup.Strings(groups)
	if _, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO blood_inventory (blood_group, total_quantity)
		SELECT g, 0 FROM UNNEST($1::text[]) AS g
		ON CONFLICT (blood_group) DO NOTHING`, names); err != nil {
		return fmt.Errorf("ensure inventory rows: %w", err)
	}
	if _, err := r.conn(ctx).Exec(ctx, `
		SELECT blood_group FROM blood_inventory
		WHERE blood_group = ANY($1::text[])
		ORDER BY blood_group
		FOR UPDATE`, names); err != nil {
		return fmt.Errorf("lock inventory: %w", err)
	}
	return nil
}

func (r *unitRepoPG) RecomputeInventory(ctx context.Context, groups []bloodgroup.Group) ([]InventoryRow, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		INSERT INTO blood_inventory (blood_group, total_quantity, updated_at)
		SELECT g, (SELECT COUNT(*) FROM blood_units bu WHERE bu.blood_group = g AND bu.status = 'Available'), NOW()
		FROM UNNEST($1::text[]) AS g
		ON CONFLICT (blood_group) DO UPDATE
		SET total_quantity = EXCLUDED.total_quantity, updated_at = EXCLUDED.updated_at
		RETURNING blood_group, total_quantity, updated_at`, bloodgroup.Strings(groups))
	if err != nil {
		return nil, fmt.Errorf("recompute inventory: %w", err)
	}
	return collectInventory(rows)
}

func (r *unitRepoPG) Inventory(ctx context.Context) ([]InventoryRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT blood_group, total_quantity, updated_at FROM blood_inventory`)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return collectInventory(rows)
}

func collectInventory(rows pgx.Rows) ([]InventoryRow, error) {
	defer rows.Close()
	var out []InventoryRow
	for rows.Next() {
		var row InventoryRow
		if err := rows.Scan(&row.BloodGroup, &row.TotalQuantity, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *unitRepoPG) DonorExists(ctx context.Context, id int) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM donors WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *unitRepoPG) PatientExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
