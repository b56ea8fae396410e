package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type analyticsRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &analyticsRepoPG{pool: pool}
}

func (r *analyticsRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *analyticsRepoPG) Overview(ctx context.Context, w CountWindow) (*Overview, error) {
	var o Overview
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM donors),
			(SELECT COUNT(*) FROM patients),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'Available'),
			COUNT(*) FILTER (WHERE status = 'Expired'),
			COUNT(*) FILTER (WHERE status = 'Issued'),
			COUNT(*) FILTER (WHERE status = 'Available' AND expiry_date BETWEEN $1 AND $2),
			COUNT(*) FILTER (WHERE donation_date >= $3)
		FROM blood_units`,
		w.Today, w.NearExpiryEnd, w.RecentSince,
	).Scan(&o.Donors, &o.Patients, &o.TotalBloodUnits, &o.AvailableBloodUnits,
		&o.ExpiredBloodUnits, &o.IssuedBloodUnits, &o.NearExpiryUnits, &o.RecentDonations)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}
	return &o, nil
}

func (r *analyticsRepoPG) TopDonors(ctx context.Context, limit int) ([]TopDonor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.name, d.blood_group, COUNT(bu.id) AS donations
		FROM donors d
		LEFT JOIN blood_units bu ON bu.donor_id = d.id
		GROUP BY d.id
		ORDER BY donations DESC, d.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top donors: %w", err)
	}
	defer rows.Close()
	var out []TopDonor
	for rows.Next() {
		var t TopDonor
		if err := rows.Scan(&t.DonorID, &t.Name, &t.BloodGroup, &t.Donations); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *analyticsRepoPG) CountDonors(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM donors`).Scan(&n)
	return n, err
}
