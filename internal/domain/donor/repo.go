package donor

import "context"

type Repository interface {
	Create(ctx context.Context, d *Donor) error
	GetByID(ctx context.Context, id int) (*Donor, error)
	GetForUpdate(ctx context.Context, id int) (*Donor, error)
	List(ctx context.Context) ([]*Donor, error)
	// Search returns one page of matches, newest first, and the total
	// number of matches.
	Search(ctx context.Context, q SearchQuery, limit, offset int) ([]*Donor, int, error)
	Update(ctx context.Context, d *Donor) error
	Delete(ctx context.Context, id int) error
	CountUnits(ctx context.Context, id int) (int, error)
}
