package patient

import "context"

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	GetForUpdate(ctx context.Context, id string) (*Patient, error)
	// List joins the hospital name, newest id first.
	List(ctx context.Context) ([]*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id string) error

	HospitalExists(ctx context.Context, id int) (bool, error)
	CountIssuedUnits(ctx context.Context, id string) (int, error)
}
