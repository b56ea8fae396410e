package hospital

import "context"

type Repository interface {
	Create(ctx context.Context, h *Hospital) error
	GetByID(ctx context.Context, id int) (*Hospital, error)
	// GetForUpdate locks the hospital row until the transaction ends, which
	// blocks concurrent patient inserts that reference it.
	GetForUpdate(ctx context.Context, id int) (*Hospital, error)
	List(ctx context.Context) ([]*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	Delete(ctx context.Context, id int) error
	CountPatients(ctx context.Context, id int) (int, error)
}
