package staff

import "context"

// Repository returns ErrDuplicate from Create and Update when another
// member already has the same name and role.
type Repository interface {
	Create(ctx context.Context, s *Staff) error
	GetByID(ctx context.Context, id string) (*Staff, error)
	// List orders by role, then name.
	List(ctx context.Context) ([]*Staff, error)
	Update(ctx context.Context, s *Staff) error
	Delete(ctx context.Context, id string) error
}
