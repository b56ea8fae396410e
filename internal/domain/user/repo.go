package user

import "context"

type Repository interface {
	// Create returns ErrUsernameTaken when the username exists.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	Count(ctx context.Context) (int, error)
}
