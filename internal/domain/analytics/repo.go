package analytics

import "context"

type Repository interface {
	// Overview fills every count except TotalInventory.
	Overview(ctx context.Context, w CountWindow) (*Overview, error)
	// TopDonors ranks donors by recorded units, most first.
	TopDonors(ctx context.Context, limit int) ([]TopDonor, error)
	CountDonors(ctx context.Context) (int, error)
}
