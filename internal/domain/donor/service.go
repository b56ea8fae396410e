package donor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

var ErrHasUnits = apperr.Conflict("Cannot delete donor. There are blood units recorded for this donor.")

type Service struct {
	repo   Repository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "donor").Logger()}
}

func (s *Service) CreateDonor(ctx context.Context, in Input) (*Donor, error) {
	d, err := in.toDonor()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create donor: %w", err)
	}
	s.logger.Info().Int("donor_id", d.ID).Str("blood_group", string(d.BloodGroup)).Msg("donor created")
	return d, nil
}

func (s *Service) GetDonor(ctx context.Context, id int) (*Donor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListDonors(ctx context.Context) ([]*Donor, error) {
	return s.repo.List(ctx)
}

func (s *Service) SearchDonors(ctx context.Context, q SearchQuery, limit, offset int) ([]*Donor, int, error) {
	if q.BloodGroup != "" && !q.BloodGroup.Valid() {
		return nil, 0, apperr.Validation("invalid blood group %q", q.BloodGroup)
	}
	return s.repo.Search(ctx, q, limit, offset)
}

func (s *Service) UpdateDonor(ctx context.Context, id int, in Input) (*Donor, error) {
	d, err := in.toDonor()
	if err != nil {
		return nil, err
	}
	d.ID = id
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDonor refuses while blood units reference the donor, so unit
// history keeps its provenance.
func (s *Service) DeleteDonor(ctx context.Context, id int) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := s.repo.CountUnits(ctx, id)
		if err != nil {
			return fmt.Errorf("count donor units: %w", err)
		}
		if n > 0 {
			return ErrHasUnits
		}
		return s.repo.Delete(ctx, id)
	})
}

// ParseGroupFilter parses an optional blood group query value.
func ParseGroupFilter(v string) (bloodgroup.Group, error) {
	if v == "" {
		return "", nil
	}
	g, err := bloodgroup.Parse(v)
	if err != nil {
		return "", apperr.Validation("invalid blood group %q", v)
	}
	return g, nil
}
