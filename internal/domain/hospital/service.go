package hospital

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

// ErrHasPatients is returned when a hospital still has patients on record.
var ErrHasPatients = apperr.Conflict("Cannot delete hospital. There are patients associated with this hospital.")

type Service struct {
	repo   Repository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "hospital").Logger()}
}

func (s *Service) CreateHospital(ctx context.Context, in Input) (*Hospital, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	h := &Hospital{Name: in.Name, Location: in.Location}
	if err := s.repo.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create hospital: %w", err)
	}
	s.logger.Info().Int("hospital_id", h.ID).Str("name", h.Name).Msg("hospital created")
	return h, nil
}

func (s *Service) GetHospital(ctx context.Context, id int) (*Hospital, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListHospitals(ctx context.Context) ([]*Hospital, error) {
	return s.repo.List(ctx)
}

func (s *Service) UpdateHospital(ctx context.Context, id int, in Input) (*Hospital, error) {
	in, err := in.validate()
	if err != nil {
		return nil, err
	}
	h := &Hospital{ID: id, Name: in.Name, Location: in.Location}
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHospital refuses while any patient references the hospital. The
// check and the delete share a transaction and the hospital row stays
// locked in between.
func (s *Service) DeleteHospital(ctx context.Context, id int) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := s.repo.CountPatients(ctx, id)
		if err != nil {
			return fmt.Errorf("count patients: %w", err)
		}
		if n > 0 {
			return ErrHasPatients
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int("hospital_id", id).Msg("hospital deleted")
	return nil
}
