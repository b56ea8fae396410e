package staff

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

var ErrDuplicate = apperr.Conflict("Staff member with this name and role already exists")

type Service struct {
	repo   Repository
	tx     db.TxRunner
	seq    db.Sequencer
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, seq db.Sequencer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, seq: seq, logger: logger.With().Str("component", "staff").Logger()}
}

func (s *Service) CreateStaff(ctx context.Context, in Input) (*Staff, error) {
	st, err := in.toStaff()
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.seq.Next(ctx, SequenceScope)
		if err != nil {
			return err
		}
		st.ID = FormatID(n)
		return s.repo.Create(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("staff_id", st.ID).Str("role", string(st.Role)).Msg("staff member created")
	return st, nil
}

func (s *Service) GetStaff(ctx context.Context, id string) (*Staff, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListStaff(ctx context.Context) ([]*Staff, error) {
	return s.repo.List(ctx)
}

func (s *Service) UpdateStaff(ctx context.Context, id string, in Input) (*Staff, error) {
	st, err := in.toStaff()
	if err != nil {
		return nil, err
	}
	st.ID = id
	if err := s.repo.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("update staff %s: %w", id, err)
	}
	return st, nil
}

func (s *Service) DeleteStaff(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
