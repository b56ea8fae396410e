package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

var ErrHasIssuedUnits = apperr.Conflict("Cannot delete patient. Blood units have been issued to this patient.")

type Service struct {
	repo   Repository
	tx     db.TxRunner
	seq    db.Sequencer
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, seq db.Sequencer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, seq: seq, logger: logger.With().Str("component", "patient").Logger()}
}

func (s *Service) checkHospital(ctx context.Context, id int) error {
	ok, err := s.repo.HospitalExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check hospital: %w", err)
	}
	if !ok {
		return apperr.NotFound("hospital")
	}
	return nil
}

// CreatePatient assigns the next PAT id and inserts the patient in one
// transaction, so a failed insert does not consume an id.
func (s *Service) CreatePatient(ctx context.Context, in Input) (*Patient, error) {
	p, err := in.toPatient()
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkHospital(ctx, p.HospitalID); err != nil {
			return err
		}
		n, err := s.seq.Next(ctx, SequenceScope)
		if err != nil {
			return err
		}
		p.ID = FormatID(n)
		if err := s.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID).Int("hospital_id", p.HospitalID).Msg("patient created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	return s.repo.List(ctx)
}

func (s *Service) UpdatePatient(ctx context.Context, id string, in Input) (*Patient, error) {
	p, err := in.toPatient()
	if err != nil {
		return nil, err
	}
	p.ID = strings.TrimSpace(id)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkHospital(ctx, p.HospitalID); err != nil {
			return err
		}
		return s.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient refuses while any unit is Issued to the patient.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := s.repo.CountIssuedUnits(ctx, id)
		if err != nil {
			return fmt.Errorf("count issued units: %w", err)
		}
		if n > 0 {
			return ErrHasIssuedUnits
		}
		return s.repo.Delete(ctx, id)
	})
}
