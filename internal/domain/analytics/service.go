// Package analytics serves the dashboard, the public health summary and the
// donor and inventory exports.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/bloodunit"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/platform/reporting"
)

// InventorySource is the part of the blood-unit service analytics reads.
type InventorySource interface {
	GetInventory(ctx context.Context) ([]bloodunit.InventoryRow, error)
	Today() time.Time
}

type DonorLister interface {
	ListDonors(ctx context.Context) ([]*donor.Donor, error)
}

type Service struct {
	repo           Repository
	inventory      InventorySource
	donors         DonorLister
	nearExpiryDays int
	logger         zerolog.Logger
	now            func() time.Time
}

func NewService(repo Repository, inventory InventorySource, donors DonorLister, nearExpiryDays int, logger zerolog.Logger) *Service {
	if nearExpiryDays <= 0 {
		nearExpiryDays = bloodunit.DefaultNearExpiryDays
	}
	return &Service{
		repo:           repo,
		inventory:      inventory,
		donors:         donors,
		nearExpiryDays: nearExpiryDays,
		logger:         logger.With().Str("component", "analytics").Logger(),
		now:            time.Now,
	}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	today := s.inventory.Today()
	overview, err := s.repo.Overview(ctx, CountWindow{
		Today:         today,
		NearExpiryEnd: today.AddDate(0, 0, s.nearExpiryDays),
		RecentSince:   today.AddDate(0, 0, -RecentDonationDays),
	})
	if err != nil {
		return nil, err
	}
	inv, err := s.inventory.GetInventory(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range inv {
		overview.TotalInventory += row.TotalQuantity
	}
	top, err := s.repo.TopDonors(ctx, TopDonorLimit)
	if err != nil {
		return nil, err
	}
	if top == nil {
		top = []TopDonor{}
	}
	return &Dashboard{
		Overview:       *overview,
		BloodInventory: inv,
		TopDonors:      top,
		LastUpdated:    s.now().UTC(),
	}, nil
}

func (s *Service) CountDonors(ctx context.Context) (int, error) {
	return s.repo.CountDonors(ctx)
}

// DonorTable lists every donor in id order.
func (s *Service) DonorTable(ctx context.Context) (reporting.Table, error) {
	donors, err := s.donors.ListDonors(ctx)
	if err != nil {
		return reporting.Table{}, fmt.Errorf("list donors: %w", err)
	}
	sort.Slice(donors, func(i, j int) bool { return donors[i].ID < donors[j].ID })

	t := reporting.Table{
		Title:   "Donors",
		Sheet:   "Donors",
		Headers: []string{"Donor ID", "Name", "Age", "Gender", "Contact", "Blood Group", "Address", "Medical History"},
		Widths:  []float64{10, 24, 8, 10, 16, 12, 32, 40},
	}
	for _, d := range donors {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(d.ID), d.Name, strconv.Itoa(d.Age), d.Gender, d.Contact,
			string(d.BloodGroup), d.Address, d.MedicalHistory,
		})
	}
	return t, nil
}

// InventoryTable has one row per blood group in display order.
func (s *Service) InventoryTable(ctx context.Context) (reporting.Table, error) {
	inv, err := s.inventory.GetInventory(ctx)
	if err != nil {
		return reporting.Table{}, err
	}
	t := reporting.Table{
		Title:   "Blood Inventory Report",
		Sheet:   "Inventory",
		Headers: []string{"Blood Group", "Available Units", "Last Updated"},
		Widths:  []float64{14, 16, 22},
	}
	for _, row := range inv {
		updated := ""
		if !row.UpdatedAt.IsZero() {
			updated = row.UpdatedAt.UTC().Format(time.RFC3339)
		}
		t.Rows = append(t.Rows, []string{string(row.BloodGroup), strconv.Itoa(row.TotalQuantity), updated})
	}
	return t, nil
}

// InventoryPDF renders "<group>: <n> units" lines under a dated title.
func (s *Service) InventoryPDF(ctx context.Context) ([]byte, error) {
	inv, err := s.inventory.GetInventory(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(inv))
	for _, row := range inv {
		lines = append(lines, fmt.Sprintf("%s: %d units", row.BloodGroup, row.TotalQuantity))
	}
	return reporting.SummaryPDF("Blood Inventory Report", s.now(), lines)
}

// Now is the service clock, used for export filenames.
func (s *Service) Now() time.Time { return s.now() }
