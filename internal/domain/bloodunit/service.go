package bloodunit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/events"
)

const (
	DefaultNearExpiryDays    = 7
	DefaultCriticalThreshold = 2
)

type Config struct {
	NearExpiryDays    int
	CriticalThreshold int
	// Location decides which calendar day "today" is. Defaults to time.Local.
	Location *time.Location
}

// Metrics receives lifecycle counts. *telemetry.Provider implements it.
type Metrics interface {
	UnitCreated(group string)
	UnitIssued(group string)
	UnitsExpired(group string, n int)
	SetInventory(group string, available int)
}

type nopMetrics struct{}

func (nopMetrics) UnitCreated(string)       {}
func (nopMetrics) UnitIssued(string)        {}
func (nopMetrics) UnitsExpired(string, int) {}
func (nopMetrics) SetInventory(string, int) {}

// Service owns the blood-unit lifecycle and keeps blood_inventory equal to
// the number of Available units per group. Every unit write and the
// matching inventory recompute run in one transaction.
type Service struct {
	repo      Repository
	tx        db.TxRunner
	seq       db.Sequencer
	cfg       Config
	logger    zerolog.Logger
	publisher events.Publisher
	metrics   Metrics
	now       func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, seq db.Sequencer, logger zerolog.Logger, cfg Config) *Service {
	if cfg.NearExpiryDays <= 0 {
		cfg.NearExpiryDays = DefaultNearExpiryDays
	}
	if cfg.CriticalThreshold < 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		seq:     seq,
		cfg:     cfg,
		logger:  logger.With().Str("component", "bloodunit").Logger(),
		metrics: nopMetrics{},
		now:     time.Now,
	}
}

func (s *Service) SetPublisher(p events.Publisher) { s.publisher = p }
func (s *Service) SetMetrics(m Metrics)            { s.metrics = m }
func (s *Service) SetClock(now func() time.Time)   { s.now = now }

// Today is the current calendar date as midnight UTC.
func (s *Service) Today() time.Time {
	return DateOf(s.now().In(s.cfg.Location))
}

type validatedInput struct {
	group    bloodgroup.Group
	donation time.Time
	expiry   time.Time
}

func validateInput(in Input) (validatedInput, error) {
	var v validatedInput
	g, err := bloodgroup.Parse(in.BloodGroup)
	if err != nil {
		return v, apperr.Validation("invalid blood group %q", in.BloodGroup)
	}
	donation, err := ParseDate("donation date", in.DonationDate)
	if err != nil {
		return v, err
	}
	expiry, err := ParseDate("expiry date", in.ExpiryDate)
	if err != nil {
		return v, err
	}
	if !expiry.After(donation) {
		return v, apperr.Validation("expiry date must be after donation date")
	}
	return validatedInput{group: g, donation: donation, expiry: expiry}, nil
}

// CreateUnit registers a new Available unit. The id counter, the insert
// and the inventory recompute commit together.
func (s *Service) CreateUnit(ctx context.Context, in Input) (*BloodUnit, error) {
	v, err := validateInput(in)
	if err != nil {
		return nil, err
	}
	if in.DonorID != nil && *in.DonorID <= 0 {
		return nil, apperr.Validation("invalid donor id %d", *in.DonorID)
	}

	year := s.Today().Year()
	u := &BloodUnit{
		BloodGroup:   v.group,
		DonationDate: v.donation,
		ExpiryDate:   v.expiry,
		Status:       StatusAvailable,
		DonorID:      in.DonorID,
	}

	var inv []InventoryRow
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockInventory(ctx, []bloodgroup.Group{u.BloodGroup}); err != nil {
			return err
		}
		if u.DonorID != nil {
			ok, err := s.repo.DonorExists(ctx, *u.DonorID)
			if err != nil {
				return fmt.Errorf("check donor: %w", err)
			}
			if !ok {
				return apperr.NotFound("donor")
			}
		}
		n, err := s.seq.Next(ctx, SequenceScope(year))
		if err != nil {
			return err
		}
		u.ID = FormatID(year, n)
		if err := s.repo.Create(ctx, u); err != nil {
			return fmt.Errorf("create blood unit: %w", err)
		}
		inv, err = s.repo.RecomputeInventory(ctx, []bloodgroup.Group{u.BloodGroup})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.UnitCreated(string(u.BloodGroup))
	s.recordInventory(inv)
	s.publish(ctx, s.event(ctx, events.TypeUnitCreated, u))
	s.logger.Info().Str("blood_unit_id", u.ID).Str("blood_group", string(u.BloodGroup)).Msg("blood unit created")
	return u, nil
}

// Issue allocates an Available unit to a patient. The unit row stays locked
// from the status check until commit, and the write itself is conditional
// on the unit still being Available, so of two concurrent issues of the same
// unit exactly one succeeds.
func (s *Service) Issue(ctx context.Context, unitID, patientID string) (*BloodUnit, error) {
	unitID = strings.TrimSpace(unitID)
	patientID = strings.TrimSpace(patientID)
	if unitID == "" || patientID == "" {
		return nil, apperr.Validation("BloodUnitID and PatientID are required")
	}

	var u *BloodUnit
	var inv []InventoryRow
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.lockUnit(ctx, unitID)
		if err != nil {
			return err
		}
		if err := Transition(u.Status, StatusIssued); err != nil {
			return apperr.InvalidState("blood unit %s is %s and cannot be issued", u.ID, u.Status)
		}

		ok, err := s.repo.PatientExists(ctx, patientID)
		if err != nil {
			return fmt.Errorf("check patient: %w", err)
		}
		if !ok {
			return apperr.NotFound("patient")
		}

		issued, err := s.repo.MarkIssued(ctx, u.ID, patientID)
		if err != nil {
			return fmt.Errorf("issue blood unit: %w", err)
		}
		if !issued {
			return apperr.InvalidState("blood unit %s is no longer Available", u.ID)
		}
		u.Status = StatusIssued
		u.PatientID = &patientID

		inv, err = s.repo.RecomputeInventory(ctx, []bloodgroup.Group{u.BloodGroup})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.UnitIssued(string(u.BloodGroup))
	s.recordInventory(inv)
	evt := s.event(ctx, events.TypeUnitIssued, u)
	evt.PatientID = patientID
	s.publish(ctx, evt)
	s.logger.Info().Str("blood_unit_id", u.ID).Str("patient_id", patientID).Msg("blood unit issued")
	return u, nil
}

// ExpirePass marks every Available unit whose expiry date is before today
// as Expired. Issued units are never touched, and a second run on the same
// day changes nothing.
func (s *Service) ExpirePass(ctx context.Context) (*SweepResult, error) {
	today := s.Today()

	var expired []*BloodUnit
	var inv []InventoryRow
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		// the affected groups are unknown until the update runs
		if err := s.repo.LockInventory(ctx, bloodgroup.All); err != nil {
			return err
		}
		var err error
		expired, err = s.repo.ExpireBefore(ctx, today)
		if err != nil {
			return err
		}
		inv, err = s.repo.RecomputeInventory(ctx, groupsOf(expired))
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Expired: len(expired), Groups: groupsOf(expired)}
	perGroup := make(map[bloodgroup.Group]int)
	evts := make([]events.Event, 0, len(expired))
	for _, u := range expired {
		perGroup[u.BloodGroup]++
		res.Units = append(res.Units, u.ID)
		evts = append(evts, s.event(ctx, events.TypeUnitExpired, u))
	}
	for g, n := range perGroup {
		s.metrics.UnitsExpired(string(g), n)
	}
	s.recordInventory(inv)
	s.publish(ctx, evts...)

	s.logger.Info().
		Int("expired", res.Expired).
		Strs("groups", bloodgroup.Strings(res.Groups)).
		Time("cutoff", today).
		Msg("expiry sweep finished")
	return res, nil
}

// UpdateUnit edits group and dates of an Available unit. The donor is fixed
// at creation. Both the old and the new group are recomputed.
func (s *Service) UpdateUnit(ctx context.Context, id string, in Input) (*BloodUnit, error) {
	v, err := validateInput(in)
	if err != nil {
		return nil, err
	}

	var u *BloodUnit
	var inv []InventoryRow
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.lockUnit(ctx, id, v.group)
		if err != nil {
			return err
		}
		if u.Status != StatusAvailable {
			return apperr.InvalidState("blood unit %s is %s and can no longer be edited", u.ID, u.Status)
		}
		if in.DonorID != nil && (u.DonorID == nil || *u.DonorID != *in.DonorID) {
			return apperr.Validation("the donor of a blood unit cannot be changed")
		}

		groups := []bloodgroup.Group{u.BloodGroup}
		if v.group != u.BloodGroup {
			groups = append(groups, v.group)
		}
		u.BloodGroup = v.group
		u.DonationDate = v.donation
		u.ExpiryDate = v.expiry

		ok, err := s.repo.Update(ctx, u)
		if err != nil {
			return fmt.Errorf("update blood unit: %w", err)
		}
		if !ok {
			return apperr.InvalidState("blood unit %s is no longer Available", u.ID)
		}
		inv, err = s.repo.RecomputeInventory(ctx, groups)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordInventory(inv)
	s.publish(ctx, s.event(ctx, events.TypeUnitUpdated, u))
	return u, nil
}

// DeleteUnit removes a unit of any status and recomputes its group.
func (s *Service) DeleteUnit(ctx context.Context, id string) error {
	var u *BloodUnit
	var inv []InventoryRow
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.lockUnit(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		inv, err = s.repo.RecomputeInventory(ctx, []bloodgroup.Group{u.BloodGroup})
		return err
	})
	if err != nil {
		return err
	}

	s.recordInventory(inv)
	s.publish(ctx, s.event(ctx, events.TypeUnitDeleted, u))
	s.logger.Info().Str("blood_unit_id", u.ID).Str("status", string(u.Status)).Msg("blood unit deleted")
	return nil
}

func (s *Service) GetUnit(ctx context.Context, id string) (*BloodUnit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUnits(ctx context.Context) ([]*UnitView, error) {
	return s.repo.List(ctx)
}

func (s *Service) FilterUnits(ctx context.Context, f Filter, limit, offset int) ([]*UnitView, int, error) {
	if f.BloodGroup != "" && !f.BloodGroup.Valid() {
		return nil, 0, apperr.Validation("invalid blood group %q", f.BloodGroup)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status %q", f.Status)
	}
	return s.repo.Filter(ctx, f, limit, offset)
}

// GetInventory returns one row for each of the eight groups in display
// order. Groups missing from storage are reported with a zero count.
func (s *Service) GetInventory(ctx context.Context) ([]InventoryRow, error) {
	stored, err := s.repo.Inventory(ctx)
	if err != nil {
		return nil, err
	}
	return completeInventory(stored), nil
}

func completeInventory(stored []InventoryRow) []InventoryRow {
	byGroup := make(map[bloodgroup.Group]InventoryRow, len(stored))
	for _, row := range stored {
		byGroup[row.BloodGroup] = row
	}
	out := make([]InventoryRow, 0, len(bloodgroup.All))
	for _, g := range bloodgroup.All {
		row, ok := byGroup[g]
		if !ok {
			row = InventoryRow{BloodGroup: g}
		}
		out = append(out, row)
	}
	return out
}

// GetCriticalGroups returns groups with at most threshold Available units,
// lowest count first. Ties keep display order.
func (s *Service) GetCriticalGroups(ctx context.Context, threshold int) ([]InventoryRow, error) {
	if threshold < 0 {
		return nil, apperr.Validation("threshold must not be negative")
	}
	rows, err := s.GetInventory(ctx)
	if err != nil {
		return nil, err
	}
	return CriticalRows(rows, threshold), nil
}

// CriticalRows filters and orders inventory rows for the critical list.
func CriticalRows(rows []InventoryRow, threshold int) []InventoryRow {
	out := make([]InventoryRow, 0)
	for _, row := range rows {
		if row.TotalQuantity <= threshold {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity < out[j].TotalQuantity
		}
		return out[i].BloodGroup.Order() < out[j].BloodGroup.Order()
	})
	return out
}

// GetNearExpiry returns Available units expiring within windowDays of
// today, inclusive at both ends, soonest first.
func (s *Service) GetNearExpiry(ctx context.Context, windowDays int) ([]NearExpiryUnit, error) {
	if windowDays < 0 {
		return nil, apperr.Validation("window must not be negative")
	}
	today := s.Today()
	units, err := s.repo.ListExpiringBetween(ctx, today, today.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, err
	}
	return annotateNearExpiry(units, today, windowDays), nil
}

func annotateNearExpiry(units []*UnitView, today time.Time, windowDays int) []NearExpiryUnit {
	out := make([]NearExpiryUnit, 0, len(units))
	for _, u := range units {
		if u.Status != StatusAvailable {
			continue
		}
		days := DaysBetween(today, u.ExpiryDate)
		if days < 0 || days > windowDays {
			continue
		}
		out = append(out, NearExpiryUnit{UnitView: *u, DaysUntilExpiry: days, Severity: SeverityFor(days)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	return out
}

// Alerts combines the near-expiry list and the critical inventory list
// using the configured window and threshold.
func (s *Service) Alerts(ctx context.Context) (*Alerts, error) {
	near, err := s.GetNearExpiry(ctx, s.cfg.NearExpiryDays)
	if err != nil {
		return nil, err
	}
	critical, err := s.GetCriticalGroups(ctx, s.cfg.CriticalThreshold)
	if err != nil {
		return nil, err
	}
	return &Alerts{
		NearExpiry:        near,
		CriticalInventory: critical,
		AlertCount:        len(near) + len(critical),
	}, nil
}

// Reconcile recomputes every inventory row and reports the groups whose
// stored count was wrong.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	var drift []Drift
	var inv []InventoryRow
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockInventory(ctx, bloodgroup.All); err != nil {
			return err
		}
		stored, err := s.repo.Inventory(ctx)
		if err != nil {
			return err
		}
		before := make(map[bloodgroup.Group]int, len(stored))
		for _, row := range stored {
			before[row.BloodGroup] = row.TotalQuantity
		}

		inv, err = s.repo.RecomputeInventory(ctx, bloodgroup.All)
		if err != nil {
			return err
		}
		for _, row := range completeInventory(inv) {
			if before[row.BloodGroup] != row.TotalQuantity {
				drift = append(drift, Drift{BloodGroup: row.BloodGroup, Stored: before[row.BloodGroup], Actual: row.TotalQuantity})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordInventory(inv)
	for _, d := range drift {
		s.logger.Warn().
			Str("blood_group", string(d.BloodGroup)).
			Int("stored", d.Stored).
			Int("actual", d.Actual).
			Msg("inventory drift corrected")
	}
	return drift, nil
}

// lockUnit takes the inventory lock of the unit's group (plus extra groups)
// before the unit row lock. Inventory rows are always locked first, so two
// unit writers never wait on each other in opposite orders.
func (s *Service) lockUnit(ctx context.Context, id string, extra ...bloodgroup.Group) (*BloodUnit, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.LockInventory(ctx, append([]bloodgroup.Group{cur.BloodGroup}, extra...)); err != nil {
		return nil, err
	}
	u, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.BloodGroup != cur.BloodGroup {
		// an update that committed in between moved the unit to another group
		if err := s.repo.LockInventory(ctx, []bloodgroup.Group{u.BloodGroup}); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func groupsOf(units []*BloodUnit) []bloodgroup.Group {
	seen := make(map[bloodgroup.Group]bool)
	groups := make([]bloodgroup.Group, 0)
	for _, u := range units {
		if !seen[u.BloodGroup] {
			seen[u.BloodGroup] = true
			groups = append(groups, u.BloodGroup)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Order() < groups[j].Order() })
	return groups
}

func (s *Service) recordInventory(rows []InventoryRow) {
	for _, row := range rows {
		s.metrics.SetInventory(string(row.BloodGroup), row.TotalQuantity)
	}
}

func (s *Service) event(ctx context.Context, typ string, u *BloodUnit) events.Event {
	e := events.NewEvent(typ, u.ID, string(u.BloodGroup), string(u.Status))
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		e.ActorID = p.UserID
	}
	return e
}

// publish runs after commit. A failed publish is logged and does not undo
// or fail the operation.
func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Error().Err(err).Int("events", len(evts)).Msg("publish blood unit events")
	}
}
