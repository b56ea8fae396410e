package bloodunit

import (
	"context"
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

// Repository is the storage contract of the blood-unit service. Methods that
// write units do not touch blood_inventory; the service calls
// RecomputeInventory in the same transaction.
//
// Every transaction that writes units first takes LockInventory on the
// groups it will touch. Under READ COMMITTED the recompute of a waiting
// writer then runs after the holder commits and counts its units.
type Repository interface {
	// LockInventory locks the inventory rows of groups, in blood_group order,
	// until the transaction ends. Missing rows are created first.
	LockInventory(ctx context.Context, groups []bloodgroup.Group) error
	Create(ctx context.Context, u *BloodUnit) error
	GetByID(ctx context.Context, id string) (*BloodUnit, error)
	// GetForUpdate reads the unit and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*BloodUnit, error)
	// Update writes group and dates of a unit that is still Available.
	// It reports false when the unit is no longer Available.
	Update(ctx context.Context, u *BloodUnit) (bool, error)
	// MarkIssued moves an Available unit to Issued. It reports false when the
	// unit was not Available at write time.
	MarkIssued(ctx context.Context, id, patientID string) (bool, error)
	// ExpireBefore moves every Available unit with expiry_date < day to
	// Expired and returns the units it changed.
	ExpireBefore(ctx context.Context, day time.Time) ([]*BloodUnit, error)
	Delete(ctx context.Context, id string) error

	List(ctx context.Context) ([]*UnitView, error)
	Filter(ctx context.Context, f Filter, limit, offset int) ([]*UnitView, int, error)
	// ListExpiringBetween returns Available units with from <= expiry <= to,
	// ascending by expiry date.
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*UnitView, error)

	// RecomputeInventory sets each listed group's count to its number of
	// Available units and returns the rows written.
	RecomputeInventory(ctx context.Context, groups []bloodgroup.Group) ([]InventoryRow, error)
	Inventory(ctx context.Context) ([]InventoryRow, error)

	DonorExists(ctx context.Context, id int) (bool, error)
	PatientExists(ctx context.Context, id string) (bool, error)
}
