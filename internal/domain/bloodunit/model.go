package bloodunit

import (
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

type BloodUnit struct {
	ID           string           `json:"bloodUnitId"`
	BloodGroup   bloodgroup.Group `json:"bloodGroup"`
	DonationDate time.Time        `json:"donationDate"`
	ExpiryDate   time.Time        `json:"expiryDate"`
	Status       Status           `json:"status"`
	DonorID      *int             `json:"donorId,omitempty"`
	PatientID    *string          `json:"patientId,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// UnitView is a unit joined with the names of the records it references.
type UnitView struct {
	BloodUnit
	DonorName    *string `json:"donorName,omitempty"`
	PatientName  *string `json:"patientName,omitempty"`
	HospitalName *string `json:"hospitalName,omitempty"`
}

// NearExpiryUnit is an Available unit inside the expiry alert window.
type NearExpiryUnit struct {
	UnitView
	DaysUntilExpiry int      `json:"daysUntilExpiry"`
	Severity        Severity `json:"severity"`
}

type InventoryRow struct {
	BloodGroup    bloodgroup.Group `json:"bloodGroup"`
	TotalQuantity int              `json:"totalQuantity"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Drift is an inventory row whose stored count disagreed with the units.
type Drift struct {
	BloodGroup bloodgroup.Group `json:"bloodGroup"`
	Stored     int              `json:"stored"`
	Actual     int              `json:"actual"`
}

// Filter narrows unit listings. Empty fields do not filter.
type Filter struct {
	BloodGroup bloodgroup.Group
	Status     Status
	DonorName  string
}

// Input is the caller-supplied part of a unit on create and update.
type Input struct {
	BloodGroup   string `json:"bloodGroup"`
	DonationDate string `json:"donationDate"`
	ExpiryDate   string `json:"expiryDate"`
	DonorID      *int   `json:"donorId"`
}

// IssueRequest keeps the field names existing clients send.
type IssueRequest struct {
	BloodUnitID string `json:"BloodUnitID"`
	PatientID   string `json:"PatientID"`
}

// SweepResult reports what one expiry pass changed.
type SweepResult struct {
	Expired int                `json:"expired"`
	Groups  []bloodgroup.Group `json:"groups"`
	Units   []string           `json:"units,omitempty"`
}

// Alerts is the payload of the expiry alert endpoint.
type Alerts struct {
	NearExpiry        []NearExpiryUnit `json:"nearExpiry"`
	CriticalInventory []InventoryRow   `json:"criticalInventory"`
	AlertCount        int              `json:"alertCount"`
}
