package analytics

import (
	"time"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/domain/bloodunit"
)

// RecentDonationDays is the look-back window of Overview.RecentDonations.
const RecentDonationDays = 30

// TopDonorLimit is how many donors the dashboard ranks.
const TopDonorLimit = 5

type Overview struct {
	Donors              int `json:"donors"`
	Patients            int `json:"patients"`
	TotalBloodUnits     int `json:"totalBloodUnits"`
	AvailableBloodUnits int `json:"availableBloodUnits"`
	ExpiredBloodUnits   int `json:"expiredBloodUnits"`
	IssuedBloodUnits    int `json:"issuedBloodUnits"`
	TotalInventory      int `json:"totalInventory"`
	NearExpiryUnits     int `json:"nearExpiryUnits"`
	RecentDonations     int `json:"recentDonations"`
}

type TopDonor struct {
	DonorID    int              `json:"donorId"`
	Name       string           `json:"name"`
	BloodGroup bloodgroup.Group `json:"bloodGroup"`
	Donations  int              `json:"donations"`
}

type Dashboard struct {
	Overview       Overview                 `json:"overview"`
	BloodInventory []bloodunit.InventoryRow `json:"bloodInventory"`
	TopDonors      []TopDonor               `json:"topDonors"`
	LastUpdated    time.Time                `json:"lastUpdated"`
}

// CountWindow bounds the date-dependent counts of an Overview.
type CountWindow struct {
	Today         time.Time
	NearExpiryEnd time.Time
	RecentSince   time.Time
}
