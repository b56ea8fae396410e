package donor

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

const (
	MinAge = 18
	MaxAge = 65

	// Column widths of the donors table.
	MaxNameLength    = 100
	MaxContactLength = 20
)

type Donor struct {
	ID             int              `json:"donorId"`
	Name           string           `json:"name"`
	Age            int              `json:"age"`
	Gender         string           `json:"gender"`
	Contact        string           `json:"contact"`
	Address        string           `json:"address"`
	BloodGroup     bloodgroup.Group `json:"bloodGroup"`
	MedicalHistory string           `json:"medicalHistory"`
	CreatedAt      time.Time        `json:"createdAt"`
}

type Input struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Contact        string `json:"contact"`
	Address        string `json:"address"`
	BloodGroup     string `json:"bloodGroup"`
	MedicalHistory string `json:"medicalHistory"`
}

// SearchQuery filters donor search. Name matches case-insensitively as a
// substring.
type SearchQuery struct {
	Name       string
	BloodGroup bloodgroup.Group
}

var genders = []string{"Male", "Female", "Other"}

// NormalizeGender returns the canonical spelling of g.
func NormalizeGender(g string) (string, bool) {
	for _, v := range genders {
		if strings.EqualFold(strings.TrimSpace(g), v) {
			return v, true
		}
	}
	return "", false
}

func (in Input) toDonor() (*Donor, error) {
	d := &Donor{
		Name:           strings.TrimSpace(in.Name),
		Age:            in.Age,
		Contact:        strings.TrimSpace(in.Contact),
		Address:        strings.TrimSpace(in.Address),
		MedicalHistory: strings.TrimSpace(in.MedicalHistory),
	}
	if d.Name == "" {
		return nil, apperr.Validation("donor name is required")
	}
	if utf8.RuneCountInString(d.Name) > MaxNameLength {
		return nil, apperr.Validation("donor name must be at most %d characters", MaxNameLength)
	}
	if d.Age < MinAge || d.Age > MaxAge {
		return nil, apperr.Validation("donor age must be between %d and %d", MinAge, MaxAge)
	}
	g, ok := NormalizeGender(in.Gender)
	if !ok {
		return nil, apperr.Validation("invalid gender %q", in.Gender)
	}
	d.Gender = g
	if d.Contact == "" {
		return nil, apperr.Validation("donor contact is required")
	}
	if utf8.RuneCountInString(d.Contact) > MaxContactLength {
		return nil, apperr.Validation("donor contact must be at most %d characters", MaxContactLength)
	}
	bg, err := bloodgroup.Parse(in.BloodGroup)
	if err != nil {
		return nil, apperr.Validation("invalid blood group %q", in.BloodGroup)
	}
	d.BloodGroup = bg
	return d, nil
}
