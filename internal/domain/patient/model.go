package patient

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

// SequenceScope is the id_sequences row that numbers patients.
const SequenceScope = "patient"

const (
	MaxNameLength    = 100
	MaxContactLength = 20
)

type Patient struct {
	ID           string           `json:"patientId"`
	Name         string           `json:"name"`
	BloodGroup   bloodgroup.Group `json:"bloodGroup"`
	Gender       string           `json:"gender"`
	Contact      string           `json:"contact"`
	HospitalID   int              `json:"hospitalId"`
	HospitalName *string          `json:"hospitalName,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

type Input struct {
	Name       string `json:"name"`
	BloodGroup string `json:"bloodGroup"`
	Gender     string `json:"gender"`
	Contact    string `json:"contact"`
	HospitalID int    `json:"hospitalId"`
}

// FormatID renders PAT<nnnn>.
func FormatID(seq int) string {
	return fmt.Sprintf("PAT%04d", seq)
}

func normalizeGender(g string) (string, bool) {
	for _, v := range []string{"Male", "Female", "Other"} {
		if strings.EqualFold(strings.TrimSpace(g), v) {
			return v, true
		}
	}
	return "", false
}

func (in Input) toPatient() (*Patient, error) {
	p := &Patient{
		Name:       strings.TrimSpace(in.Name),
		Contact:    strings.TrimSpace(in.Contact),
		HospitalID: in.HospitalID,
	}
	if p.Name == "" {
		return nil, apperr.Validation("patient name is required")
	}
	if utf8.RuneCountInString(p.Name) > MaxNameLength {
		return nil, apperr.Validation("patient name must be at most %d characters", MaxNameLength)
	}
	bg, err := bloodgroup.Parse(in.BloodGroup)
	if err != nil {
		return nil, apperr.Validation("invalid blood group %q", in.BloodGroup)
	}
	p.BloodGroup = bg
	g, ok := normalizeGender(in.Gender)
	if !ok {
		return nil, apperr.Validation("invalid gender %q", in.Gender)
	}
	p.Gender = g
	if p.Contact == "" {
		return nil, apperr.Validation("patient contact is required")
	}
	if utf8.RuneCountInString(p.Contact) > MaxContactLength {
		return nil, apperr.Validation("patient contact must be at most %d characters", MaxContactLength)
	}
	if p.HospitalID <= 0 {
		return nil, apperr.Validation("hospital is required")
	}
	return p, nil
}
