package staff

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

const SequenceScope = "staff"

const MaxNameLength = 100

type Role string

const (
	RoleManager          Role = "Manager"
	RoleClinicalAnalyst  Role = "Clinical Analyst"
	RoleRegistrationTeam Role = "Registration Team"
)

var Roles = []Role{RoleManager, RoleClinicalAnalyst, RoleRegistrationTeam}

// ParseRole accepts any letter case and surrounding space.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(strings.TrimSpace(s), string(r)) {
			return r, nil
		}
	}
	return "", apperr.Validation("invalid staff role %q", s)
}

type Staff struct {
	ID        string    `json:"staffId"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type Input struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// FormatID renders STF<nnn>.
func FormatID(seq int) string {
	return fmt.Sprintf("STF%03d", seq)
}

func (in Input) toStaff() (*Staff, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("staff name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, apperr.Validation("staff name must be at most %d characters", MaxNameLength)
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	return &Staff{Name: name, Role: role}, nil
}
