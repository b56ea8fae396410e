package hospital

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

const (
	MaxNameLength     = 150
	MaxLocationLength = 200
)

type Hospital struct {
	ID        int       `json:"hospitalId"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
}

type Input struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (in Input) validate() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	if in.Name == "" {
		return in, apperr.Validation("hospital name is required")
	}
	if in.Location == "" {
		return in, apperr.Validation("hospital location is required")
	}
	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return in, apperr.Validation("hospital name must be at most %d characters", MaxNameLength)
	}
	if utf8.RuneCountInString(in.Location) > MaxLocationLength {
		return in, apperr.Validation("hospital location must be at most %d characters", MaxLocationLength)
	}
	return in, nil
}
