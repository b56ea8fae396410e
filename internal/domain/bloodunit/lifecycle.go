package bloodunit

import (
	"fmt"
	"strings"
	"time"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

type Status string

const (
	StatusAvailable Status = "Available"
	StatusIssued    Status = "Issued"
	StatusExpired   Status = "Expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusIssued, StatusExpired:
		return true
	}
	return false
}

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusAvailable, StatusIssued, StatusExpired} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", apperr.Validation("invalid status %q", s)
}

// Transition checks a status change. Available is the only state with
// outgoing edges; Issued and Expired are terminal.
func Transition(from, to Status) error {
	if from == StatusAvailable && (to == StatusIssued || to == StatusExpired) {
		return nil
	}
	return apperr.InvalidState("cannot move blood unit from %s to %s", from, to)
}

// FormatID renders BU<yyyy><nnnn>.
func FormatID(year, seq int) string {
	return fmt.Sprintf("BU%04d%04d", year, seq)
}

// SequenceScope is the id counter scope for units created in year.
func SequenceScope(year int) string {
	return fmt.Sprintf("blood_unit:%d", year)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNotice   Severity = "notice"
)

// SeverityFor buckets days until expiry: <=2 critical, <=5 warning.
func SeverityFor(days int) Severity {
	switch {
	case days <= 2:
		return SeverityCritical
	case days <= 5:
		return SeverityWarning
	default:
		return SeverityNotice
	}
}

// DateOf truncates t to its calendar date in t's location and returns it
// as midnight UTC, which is how DATE columns come back from the driver.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, apperr.Validation("%s is required", field)
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return time.Time{}, apperr.Validation("%s must be a date in YYYY-MM-DD form", field)
}
