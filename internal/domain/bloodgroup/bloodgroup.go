// Package bloodgroup defines the eight ABO/Rh blood groups.
package bloodgroup

import (
	"fmt"
	"strings"
)

type Group string

const (
	APos  Group = "A+"
	ANeg  Group = "A-"
	BPos  Group = "B+"
	BNeg  Group = "B-"
	ABPos Group = "AB+"
	ABNeg Group = "AB-"
	OPos  Group = "O+"
	ONeg  Group = "O-"
)

// All lists every group in display order.
var All = []Group{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg}

var index = func() map[Group]int {
	m := make(map[Group]int, len(All))
	for i, g := range All {
		m[g] = i
	}
	return m
}()

// Parse normalizes s and returns the matching group. Surrounding space,
// lower case and the Unicode minus sign are accepted.
func Parse(s string) (Group, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("−", "-", "–", "-", " ", "").Replace(norm)
	g := Group(norm)
	if !g.Valid() {
		return "", fmt.Errorf("invalid blood group %q", s)
	}
	return g, nil
}

func (g Group) Valid() bool {
	_, ok := index[g]
	return ok
}

func (g Group) String() string { return string(g) }

// Order is the position of g in All, or len(All) for unknown groups.
func (g Group) Order() int {
	if i, ok := index[g]; ok {
		return i
	}
	return len(All)
}

// Strings returns the groups as plain strings, e.g. for SQL ANY($1).
func Strings(groups []Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = string(g)
	}
	return out
}
