package bloodgroup

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Group
		wantErr bool
	}{
		{"A+", APos, false},
		{"ab-", ABNeg, false},
		{" O+ ", OPos, false},
		{"B−", BNeg, false},
		{"AB −", ABNeg, false},
		{"C+", "", true},
		{"A", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAll(t *testing.T) {
	if len(All) != 8 {
		t.Fatalf("expected 8 groups, got %d", len(All))
	}
	seen := map[Group]bool{}
	for i, g := range All {
		if seen[g] {
			t.Errorf("duplicate group %s", g)
		}
		seen[g] = true
		if g.Order() != i {
			t.Errorf("expected order %d for %s, got %d", i, g, g.Order())
		}
	}
	if Group("X").Order() != len(All) {
		t.Error("expected unknown groups to sort last")
	}
}

func TestStrings(t *testing.T) {
	got := Strings([]Group{OPos, ANeg})
	if len(got) != 2 || got[0] != "O+" || got[1] != "A-" {
		t.Errorf("unexpected %v", got)
	}
}
