package model

import "testing"

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Version
		want Relation
	}{
		{"both empty", nil, nil, RelEqual},
		{"identical", Version{{1, 2}}, Version{{1, 2}}, RelEqual},
		{"a newer same device", Version{{1, 3}}, Version{{1, 2}}, RelGreater},
		{"b newer same device", Version{{1, 2}}, Version{{1, 3}}, RelLesser},
		{"a has extra device", Version{{1, 2}, {2, 1}}, Version{{1, 2}}, RelGreater},
		{"b has extra device", Version{{1, 2}}, Version{{1, 2}, {2, 1}}, RelLesser},
		{"concurrent edits", Version{{1, 3}, {2, 1}}, Version{{1, 2}, {2, 2}}, RelConflict},
		{"disjoint devices", Version{{1, 1}}, Version{{2, 1}}, RelConflict},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%s: Compare() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestVersionUpdateBumpsAndSorts(t *testing.T) {
	v := Version{{5, 1}}
	v2 := v.Update(3)
	if len(v2) != 2 || v2[0].Device != 3 || v2[0].Value != 1 {
		t.Fatalf("Update(3) = %v, want sorted insert of (3,1)", v2)
	}
	v3 := v2.Update(3)
	if v3[0].Value != 2 {
		t.Fatalf("second Update(3) = %v, want counter 2", v3)
	}
	if v[0].Value != 1 || len(v) != 1 {
		t.Fatalf("Update mutated the receiver: %v", v)
	}
}

func TestVersionUpdateDominates(t *testing.T) {
	v := Version{{1, 4}, {2, 2}}
	if got := v.Update(2).Compare(v); got != RelGreater {
		t.Fatalf("updated version should dominate its ancestor, got %v", got)
	}
}
