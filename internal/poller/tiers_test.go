package poller

import (
	"reflect"
	"testing"
)

func TestRotate(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name  string
		cycle int
		count int
		want  []string
	}{
		{"first cycle", 0, 2, []string{"a", "b"}},
		{"offset advances with cycle", 2, 2, []string{"c", "d"}},
		{"wraps around", 4, 3, []string{"e", "a", "b"}},
		{"offset wraps with modulo", 5, 2, []string{"a", "b"}},
		{"count exceeds list", 1, 10, ids},
		{"zero count", 0, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rotate(ids, tt.cycle, tt.count)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("rotate(cycle=%d, count=%d) = %v, want %v",
					tt.cycle, tt.count, got, tt.want)
			}
		})
	}
}

func TestRotateEventualCoverage(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	covered := make(map[string]bool)

	for cycle := 0; cycle < len(ids); cycle++ {
		for _, id := range rotate(ids, cycle, 2) {
			covered[id] = true
		}
	}

	if len(covered) != len(ids) {
		t.Errorf("covered %d of %d ids over a full rotation", len(covered), len(ids))
	}
}

func TestRotateEmpty(t *testing.T) {
	if got := rotate(nil, 3, 5); got != nil {
		t.Errorf("rotate(nil) = %v, want nil", got)
	}
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dedupe() = %v, want %v", got, want)
	}
}
