package emissions

import (
	"math"
	"testing"
)

func TestSavedUnbatched(t *testing.T) {
	for _, n := range []int{0, 1, 2, 10} {
		if got := Saved(false, n); got != 0 {
			t.Fatalf("Saved(false,%d) = %f, want 0", n, got)
		}
	}
}

func TestSavedBatchOfOne(t *testing.T) {
	if got := Saved(true, 1); got != 0 {
		t.Fatalf("Saved(true,1) = %f, want 0", got)
	}
}

func TestSavedFormula(t *testing.T) {
	cases := []struct {
		n    int
		want float64
	}{
		{2, 142.5},
		{3, 190},
		{4, 213.75},
	}
	for _, c := range cases {
		got := Saved(true, c.n)
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("Saved(true,%d) = %f, want %f", c.n, got, c.want)
		}
	}
}

func TestSavedMonotoneAndBounded(t *testing.T) {
	prev := 0.0
	for n := 2; n <= 100; n++ {
		got := Saved(true, n)
		if got <= prev {
			t.Fatalf("savings not strictly increasing at n=%d: %f <= %f", n, got, prev)
		}
		if got >= SoloTripGrams {
			t.Fatalf("savings exceed solo emission at n=%d: %f", n, got)
		}
		prev = got
	}
}

func TestSavedDispatchFloorsAtTwo(t *testing.T) {
	if got := SavedDispatch(1); got != 142.5 {
		t.Fatalf("lone survivor should keep paired credit, got %f", got)
	}
	if got := SavedDispatch(3); got != Saved(true, 3) {
		t.Fatalf("floor must not affect real batches, got %f", got)
	}
}
