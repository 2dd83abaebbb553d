package geometry

import (
	"math"
	"testing"
)

func TestIoUSymmetry(t *testing.T) {
	cases := []struct {
		name string
		a, b Box
	}{
		{"disjoint", Box{X: 0, Y: 0, Width: 10, Height: 10}, Box{X: 100, Y: 100, Width: 10, Height: 10}},
		{"overlapping", Box{X: 0, Y: 0, Width: 20, Height: 20}, Box{X: 10, Y: 10, Width: 20, Height: 20}},
		{"identical", Box{X: 5, Y: 5, Width: 30, Height: 15}, Box{X: 5, Y: 5, Width: 30, Height: 15}},
		{"nested", Box{X: 10, Y: 10, Width: 10, Height: 10}, Box{X: 0, Y: 0, Width: 100, Height: 100}},
		{"touching edges", Box{X: 0, Y: 0, Width: 10, Height: 10}, Box{X: 10, Y: 0, Width: 10, Height: 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ab := IoU(tc.a, tc.b)
			ba := IoU(tc.b, tc.a)
			if ab != ba {
				t.Errorf("IoU not symmetric: IoU(a,b)=%f, IoU(b,a)=%f", ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("IoU out of range: %f", ab)
			}
		})
	}
}

func TestIoUDisjointIsZero(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 10, Height: 10}
	b := Box{X: 50, Y: 50, Width: 10, Height: 10}
	if got := IoU(a, b); got != 0 {
		t.Errorf("expected 0 for disjoint boxes, got %f", got)
	}

	// Edge-adjacent boxes share no interior area.
	c := Box{X: 10, Y: 0, Width: 10, Height: 10}
	if got := IoU(a, c); got != 0 {
		t.Errorf("expected 0 for edge-adjacent boxes, got %f", got)
	}
}

func TestIoUIdentical(t *testing.T) {
	a := Box{X: 3, Y: 4, Width: 25, Height: 40}
	if got := IoU(a, a); got != 1.0 {
		t.Errorf("expected 1.0 for identical boxes, got %f", got)
	}
}

// When a is fully contained in b, IoU(a,b) must equal area(a)/area(b).
func TestIoUContainment(t *testing.T) {
	inner := Box{X: 10, Y: 10, Width: 20, Height: 20}
	outer := Box{X: 0, Y: 0, Width: 100, Height: 50}

	if !Contains(inner, outer) {
		t.Fatal("inner should be contained in outer")
	}

	want := float64(inner.Area()) / float64(outer.Area())
	got := IoU(inner, outer)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("IoU for contained box: got %f, want area(a)/area(b)=%f", got, want)
	}
}

func TestSimilar(t *testing.T) {
	base := Box{X: 100, Y: 100, Width: 200, Height: 80}

	cases := []struct {
		name string
		b    Box
		tol  float64
		want bool
	}{
		{"identical", base, 0.1, true},
		{"small jitter", Box{X: 105, Y: 102, Width: 198, Height: 82}, 0.1, true},
		{"shifted far", Box{X: 180, Y: 100, Width: 200, Height: 80}, 0.1, false},
		{"resized significantly", Box{X: 100, Y: 100, Width: 320, Height: 80}, 0.1, false},
		// Thin elongated boxes: large IoU-overlap but clearly distinct
		// vertical positions must not be considered similar.
		{"thin box offset", Box{X: 100, Y: 120, Width: 200, Height: 12}, 0.1, false},
		{"zero tolerance", base, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Similar(base, tc.b, tc.tol); got != tc.want {
				t.Errorf("Similar(%+v, %+v, %f) = %v, want %v", base, tc.b, tc.tol, got, tc.want)
			}
			// Similarity is symmetric by construction.
			if got := Similar(tc.b, base, tc.tol); got != Similar(base, tc.b, tc.tol) {
				t.Errorf("Similar not symmetric for %+v", tc.b)
			}
		})
	}
}

func TestContains(t *testing.T) {
	outer := Box{X: 0, Y: 0, Width: 100, Height: 100}

	cases := []struct {
		name  string
		inner Box
		want  bool
	}{
		{"fully inside", Box{X: 10, Y: 10, Width: 20, Height: 20}, true},
		{"identical", outer, true},
		{"partial overlap", Box{X: 90, Y: 90, Width: 20, Height: 20}, false},
		{"outside", Box{X: 200, Y: 200, Width: 10, Height: 10}, false},
		{"flush to edge", Box{X: 80, Y: 80, Width: 20, Height: 20}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Contains(tc.inner, outer); got != tc.want {
				t.Errorf("Contains(%+v, %+v) = %v, want %v", tc.inner, outer, got, tc.want)
			}
		})
	}
}

func TestFromCenter(t *testing.T) {
	cases := []struct {
		name           string
		cx, cy, w, h   float64
		pageW, pageH   int
		want           Box
		wantOK         bool
	}{
		{"interior", 100, 100, 50, 40, 800, 600, Box{X: 75, Y: 80, Width: 50, Height: 40}, true},
		{"clamped left edge", 10, 100, 50, 40, 800, 600, Box{X: 0, Y: 80, Width: 35, Height: 40}, true},
		{"clamped bottom right", 790, 590, 60, 60, 800, 600, Box{X: 760, Y: 560, Width: 40, Height: 40}, true},
		{"fully outside", -100, -100, 20, 20, 800, 600, Box{}, false},
		{"zero size", 100, 100, 0, 0, 800, 600, Box{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FromCenter(tc.cx, tc.cy, tc.w, tc.h, tc.pageW, tc.pageH)
			if ok != tc.wantOK {
				t.Fatalf("FromCenter ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("FromCenter = %+v, want %+v", got, tc.want)
			}
			if ok && (got.Width <= 0 || got.Height <= 0 || got.X < 0 || got.Y < 0) {
				t.Errorf("FromCenter produced invalid box: %+v", got)
			}
		})
	}
}
