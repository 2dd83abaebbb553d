/**
 * Geometry Kernel for the Bubble Extraction Worker
 *
 * Pure axis-aligned box math used by the deduplication and container
 * filtering stages. No I/O, no external state.
 */

package geometry

// Box represents a top-left-origin rectangle in source-pixel space.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawDetection is a detector output box with its confidence score.
type RawDetection struct {
	Box
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class,omitempty"`
}

// Area returns the box area in pixels.
func (b Box) Area() int {
	return b.Width * b.Height
}

// IoU computes the intersection-over-union of two boxes. Returns 0 for
// disjoint boxes.
func IoU(a, b Box) float64 {
	ix := max(a.X, b.X)
	iy := max(a.Y, b.Y)
	ix2 := min(a.X+a.Width, b.X+b.Width)
	iy2 := min(a.Y+a.Height, b.Y+b.Height)

	if ix2 <= ix || iy2 <= iy {
		return 0
	}

	inter := (ix2 - ix) * (iy2 - iy)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Similar reports whether two boxes are the same detection up to jitter.
// Each of |Δx|, |Δy|, |Δw|, |Δh| is normalized by the larger corresponding
// dimension and must fall strictly below tol. This distinguishes "same
// detection, jittered" from "overlapping but distinct", which IoU alone
// misjudges for thin or elongated boxes.
func Similar(a, b Box, tol float64) bool {
	if tol <= 0 {
		return false
	}
	return normDelta(a.X, b.X, a.Width, b.Width) < tol &&
		normDelta(a.Y, b.Y, a.Height, b.Height) < tol &&
		normDelta(a.Width, b.Width, a.Width, b.Width) < tol &&
		normDelta(a.Height, b.Height, a.Height, b.Height) < tol
}

// Contains reports whether inner lies entirely within outer.
func Contains(inner, outer Box) bool {
	return inner.X >= outer.X &&
		inner.Y >= outer.Y &&
		inner.X+inner.Width <= outer.X+outer.Width &&
		inner.Y+inner.Height <= outer.Y+outer.Height
}

// FromCenter converts a detector center-origin box to a top-left-origin box
// clamped to the page bounds. Returns false when the clamped box has zero
// area and should be discarded.
func FromCenter(cx, cy, w, h float64, pageW, pageH int) (Box, bool) {
	x := int(cx - w/2)
	y := int(cy - h/2)
	x2 := int(cx + w/2)
	y2 := int(cy + h/2)

	x = clamp(x, 0, pageW)
	y = clamp(y, 0, pageH)
	x2 = clamp(x2, 0, pageW)
	y2 = clamp(y2, 0, pageH)

	if x2 <= x || y2 <= y {
		return Box{}, false
	}
	return Box{X: x, Y: y, Width: x2 - x, Height: y2 - y}, true
}

// normDelta normalizes the difference of two values by the larger of the two
// reference dimensions.
func normDelta(a, b, dimA, dimB int) float64 {
	ref := max(dimA, dimB)
	if ref <= 0 {
		return 1
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return float64(d) / float64(ref)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
