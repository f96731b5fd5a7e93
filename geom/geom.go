// Package geom implements the rectangle math that viewport intersection
// tracking is built on: axis-aligned regions in viewport coordinates,
// px/percent margins, and threshold sets.
package geom

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Region is an axis-aligned rectangle in viewport coordinates.
// Width and Height are always kept consistent with the edges.
type Region struct {
	Top    float64
	Left   float64
	Right  float64
	Bottom float64
	Width  float64
	Height float64
}

// FromRect builds a Region from an origin and dimensions.
func FromRect(x, y, w, h float64) Region {
	return Region{
		Top:    y,
		Left:   x,
		Right:  x + w,
		Bottom: y + h,
		Width:  w,
		Height: h,
	}
}

// FromEdges builds a Region from its four edges.
func FromEdges(top, left, right, bottom float64) Region {
	return Region{
		Top:    top,
		Left:   left,
		Right:  right,
		Bottom: bottom,
		Width:  right - left,
		Height: bottom - top,
	}
}

// Area returns the region's area.
func (r Region) Area() float64 {
	return r.Width * r.Height
}

// Empty reports whether the region has zero area.
func (r Region) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Intersect returns the overlap of a and b. The second return value is
// false when the rectangles do not touch at all. Edge-touching rectangles
// intersect with a zero-area region; that is distinct from no intersection.
func Intersect(a, b Region) (Region, bool) {
	top := math.Max(a.Top, b.Top)
	left := math.Max(a.Left, b.Left)
	right := math.Min(a.Right, b.Right)
	bottom := math.Min(a.Bottom, b.Bottom)
	if right-left < 0 || bottom-top < 0 {
		return Region{}, false
	}
	return FromEdges(top, left, right, bottom), true
}

// Unit is the unit of a margin length.
type Unit int

const (
	// UnitPx is an absolute offset in pixels.
	UnitPx Unit = iota
	// UnitPercent resolves against a reference dimension: width for
	// left/right margins, height for top/bottom.
	UnitPercent
)

// Length is one signed margin offset.
type Length struct {
	Value float64
	Unit  Unit
}

// Margin holds four signed offsets. Positive values grow the region
// outward, negative values shrink it.
type Margin struct {
	Top    Length
	Right  Length
	Bottom Length
	Left   Length
}

// Px is a convenience constructor for an absolute length.
func Px(v float64) Length {
	return Length{Value: v, Unit: UnitPx}
}

// Percent is a convenience constructor for a percentage length.
func Percent(v float64) Length {
	return Length{Value: v, Unit: UnitPercent}
}

// PxMargin builds an all-pixel margin in CSS order (top, right, bottom, left).
func PxMargin(top, right, bottom, left float64) Margin {
	return Margin{Top: Px(top), Right: Px(right), Bottom: Px(bottom), Left: Px(left)}
}

// ParseLength parses a single length component, e.g. "10px", "-25%". It is
// the string form of Length used wherever configuration carries lengths.
func ParseLength(s string) (Length, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "px"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
		if err != nil {
			return Length{}, fmt.Errorf("invalid length %q: %w", s, err)
		}
		return Px(v), nil
	case strings.HasSuffix(s, "%"):
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return Length{}, fmt.Errorf("invalid length %q: %w", s, err)
		}
		return Percent(v), nil
	default:
		return Length{}, fmt.Errorf("length %q must be in pixels or percent", s)
	}
}

// ParseMargin parses a CSS-style margin shorthand of one to four
// space-separated components. It is the string form of Margin for callers
// building registry root margins from configuration.
func ParseMargin(s string) (Margin, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 4 {
		return Margin{}, fmt.Errorf("margin %q must have 1 to 4 components", s)
	}
	parts := make([]Length, len(fields))
	for i, f := range fields {
		l, err := ParseLength(f)
		if err != nil {
			return Margin{}, err
		}
		parts[i] = l
	}
	switch len(parts) {
	case 1:
		return Margin{Top: parts[0], Right: parts[0], Bottom: parts[0], Left: parts[0]}, nil
	case 2:
		return Margin{Top: parts[0], Right: parts[1], Bottom: parts[0], Left: parts[1]}, nil
	case 3:
		return Margin{Top: parts[0], Right: parts[1], Bottom: parts[2], Left: parts[1]}, nil
	default:
		return Margin{Top: parts[0], Right: parts[1], Bottom: parts[2], Left: parts[3]}, nil
	}
}

func (l Length) resolve(ref float64) float64 {
	if l.Unit == UnitPercent {
		return l.Value / 100 * ref
	}
	return l.Value
}

// Expand offsets each edge of r by the margin, resolving percentage
// components against refW (left/right) and refH (top/bottom), and
// recomputes width and height.
func Expand(r Region, m Margin, refW, refH float64) Region {
	return FromEdges(
		r.Top-m.Top.resolve(refH),
		r.Left-m.Left.resolve(refW),
		r.Right+m.Right.resolve(refW),
		r.Bottom+m.Bottom.resolve(refH),
	)
}

// ThresholdSet is a sorted set of unique intersection ratios in [0,1].
type ThresholdSet []float64

// NewThresholds validates, sorts and de-duplicates the given ratios.
// Values outside [0,1] or non-finite values are a configuration error.
func NewThresholds(ratios ...float64) (ThresholdSet, error) {
	if len(ratios) == 0 {
		return ThresholdSet{0}, nil
	}
	out := make([]float64, 0, len(ratios))
	for _, v := range ratios {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
			return nil, fmt.Errorf("threshold %v outside [0,1]", v)
		}
		out = append(out, v)
	}
	sort.Float64s(out)
	dedup := out[:1]
	for _, v := range out[1:] {
		if v != dedup[len(dedup)-1] {
			dedup = append(dedup, v)
		}
	}
	return ThresholdSet(dedup), nil
}

// EqualSteps returns n+1 evenly spaced thresholds from 0 to 1 inclusive.
func EqualSteps(n int) ThresholdSet {
	if n < 1 {
		n = 1
	}
	ts := make(ThresholdSet, n+1)
	for i := 0; i <= n; i++ {
		ts[i] = float64(i) / float64(n)
	}
	return ts
}

// Crossed reports whether moving from ratio old to ratio new lands on or
// crosses any threshold in the set. Callers represent a non-intersecting
// state as ratio -1, which sits strictly below every real threshold, so
// appearance and disappearance register as crossings too.
func (ts ThresholdSet) Crossed(old, new float64) bool {
	if old == new {
		return false
	}
	for _, t := range ts {
		if t == old || t == new || (t < old) != (t < new) {
			return true
		}
	}
	return false
}
