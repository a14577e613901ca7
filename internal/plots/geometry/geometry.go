package geometry

import (
	"math"
	"sort"

	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

// Epsilon is the absolute tolerance for coordinate equality. Plots are authored on a
// fixed pitch; layout jitter stays well below half a unit.
const Epsilon = 0.5

// Axis is the direction a line of parcels runs in.
type Axis int

const (
	None Axis = iota
	// Horizontal lines share y and vary along x.
	Horizontal
	// Vertical lines share x and vary along y.
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	default:
		return "undetermined"
	}
}

func Same(a, b float64) bool { return math.Abs(a-b) <= Epsilon }

// Along returns the coordinate that varies along axis.
func Along(p parcel.Parcel, axis Axis) float64 {
	if axis == Vertical {
		return p.Y
	}
	return p.X
}

// Across returns the coordinate shared by every parcel on a line running along axis.
func Across(p parcel.Parcel, axis Axis) float64 {
	if axis == Vertical {
		return p.X
	}
	return p.Y
}

// Aligned reports the line a and b share. Coincident points are degenerate and not aligned.
func Aligned(a, b parcel.Parcel) (Axis, bool) {
	sameX := Same(a.X, b.X)
	sameY := Same(a.Y, b.Y)
	switch {
	case sameX && sameY:
		return None, false
	case sameX:
		return Vertical, true
	case sameY:
		return Horizontal, true
	}
	return None, false
}

func Collinear(ps []parcel.Parcel) bool {
	if len(ps) <= 2 {
		return true
	}
	return onLine(ps, Vertical) || onLine(ps, Horizontal)
}

func onLine(ps []parcel.Parcel, axis Axis) bool {
	ref := Across(ps[0], axis)
	for _, p := range ps[1:] {
		if !Same(Across(p, axis), ref) {
			return false
		}
	}
	return true
}

// AxisOf derives the line a set of at least two collinear parcels runs along.
// A set that is not collinear, or is a single point, yields None.
func AxisOf(ps []parcel.Parcel) Axis {
	if len(ps) < 2 {
		return None
	}
	for _, p := range ps[1:] {
		if axis, ok := Aligned(ps[0], p); ok {
			if onLine(ps, axis) {
				return axis
			}
			return None
		}
	}
	return None
}

// Between returns the candidates lying strictly between a and b on the segment joining
// them along axis, ordered along the axis.
func Between(a, b parcel.Parcel, axis Axis, candidates []parcel.Parcel) []parcel.Parcel {
	if axis == None {
		return nil
	}
	lo, hi := Along(a, axis), Along(b, axis)
	if lo > hi {
		lo, hi = hi, lo
	}
	line := Across(a, axis)
	var out []parcel.Parcel
	for _, c := range candidates {
		if !Same(Across(c, axis), line) {
			continue
		}
		v := Along(c, axis)
		if v > lo+Epsilon && v < hi-Epsilon {
			out = append(out, c)
		}
	}
	SortAlong(out, axis)
	return out
}

// SortAlong orders ps in place by their coordinate along axis, ids breaking ties.
func SortAlong(ps []parcel.Parcel, axis Axis) {
	sort.SliceStable(ps, func(i, j int) bool {
		vi, vj := Along(ps[i], axis), Along(ps[j], axis)
		if vi != vj {
			return vi < vj
		}
		return ps[i].ID < ps[j].ID
	})
}
