package geometry

import (
	"testing"

	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

func at(id string, x, y float64) parcel.Parcel { return parcel.Parcel{ID: id, X: x, Y: y} }

func TestAligned(t *testing.T) {
	a := at("A", 0, 0)
	if axis, ok := Aligned(a, at("B", 12, 0)); !ok || axis != Horizontal {
		t.Fatalf("expected horizontal, got %v %v", axis, ok)
	}
	if axis, ok := Aligned(a, at("B", 0.2, 24)); !ok || axis != Vertical {
		t.Fatalf("expected vertical within tolerance, got %v %v", axis, ok)
	}
	if _, ok := Aligned(a, at("B", 12, 12)); ok {
		t.Fatalf("diagonal must not be aligned")
	}
	if _, ok := Aligned(a, at("B", 0.1, -0.1)); ok {
		t.Fatalf("coincident points are degenerate")
	}
}

func TestCollinear(t *testing.T) {
	if !Collinear(nil) || !Collinear([]parcel.Parcel{at("A", 0, 0), at("B", 5, 7)}) {
		t.Fatalf("two or fewer parcels are trivially collinear")
	}
	if !Collinear([]parcel.Parcel{at("A", 0, 0), at("B", 0, 12), at("C", 0.3, 36)}) {
		t.Fatalf("expected vertical line")
	}
	if !Collinear([]parcel.Parcel{at("A", 0, 0), at("B", -12, 0), at("C", 24, 0)}) {
		t.Fatalf("expected horizontal line")
	}
	if Collinear([]parcel.Parcel{at("A", 0, 0), at("B", 12, 0), at("C", 12, 12)}) {
		t.Fatalf("L shape is not collinear")
	}
}

func TestAxisOf(t *testing.T) {
	if got := AxisOf([]parcel.Parcel{at("A", 0, 0)}); got != None {
		t.Fatalf("single parcel: %v", got)
	}
	if got := AxisOf([]parcel.Parcel{at("A", 0, 0), at("B", 0, 12)}); got != Vertical {
		t.Fatalf("got %v", got)
	}
	if got := AxisOf([]parcel.Parcel{at("A", 0, 0), at("B", 12, 0), at("C", 12, 12)}); got != None {
		t.Fatalf("got %v", got)
	}
}

func TestBetween(t *testing.T) {
	a, b := at("A", 0, 0), at("D", 36, 0)
	cands := []parcel.Parcel{
		at("C", 24, 0),
		at("B", 12.3, 0),
		at("OFF", 12, 12),
		at("END", 36, 0),
		at("OUT", 48, 0),
	}
	got := Between(b, a, Horizontal, cands)
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "C" {
		t.Fatalf("unexpected between: %+v", got)
	}
	if got := Between(a, at("X", 12, 0), Horizontal, cands); len(got) != 0 {
		t.Fatalf("adjacent parcels have nothing between: %+v", got)
	}
	if got := Between(a, b, None, cands); got != nil {
		t.Fatalf("no axis, no span")
	}
}

func TestSortAlong(t *testing.T) {
	ps := []parcel.Parcel{at("C", 0, 24), at("A", 0, -12), at("B", 0, 0)}
	SortAlong(ps, Vertical)
	if ps[0].ID != "A" || ps[1].ID != "B" || ps[2].ID != "C" {
		t.Fatalf("unexpected order: %+v", ps)
	}
}
