package parcel

import "strings"

// Parcel is an immutable snapshot of one purchasable plot on the community grid.
// Z is carried for rendering only; selection logic works on X/Y.
type Parcel struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	OwnerID string  `json:"owner_id,omitempty"`
}

type Coordinate struct {
	X float64
	Y float64
}

func (p Parcel) Coordinate() Coordinate { return Coordinate{X: p.X, Y: p.Y} }

// IsOwned reports whether anyone holds the parcel.
func (p Parcel) IsOwned() bool { return p.OwnerID != "" }

// IsOwnedByOther reports whether the parcel belongs to someone other than viewerID.
func (p Parcel) IsOwnedByOther(viewerID string) bool {
	return p.OwnerID != "" && p.OwnerID != strings.TrimSpace(viewerID)
}

func Index(ps []Parcel) map[string]Parcel {
	out := make(map[string]Parcel, len(ps))
	for _, p := range ps {
		out[p.ID] = p
	}
	return out
}

func IDs(ps []Parcel) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}
