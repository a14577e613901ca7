package selection

import (
	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

type Revalidation struct {
	Dropped []string
}

// Revalidate reconciles the session with a freshly fetched universe. Members that
// vanished or now belong to someone other than viewerID are dropped, then every member
// no longer joined to the anchor by a gap-free run is dropped as well. Losing the anchor
// itself ends the session with ErrAnchorLost.
func (s *Session) Revalidate(universe []parcel.Parcel, viewerID string) (Revalidation, error) {
	if len(universe) == 0 {
		return Revalidation{}, ErrEmptyUniverse
	}
	idx := parcel.Index(universe)
	anchor, ok := idx[s.anchorID]
	if !ok || anchor.IsOwnedByOther(viewerID) {
		return Revalidation{}, ErrAnchorLost
	}

	var kept []parcel.Parcel
	for _, id := range s.members {
		p, ok := idx[id]
		if !ok || p.IsOwnedByOther(viewerID) {
			continue
		}
		kept = append(kept, p)
	}

	keep := map[string]struct{}{s.anchorID: {}}
	axis := geometry.AxisOf(kept)
	if len(kept) >= 2 && axis != geometry.None {
		for _, id := range anchoredRun(kept, s.anchorID, axis, universe) {
			keep[id] = struct{}{}
		}
	}

	var rv Revalidation
	members := make([]string, 0, len(s.members))
	for _, id := range s.members {
		if _, ok := keep[id]; ok {
			members = append(members, id)
			continue
		}
		rv.Dropped = append(rv.Dropped, id)
	}
	s.members = members
	if len(members) < 2 {
		s.axis = geometry.None
	}
	return rv, nil
}

// anchoredRun returns the ids of the longest stretch of ps around the anchor where no
// non-member parcel of universe lies between neighbours.
func anchoredRun(ps []parcel.Parcel, anchorID string, axis geometry.Axis, universe []parcel.Parcel) []string {
	sorted := append([]parcel.Parcel(nil), ps...)
	geometry.SortAlong(sorted, axis)
	in := make(map[string]struct{}, len(sorted))
	k := 0
	for i, p := range sorted {
		in[p.ID] = struct{}{}
		if p.ID == anchorID {
			k = i
		}
	}
	joined := func(a, b parcel.Parcel) bool {
		for _, p := range geometry.Between(a, b, axis, universe) {
			if _, ok := in[p.ID]; !ok {
				return false
			}
		}
		return true
	}

	lo, hi := k, k
	for lo > 0 && joined(sorted[lo-1], sorted[lo]) {
		lo--
	}
	for hi < len(sorted)-1 && joined(sorted[hi], sorted[hi+1]) {
		hi++
	}
	return parcel.IDs(sorted[lo : hi+1])
}
