package access

import (
	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

// IsAccessible reports whether candidate can be reached from the selection along an
// aligned line that crosses no parcel held by someone other than viewerID. Members of
// the selection (the anchor included) are always accessible. The result depends on the
// current selection and must not be cached across toggles.
func IsAccessible(candidate parcel.Parcel, selection, universe []parcel.Parcel, viewerID string) bool {
	members := memberSet(selection)
	if _, ok := members[candidate.ID]; ok {
		return true
	}
	for _, m := range selection {
		axis, ok := geometry.Aligned(candidate, m)
		if !ok {
			continue
		}
		if !walled(candidate, m, axis, universe, members, viewerID) {
			return true
		}
	}
	return false
}

// Blockers lists the foreign-owned parcels standing between candidate and each aligned
// member, deduplicated and in universe order.
func Blockers(candidate parcel.Parcel, selection, universe []parcel.Parcel, viewerID string) []parcel.Parcel {
	members := memberSet(selection)
	seen := map[string]struct{}{}
	var out []parcel.Parcel
	for _, m := range selection {
		axis, ok := geometry.Aligned(candidate, m)
		if !ok {
			continue
		}
		for _, p := range geometry.Between(candidate, m, axis, universe) {
			if !blocks(p, members, viewerID) {
				continue
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func walled(candidate, m parcel.Parcel, axis geometry.Axis, universe []parcel.Parcel, members map[string]struct{}, viewerID string) bool {
	for _, p := range geometry.Between(candidate, m, axis, universe) {
		if blocks(p, members, viewerID) {
			return true
		}
	}
	return false
}

func blocks(p parcel.Parcel, members map[string]struct{}, viewerID string) bool {
	if _, ok := members[p.ID]; ok {
		return false
	}
	return p.IsOwnedByOther(viewerID)
}

func memberSet(selection []parcel.Parcel) map[string]struct{} {
	out := make(map[string]struct{}, len(selection))
	for _, p := range selection {
		out[p.ID] = struct{}{}
	}
	return out
}
