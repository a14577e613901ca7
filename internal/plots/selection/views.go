package selection

import (
	"github.com/mxn2020/3d-community-sub001/internal/plots/access"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

// Status classifies a parcel for a selection surface.
type Status string

const (
	StatusAnchor       Status = "anchor"
	StatusMember       Status = "member"
	StatusAvailable    Status = "available"
	StatusOwnedByOther Status = "owned_by_other"
	StatusInaccessible Status = "inaccessible"
	StatusBlocked      Status = "blocked"
)

// View is what a selection surface needs to draw one parcel.
//
// For available parcels WouldAutoAdd lists the gap parcels selecting it would pull in.
// For members Reason is set when deselecting them is currently refused. BlockedBy names
// the foreign parcels cutting an inaccessible parcel off from the selection.
type View struct {
	ID           string
	Status       Status
	Reason       Reason
	WouldAutoAdd []string
	BlockedBy    []string
}

// Views returns one View per universe parcel, in universe order.
func (s *Session) Views(universe []parcel.Parcel, viewerID string) ([]View, error) {
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}
	idx := parcel.Index(universe)
	if err := s.checkAnchor(idx, viewerID); err != nil {
		return nil, err
	}
	current, err := s.resolve(idx)
	if err != nil {
		return nil, err
	}

	out := make([]View, 0, len(universe))
	for _, p := range universe {
		v := View{ID: p.ID}
		switch {
		case p.ID == s.anchorID:
			v.Status = StatusAnchor
			v.Reason = ReasonAnchorLocked
		case s.Contains(p.ID):
			v.Status = StatusMember
			if res, err := s.Preview(p.ID, universe, viewerID); err != nil {
				return nil, err
			} else if !res.Success {
				v.Reason = res.Reason
			}
		case p.IsOwnedByOther(viewerID):
			v.Status = StatusOwnedByOther
			v.Reason = ReasonOwnedByOther
		default:
			res, err := s.Preview(p.ID, universe, viewerID)
			if err != nil {
				return nil, err
			}
			switch {
			case res.Success:
				v.Status = StatusAvailable
				v.WouldAutoAdd = res.AutoAdded
			case res.Reason == ReasonNotAccessible:
				v.Status = StatusInaccessible
				v.Reason = res.Reason
				v.BlockedBy = parcel.IDs(access.Blockers(p, current, universe, viewerID))
			default:
				v.Status = StatusBlocked
				v.Reason = res.Reason
			}
		}
		out = append(out, v)
	}
	return out, nil
}
