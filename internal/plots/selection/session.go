package selection

import (
	"fmt"
	"strings"

	"github.com/mxn2020/3d-community-sub001/internal/plots/access"
	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

// MaxPlots caps how many parcels one purchase may include, anchor included.
const MaxPlots = 4

// Action is what a toggle does to the selection: add the parcel or remove it.
type Action string

const (
	ActionSelected   Action = "selected"
	ActionDeselected Action = "deselected"
)

// Result reports one toggle: on success the parcel and any auto-added gap parcels
// joined or left the selection, otherwise Reason says why nothing changed.
type Result struct {
	Success   bool
	Action    Action
	ParcelID  string
	AutoAdded []string
	Reason    Reason
}

// State is the snapshot a surface renders and a purchase submits; MemberIDs lists the
// anchor first.
type State struct {
	AnchorID    string
	MemberIDs   []string
	Orientation geometry.Axis
}

// Session holds the selection of one purchase flow. It is not safe for concurrent use;
// the owner of the flow serialises calls.
type Session struct {
	anchorID string
	members  []string
	axis     geometry.Axis
}

// New starts a session holding only anchorID. Use Open when the universe is at hand.
func New(anchorID string) (*Session, error) {
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return nil, ErrEmptyAnchor
	}
	return &Session{anchorID: anchorID, members: []string{anchorID}}, nil
}

// Open starts a session on anchorID after checking it against universe: the anchor must
// be present and must not belong to someone other than viewerID.
func Open(anchorID string, universe []parcel.Parcel, viewerID string) (*Session, error) {
	s, err := New(anchorID)
	if err != nil {
		return nil, err
	}
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}
	idx := parcel.Index(universe)
	if err := s.checkAnchor(idx, viewerID); err != nil {
		return nil, err
	}
	if _, err := s.resolve(idx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) AnchorID() string { return s.anchorID }

func (s *Session) Len() int { return len(s.members) }

func (s *Session) Members() []string { return append([]string(nil), s.members...) }

// Orientation is derived from the members at the last change; a lone anchor is undetermined.
func (s *Session) Orientation() geometry.Axis {
	if len(s.members) < 2 {
		return geometry.None
	}
	return s.axis
}

func (s *Session) Contains(id string) bool {
	for _, m := range s.members {
		if m == id {
			return true
		}
	}
	return false
}

func (s *Session) State() State {
	return State{
		AnchorID:    s.anchorID,
		MemberIDs:   s.Members(),
		Orientation: s.Orientation(),
	}
}

// Toggle selects parcelID when it is not a member and deselects it otherwise. A
// rejected toggle leaves the session untouched. The error return is reserved for
// caller contract violations such as an empty universe.
func (s *Session) Toggle(parcelID string, universe []parcel.Parcel, viewerID string) (Result, error) {
	p, err := s.plan(parcelID, universe, viewerID)
	if err != nil {
		return Result{}, err
	}
	if p.result.Success {
		s.members = p.members
		s.axis = p.axis
	}
	return p.result, nil
}

// Preview reports what Toggle would do without changing the session.
func (s *Session) Preview(parcelID string, universe []parcel.Parcel, viewerID string) (Result, error) {
	p, err := s.plan(parcelID, universe, viewerID)
	if err != nil {
		return Result{}, err
	}
	return p.result, nil
}

type plan struct {
	result  Result
	members []string
	axis    geometry.Axis
}

func reject(action Action, id string, reason Reason) plan {
	return plan{result: Result{Action: action, ParcelID: id, Reason: reason}}
}

func (s *Session) plan(parcelID string, universe []parcel.Parcel, viewerID string) (plan, error) {
	if len(universe) == 0 {
		return plan{}, ErrEmptyUniverse
	}
	idx := parcel.Index(universe)
	if err := s.checkAnchor(idx, viewerID); err != nil {
		return plan{}, err
	}
	current, err := s.resolve(idx)
	if err != nil {
		return plan{}, err
	}
	parcelID = strings.TrimSpace(parcelID)
	target, ok := idx[parcelID]
	if !ok {
		// Every member resolved above, so an unknown id is never a member.
		return reject(ActionSelected, parcelID, ReasonUnknownParcel), nil
	}
	if s.Contains(parcelID) {
		return s.planDeselect(target, current), nil
	}
	return s.planSelect(target, current, universe, viewerID), nil
}

// checkAnchor fails with ErrAnchorLost when the anchor is held by someone other than
// viewerID. A missing anchor is left to resolve.
func (s *Session) checkAnchor(idx map[string]parcel.Parcel, viewerID string) error {
	if a, ok := idx[s.anchorID]; ok && a.IsOwnedByOther(viewerID) {
		return fmt.Errorf("%w: %s is owned by %s", ErrAnchorLost, a.ID, a.OwnerID)
	}
	return nil
}

func (s *Session) resolve(idx map[string]parcel.Parcel) ([]parcel.Parcel, error) {
	out := make([]parcel.Parcel, 0, len(s.members))
	for _, id := range s.members {
		p, ok := idx[id]
		if !ok {
			if id == s.anchorID {
				return nil, fmt.Errorf("%w: %s", ErrAnchorNotInUniverse, id)
			}
			return nil, fmt.Errorf("%w: %s", ErrMemberNotInUniverse, id)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) planDeselect(target parcel.Parcel, current []parcel.Parcel) plan {
	if target.ID == s.anchorID {
		return reject(ActionDeselected, target.ID, ReasonAnchorLocked)
	}

	remaining := make([]parcel.Parcel, 0, len(current)-1)
	for _, p := range current {
		if p.ID != target.ID {
			remaining = append(remaining, p)
		}
	}

	axis := geometry.AxisOf(current)
	if len(remaining) >= 2 && axis != geometry.None {
		lo, hi := spanOf(remaining, axis)
		v := geometry.Along(target, axis)
		if v > lo+geometry.Epsilon && v < hi-geometry.Epsilon {
			return reject(ActionDeselected, target.ID, ReasonWouldCreateGap)
		}
	}

	next := plan{
		result:  Result{Success: true, Action: ActionDeselected, ParcelID: target.ID, AutoAdded: []string{}},
		members: parcel.IDs(remaining),
	}
	if len(remaining) >= 2 {
		next.axis = axis
	}
	return next
}

func (s *Session) planSelect(target parcel.Parcel, current, universe []parcel.Parcel, viewerID string) plan {
	if len(current) >= MaxPlots {
		return reject(ActionSelected, target.ID, ReasonMaxPlotsReached)
	}
	if target.IsOwnedByOther(viewerID) {
		return reject(ActionSelected, target.ID, ReasonOwnedByOther)
	}
	if !access.IsAccessible(target, current, universe, viewerID) {
		return reject(ActionSelected, target.ID, ReasonNotAccessible)
	}

	joined := append(append(make([]parcel.Parcel, 0, len(current)+1), current...), target)
	if !geometry.Collinear(joined) {
		return reject(ActionSelected, target.ID, ReasonNotCollinear)
	}
	axis := geometry.AxisOf(joined)
	if axis == geometry.None {
		return reject(ActionSelected, target.ID, ReasonNotCollinear)
	}

	added, foreign := gapFill(joined, axis, universe, viewerID)
	if foreign {
		return reject(ActionSelected, target.ID, ReasonNotAccessible)
	}
	if len(joined)+len(added) > MaxPlots {
		return reject(ActionSelected, target.ID, ReasonWouldExceedMaxWithAutofill)
	}

	members := append(parcel.IDs(current), target.ID)
	members = append(members, parcel.IDs(added)...)
	return plan{
		result: Result{
			Success:   true,
			Action:    ActionSelected,
			ParcelID:  target.ID,
			AutoAdded: parcel.IDs(added),
		},
		members: members,
		axis:    axis,
	}
}

// gapFill returns the universe parcels lying strictly inside the span of members that
// are not members yet, ordered along axis. foreign is set when one of them is held by
// someone other than viewerID; such a parcel never joins a selection silently.
func gapFill(members []parcel.Parcel, axis geometry.Axis, universe []parcel.Parcel, viewerID string) (added []parcel.Parcel, foreign bool) {
	sorted := append([]parcel.Parcel(nil), members...)
	geometry.SortAlong(sorted, axis)

	in := make(map[string]struct{}, len(sorted))
	for _, p := range sorted {
		in[p.ID] = struct{}{}
	}
	added = []parcel.Parcel{}
	for i := 0; i+1 < len(sorted); i++ {
		for _, p := range geometry.Between(sorted[i], sorted[i+1], axis, universe) {
			if _, ok := in[p.ID]; ok {
				continue
			}
			if p.IsOwnedByOther(viewerID) {
				return nil, true
			}
			in[p.ID] = struct{}{}
			added = append(added, p)
		}
	}
	return added, false
}

func spanOf(ps []parcel.Parcel, axis geometry.Axis) (lo, hi float64) {
	lo, hi = geometry.Along(ps[0], axis), geometry.Along(ps[0], axis)
	for _, p := range ps[1:] {
		v := geometry.Along(p, axis)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
