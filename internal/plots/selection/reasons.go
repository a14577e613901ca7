package selection

import "errors"

// Reason names why a toggle was rejected. Rejections are ordinary outcomes: the
// session is left exactly as it was.
type Reason string

const (
	ReasonNone                       Reason = ""
	ReasonAnchorLocked               Reason = "ANCHOR_LOCKED"
	ReasonWouldCreateGap             Reason = "WOULD_CREATE_GAP"
	ReasonMaxPlotsReached            Reason = "MAX_PLOTS_REACHED"
	ReasonOwnedByOther               Reason = "OWNED_BY_OTHER"
	ReasonNotAccessible              Reason = "NOT_ACCESSIBLE"
	ReasonNotCollinear               Reason = "NOT_COLLINEAR"
	ReasonWouldExceedMaxWithAutofill Reason = "WOULD_EXCEED_MAX_WITH_AUTOFILL"
	ReasonUnknownParcel              Reason = "UNKNOWN_PARCEL"
)

var reasonMessages = map[Reason]string{
	ReasonAnchorLocked:               "The plot you started from is always part of the purchase.",
	ReasonWouldCreateGap:             "Removing this plot would leave a gap between the selected plots.",
	ReasonMaxPlotsReached:            "You can buy at most 4 plots at once.",
	ReasonOwnedByOther:               "This plot already belongs to someone else.",
	ReasonNotAccessible:              "This plot cannot be reached from your selection without crossing someone else's plot.",
	ReasonNotCollinear:               "Selected plots must form a single straight row or column.",
	ReasonWouldExceedMaxWithAutofill: "Filling the gap to this plot would take the selection past 4 plots.",
	ReasonUnknownParcel:              "This plot is not part of the current selection area.",
}

func (r Reason) Message() string { return reasonMessages[r] }

func (r Reason) Known() bool {
	_, ok := reasonMessages[r]
	return ok
}

func AllReasons() []Reason {
	return []Reason{
		ReasonAnchorLocked,
		ReasonWouldCreateGap,
		ReasonMaxPlotsReached,
		ReasonOwnedByOther,
		ReasonNotAccessible,
		ReasonNotCollinear,
		ReasonWouldExceedMaxWithAutofill,
		ReasonUnknownParcel,
	}
}

// Caller contract violations. These indicate a bug in the caller, not a user action.
var (
	ErrEmptyAnchor         = errors.New("selection: empty anchor id")
	ErrEmptyUniverse       = errors.New("selection: empty universe")
	ErrAnchorNotInUniverse = errors.New("selection: anchor missing from universe")
	ErrMemberNotInUniverse = errors.New("selection: member missing from universe")
	ErrAnchorLost          = errors.New("selection: anchor no longer available")
)
