package protocol

import (
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
)

// OPEN (client -> server)
type OpenMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AnchorID        string `json:"anchor_id"`
	ViewerID        string `json:"viewer_id"`
}

// TOGGLE / PREVIEW (client -> server)
type ToggleMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	ParcelID        string `json:"parcel_id"`
}

// SESSION (server -> client)
type SessionMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	State           StateView    `json:"state"`
	Parcels         []ParcelView `json:"parcels"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Ref             string       `json:"ref,omitempty"`
	Preview         bool         `json:"preview,omitempty"`
	Success         bool         `json:"success"`
	Action          string       `json:"action"`
	ParcelID        string       `json:"parcel_id"`
	AutoAdded       []string     `json:"auto_added"`
	Reason          string       `json:"reason,omitempty"`
	Message         string       `json:"message,omitempty"`
	State           StateView    `json:"state"`
	Parcels         []ParcelView `json:"parcels,omitempty"`
}

// REVALIDATED (server -> client)
type RevalidatedMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Dropped         []string     `json:"dropped"`
	State           StateView    `json:"state"`
	Parcels         []ParcelView `json:"parcels"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

type StateView struct {
	AnchorID    string   `json:"anchor_id"`
	MemberIDs   []string `json:"member_ids"`
	Orientation string   `json:"orientation"`
}

type ParcelView struct {
	ID           string   `json:"id"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Z            float64  `json:"z"`
	Status       string   `json:"status"`
	Reason       string   `json:"reason,omitempty"`
	WouldAutoAdd []string `json:"would_auto_add,omitempty"`
	BlockedBy    []string `json:"blocked_by,omitempty"`
}

func NewStateView(st selection.State) StateView {
	return StateView{
		AnchorID:    st.AnchorID,
		MemberIDs:   st.MemberIDs,
		Orientation: st.Orientation.String(),
	}
}

func NewResultMsg(ref string, preview bool, res selection.Result, st selection.State) ResultMsg {
	auto := res.AutoAdded
	if auto == nil {
		auto = []string{}
	}
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		Ref:             ref,
		Preview:         preview,
		Success:         res.Success,
		Action:          string(res.Action),
		ParcelID:        res.ParcelID,
		AutoAdded:       auto,
		Reason:          string(res.Reason),
		Message:         res.Reason.Message(),
		State:           NewStateView(st),
	}
}

func NewErrorMsg(ref, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		Ref:             ref,
		Code:            code,
		Message:         message,
	}
}

func NewParcelViews(views []selection.View, universe []parcel.Parcel) []ParcelView {
	idx := parcel.Index(universe)
	out := make([]ParcelView, 0, len(views))
	for _, v := range views {
		p := idx[v.ID]
		out = append(out, ParcelView{
			ID:           v.ID,
			X:            p.X,
			Y:            p.Y,
			Z:            p.Z,
			Status:       string(v.Status),
			Reason:       string(v.Reason),
			WouldAutoAdd: v.WouldAutoAdd,
			BlockedBy:    v.BlockedBy,
		})
	}
	return out
}
