package audit

import "errors"

const (
	KindOpen       = "OPEN"
	KindToggle     = "TOGGLE"
	KindRevalidate = "REVALIDATE"
	KindClose      = "CLOSE"
)

// Event is one outcome of a purchase-flow selection session.
type Event struct {
	Time      string   `json:"time"`
	SessionID string   `json:"session_id"`
	Kind      string   `json:"kind"`
	AnchorID  string   `json:"anchor_id"`
	ViewerID  string   `json:"viewer_id,omitempty"`
	ParcelID  string   `json:"parcel_id,omitempty"`
	Action    string   `json:"action,omitempty"`
	Success   bool     `json:"success"`
	Reason    string   `json:"reason,omitempty"`
	AutoAdded []string `json:"auto_added,omitempty"`
	Dropped   []string `json:"dropped,omitempty"`
	Members   []string `json:"members"`
}

type Recorder interface {
	RecordSelection(e Event) error
}

// Multi fans one event out to every non-nil recorder.
type Multi []Recorder

func (m Multi) RecordSelection(e Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordSelection(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
