package audit

import (
	"errors"
	"testing"
)

type sink struct {
	got []Event
	err error
}

func (s *sink) RecordSelection(e Event) error {
	s.got = append(s.got, e)
	return s.err
}

func TestMulti(t *testing.T) {
	a, b := &sink{}, &sink{err: errors.New("disk full")}
	m := Multi{a, nil, b}
	err := m.RecordSelection(Event{Kind: KindToggle, ParcelID: "P1"})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 || a.got[0].ParcelID != "P1" {
		t.Fatalf("fan-out failed: %+v %+v", a.got, b.got)
	}
	if err := (Multi{}).RecordSelection(Event{}); err != nil {
		t.Fatalf("empty multi: %v", err)
	}
}
