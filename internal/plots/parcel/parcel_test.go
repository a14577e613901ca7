package parcel

import (
	"strings"
	"testing"
)

func TestIsOwnedByOther(t *testing.T) {
	free := Parcel{ID: "P1"}
	mine := Parcel{ID: "P2", OwnerID: "alice"}
	theirs := Parcel{ID: "P3", OwnerID: "bob"}

	if free.IsOwned() || free.IsOwnedByOther("alice") {
		t.Fatalf("unowned parcel must be available")
	}
	if mine.IsOwnedByOther("alice") {
		t.Fatalf("viewer's own parcel is not foreign")
	}
	if !theirs.IsOwnedByOther("alice") {
		t.Fatalf("expected bob's parcel to be foreign for alice")
	}
	if !theirs.IsOwnedByOther("") {
		t.Fatalf("owned parcel is foreign to an anonymous viewer")
	}
}

func TestDecodeRecords(t *testing.T) {
	ps, err := DecodeRecords([]byte(`[
	  {"id":" A ","position":{"x":0,"y":0,"z":1.5}},
	  {"id":"B","position":{"x":12,"y":0},"owner_id":"bob"},
	  {"id":"C","position":{"x":24,"y":0},"owner_id":null}
	]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ps) != 3 {
		t.Fatalf("expected 3 parcels, got %d", len(ps))
	}
	if ps[0].ID != "A" || ps[0].Z != 1.5 {
		t.Fatalf("unexpected first parcel: %+v", ps[0])
	}
	if ps[1].OwnerID != "bob" || ps[2].OwnerID != "" {
		t.Fatalf("owner normalisation failed: %+v %+v", ps[1], ps[2])
	}
}

func TestDecodeRecords_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"not array":      `{"id":"A"}`,
		"missing pos":    `[{"id":"A"}]`,
		"blank id":       `[{"id":"   ","position":{"x":0,"y":0}}]`,
		"string coord":   `[{"id":"A","position":{"x":"0","y":0}}]`,
		"numeric owner":  `[{"id":"A","position":{"x":0,"y":0},"owner_id":7}]`,
		"duplicate ids":  `[{"id":"A","position":{"x":0,"y":0}},{"id":"A","position":{"x":12,"y":0}}]`,
	}
	for name, in := range cases {
		if _, err := DecodeRecords([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRecordRoundTripKeepsOwner(t *testing.T) {
	p := Parcel{ID: "A", X: 1, Y: 2, Z: 3, OwnerID: "bob"}
	r := ToRecord(p)
	if r.OwnerID == nil || *r.OwnerID != "bob" {
		t.Fatalf("owner lost: %+v", r)
	}
	if got := FromRecord(r); got != p {
		t.Fatalf("got %+v want %+v", got, p)
	}
	if ToRecord(Parcel{ID: "B"}).OwnerID != nil {
		t.Fatalf("unowned parcel should have nil owner")
	}
}

func TestIndexAndIDs(t *testing.T) {
	ps := []Parcel{{ID: "A"}, {ID: "B", X: 12}}
	idx := Index(ps)
	if idx["B"].X != 12 {
		t.Fatalf("index lookup failed")
	}
	if got := strings.Join(IDs(ps), ","); got != "A,B" {
		t.Fatalf("ids: %s", got)
	}
}
