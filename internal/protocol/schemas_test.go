package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
	"github.com/mxn2020/3d-community-sub001/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	openSchema := compile("open.schema.json")
	toggleSchema := compile("toggle.schema.json")
	sessionSchema := compile("session.schema.json")
	resultSchema := compile("result.schema.json")
	errorSchema := compile("error.schema.json")

	validate(openSchema, protocol.OpenMsg{Type: protocol.TypeOpen, ProtocolVersion: protocol.Version, AnchorID: "P1", ViewerID: "alice"})
	validate(toggleSchema, protocol.ToggleMsg{Type: protocol.TypeToggle, ProtocolVersion: protocol.Version, Ref: "r1", ParcelID: "P2"})
	validate(toggleSchema, protocol.ToggleMsg{Type: protocol.TypePreview, ProtocolVersion: protocol.Version, ParcelID: "P2"})

	universe := []parcel.Parcel{
		{ID: "A"},
		{ID: "B", X: 12},
		{ID: "C", X: 24},
		{ID: "W", Y: 12, OwnerID: "bob"},
	}
	s, err := selection.New("A")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := s.Toggle("C", universe, "alice")
	if err != nil || !res.Success {
		t.Fatalf("toggle: %+v %v", res, err)
	}
	views, err := s.Views(universe, "alice")
	if err != nil {
		t.Fatalf("views: %v", err)
	}

	validate(sessionSchema, protocol.SessionMsg{
		Type:            protocol.TypeSession,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		State:           protocol.NewStateView(s.State()),
		Parcels:         protocol.NewParcelViews(views, universe),
	})
	validate(sessionSchema, protocol.RevalidatedMsg{
		Type:            protocol.TypeRevalidated,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		Dropped:         []string{},
		State:           protocol.NewStateView(s.State()),
		Parcels:         protocol.NewParcelViews(views, universe),
	})

	validate(resultSchema, protocol.NewResultMsg("r1", false, res, s.State()))
	rejected, err := s.Toggle("A", universe, "alice")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	validate(resultSchema, protocol.NewResultMsg("r2", false, rejected, s.State()))

	validate(errorSchema, protocol.NewErrorMsg("", protocol.ErrNoSession, "send OPEN first"))
}
