package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mxn2020/3d-community-sub001/internal/audit"
	"github.com/mxn2020/3d-community-sub001/internal/metrics"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/protocol"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

type fakeSource struct {
	mu    sync.Mutex
	plots map[string]parcel.Parcel
	order []string
}

func newFakeSource(ps ...parcel.Parcel) *fakeSource {
	f := &fakeSource{plots: map[string]parcel.Parcel{}}
	for _, p := range ps {
		f.plots[p.ID] = p
		f.order = append(f.order, p.ID)
	}
	return f
}

func (f *fakeSource) setOwner(id, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.plots[id]
	p.OwnerID = owner
	f.plots[id] = p
}

func (f *fakeSource) Anchor(ctx context.Context, id string) (parcel.Parcel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plots[id]
	if !ok {
		return parcel.Parcel{}, provider.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) Adjacent(ctx context.Context, id string) ([]parcel.Parcel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	anchor, ok := f.plots[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	var all []parcel.Parcel
	for _, pid := range f.order {
		all = append(all, f.plots[pid])
	}
	return provider.WithinReach(anchor, all, 36), nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memRecorder) RecordSelection(e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memRecorder) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

type harness struct {
	t    *testing.T
	conn *websocket.Conn
}

func startServer(t *testing.T, src provider.Source, opts ...Option) (*httptest.Server, func() *harness) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	srv := NewServer(provider.Fetcher{Source: src, Timeout: time.Second}, logger, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	dial := func() *harness {
		url := "ws" + strings.TrimPrefix(ts.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { _ = conn.Close() })
		return &harness{t: t, conn: conn}
	}
	return ts, dial
}

func (h *harness) send(v any) {
	h.t.Helper()
	if err := h.conn.WriteJSON(v); err != nil {
		h.t.Fatalf("write: %v", err)
	}
}

func (h *harness) read(v any) string {
	h.t.Helper()
	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := h.conn.ReadMessage()
	if err != nil {
		h.t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.t.Fatalf("decode: %v", err)
	}
	if v != nil {
		if err := json.Unmarshal(b, v); err != nil {
			h.t.Fatalf("unmarshal %s: %v", b, err)
		}
	}
	return base.Type
}

func open(anchor, viewer string) protocol.OpenMsg {
	return protocol.OpenMsg{Type: protocol.TypeOpen, ProtocolVersion: protocol.Version, AnchorID: anchor, ViewerID: viewer}
}

func toggle(ref, id string) protocol.ToggleMsg {
	return protocol.ToggleMsg{Type: protocol.TypeToggle, ProtocolVersion: protocol.Version, Ref: ref, ParcelID: id}
}

func TestServer_OpenToggleRefreshClose(t *testing.T) {
	src := newFakeSource(
		parcel.Parcel{ID: "A"},
		parcel.Parcel{ID: "B", Y: 12},
		parcel.Parcel{ID: "C", Y: 24},
		parcel.Parcel{ID: "D", X: 12, Y: 12},
	)
	rec := &memRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	_, dial := startServer(t, src, WithRecorder(rec), WithMetrics(m))
	h := dial()

	h.send(open("A", "alice"))
	var sess protocol.SessionMsg
	if typ := h.read(&sess); typ != protocol.TypeSession {
		t.Fatalf("expected SESSION, got %s", typ)
	}
	if sess.State.AnchorID != "A" || len(sess.Parcels) != 4 || sess.State.Orientation != "undetermined" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	h.send(toggle("r1", "C"))
	var res protocol.ResultMsg
	if typ := h.read(&res); typ != protocol.TypeResult {
		t.Fatalf("expected RESULT, got %s", typ)
	}
	if !res.Success || res.Ref != "r1" || len(res.AutoAdded) != 1 || res.AutoAdded[0] != "B" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.State.MemberIDs) != 3 || res.State.Orientation != "vertical" || len(res.Parcels) != 4 {
		t.Fatalf("unexpected state: %+v", res)
	}

	h.send(toggle("r2", "A"))
	res = protocol.ResultMsg{}
	h.read(&res)
	if res.Success || res.Reason != "ANCHOR_LOCKED" || res.Message == "" {
		t.Fatalf("expected anchor locked: %+v", res)
	}

	src.setOwner("B", "bob")
	h.send(protocol.BaseMessage{Type: protocol.TypeRefresh, ProtocolVersion: protocol.Version})
	var rv protocol.RevalidatedMsg
	if typ := h.read(&rv); typ != protocol.TypeRevalidated {
		t.Fatalf("expected REVALIDATED, got %s", typ)
	}
	if len(rv.Dropped) != 2 || len(rv.State.MemberIDs) != 1 {
		t.Fatalf("unexpected revalidation: %+v", rv)
	}

	h.send(protocol.BaseMessage{Type: protocol.TypeClose, ProtocolVersion: protocol.Version})
	_ = h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := h.conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close after CLOSE")
	}

	want := []string{audit.KindOpen, audit.KindToggle, audit.KindToggle, audit.KindRevalidate, audit.KindClose}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.kinds()) < len(want) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := rec.kinds(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("recorded kinds: %v", got)
	}
	if got := testutil.ToFloat64(m.Toggles.WithLabelValues("selected", "ok")); got != 1 {
		t.Fatalf("ok toggles metric: %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Fatalf("sessions active: %v", got)
	}
}

func TestServer_Errors(t *testing.T) {
	src := newFakeSource(parcel.Parcel{ID: "A"}, parcel.Parcel{ID: "B", X: 12})
	_, dial := startServer(t, src)
	h := dial()

	var e protocol.ErrorMsg
	h.send(toggle("r0", "B"))
	if typ := h.read(&e); typ != protocol.TypeError || e.Code != protocol.ErrNoSession || e.Ref != "r0" {
		t.Fatalf("expected E_NO_SESSION: %s %+v", typ, e)
	}

	h.send(protocol.OpenMsg{Type: protocol.TypeOpen, ProtocolVersion: "0.1", AnchorID: "A"})
	h.read(&e)
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("expected version error: %+v", e)
	}

	h.send(open("nope", "alice"))
	h.read(&e)
	if e.Code != protocol.ErrNotFound {
		t.Fatalf("expected not found: %+v", e)
	}

	h.send(open("A", "alice"))
	if typ := h.read(nil); typ != protocol.TypeSession {
		t.Fatalf("expected SESSION, got %s", typ)
	}
	h.send(open("A", "alice"))
	h.read(&e)
	if e.Code != protocol.ErrSessionOpen {
		t.Fatalf("expected session open error: %+v", e)
	}

	h.send(protocol.BaseMessage{Type: "DANCE", ProtocolVersion: protocol.Version})
	h.read(&e)
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("expected bad request: %+v", e)
	}

	var res protocol.ResultMsg
	h.send(protocol.ToggleMsg{Type: protocol.TypePreview, ProtocolVersion: protocol.Version, ParcelID: "zzz"})
	h.read(&res)
	if res.Success || !res.Preview || res.Reason != "UNKNOWN_PARCEL" {
		t.Fatalf("expected unknown parcel preview: %+v", res)
	}
}

func TestServer_RefreshAnchorLost(t *testing.T) {
	src := newFakeSource(parcel.Parcel{ID: "A"}, parcel.Parcel{ID: "B", X: 12})
	_, dial := startServer(t, src)
	h := dial()

	h.send(open("A", "alice"))
	h.read(nil)
	src.setOwner("A", "bob")
	h.send(protocol.BaseMessage{Type: protocol.TypeRefresh, ProtocolVersion: protocol.Version})
	var e protocol.ErrorMsg
	h.read(&e)
	if e.Code != protocol.ErrAnchorLost {
		t.Fatalf("expected anchor lost: %+v", e)
	}
	h.send(toggle("r1", "B"))
	h.read(&e)
	if e.Code != protocol.ErrNoSession {
		t.Fatalf("session should be closed: %+v", e)
	}
}

func TestServer_OpenForeignAnchor(t *testing.T) {
	src := newFakeSource(parcel.Parcel{ID: "A", OwnerID: "bob"}, parcel.Parcel{ID: "B", X: 12})
	rec := &memRecorder{}
	_, dial := startServer(t, src, WithRecorder(rec))
	h := dial()

	h.send(open("A", "alice"))
	var e protocol.ErrorMsg
	if typ := h.read(&e); typ != protocol.TypeError || e.Code != protocol.ErrAnchorLost {
		t.Fatalf("expected anchor lost on OPEN: %s %+v", typ, e)
	}
	h.send(toggle("r1", "B"))
	e = protocol.ErrorMsg{}
	h.read(&e)
	if e.Code != protocol.ErrNoSession {
		t.Fatalf("no session should be open: %+v", e)
	}
	if kinds := rec.kinds(); len(kinds) != 0 {
		t.Fatalf("nothing should be recorded: %v", kinds)
	}

	// The owner may open a flow on their own plot.
	h2 := dial()
	h2.send(open("A", "bob"))
	var sess protocol.SessionMsg
	if typ := h2.read(&sess); typ != protocol.TypeSession || sess.State.AnchorID != "A" {
		t.Fatalf("owner OPEN: %s %+v", typ, sess)
	}
}
