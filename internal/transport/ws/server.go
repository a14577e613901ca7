package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mxn2020/3d-community-sub001/internal/audit"
	"github.com/mxn2020/3d-community-sub001/internal/metrics"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/plots/selection"
	"github.com/mxn2020/3d-community-sub001/internal/protocol"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

// Lookup resolves the universe of a purchase flow opened on anchorID.
type Lookup interface {
	Lookup(ctx context.Context, anchorID string) (provider.Universe, error)
}

type Server struct {
	lookup   Lookup
	log      *log.Logger
	metrics  *metrics.Metrics
	recorder audit.Recorder
	maxQueue int

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

func WithRecorder(r audit.Recorder) Option { return func(s *Server) { s.recorder = r } }

func WithMaxQueue(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxQueue = n
		}
	}
}

func NewServer(lookup Lookup, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		lookup:   lookup,
		log:      logger,
		maxQueue: 16,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// flow is the per-connection purchase flow: at most one open selection session and
// the universe snapshot it works against. Only the connection's reader loop touches it.
type flow struct {
	id       string
	viewerID string
	session  *selection.Session
	universe []parcel.Parcel
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, s.maxQueue)
		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		send := func(v any) {
			b, err := json.Marshal(v)
			if err != nil {
				s.log.Printf("ws: marshal: %v", err)
				return
			}
			select {
			case out <- b:
			case <-ctx.Done():
			default:
				// Client is not draining its queue.
				cancel()
			}
		}

		f := &flow{}
		defer func() {
			if f.session != nil {
				s.closeFlow(f, "")
			}
		}()

		// Reader loop.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if stop := s.handle(ctx, f, msg, send); stop {
				break
			}
		}

		// Let queued replies drain before closing.
		deadline := time.After(time.Second)
		for len(out) > 0 && ctx.Err() == nil {
			select {
			case <-deadline:
				cancel()
			case <-time.After(10 * time.Millisecond):
			}
		}
		cancel()
		<-done
	}
}

func (s *Server) handle(ctx context.Context, f *flow, msg []byte, send func(any)) (stop bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.sendError(send, "", protocol.ErrProtoBadRequest, "invalid json")
		return false
	}
	if base.ProtocolVersion != protocol.Version {
		s.sendError(send, "", protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
		return false
	}

	switch base.Type {
	case protocol.TypeOpen:
		var open protocol.OpenMsg
		if err := json.Unmarshal(msg, &open); err != nil {
			s.sendError(send, "", protocol.ErrProtoBadRequest, "bad OPEN")
			return false
		}
		s.open(ctx, f, open, send)
	case protocol.TypeToggle, protocol.TypePreview:
		var tm protocol.ToggleMsg
		if err := json.Unmarshal(msg, &tm); err != nil {
			s.sendError(send, "", protocol.ErrProtoBadRequest, "bad "+base.Type)
			return false
		}
		s.toggle(f, tm, base.Type == protocol.TypePreview, send)
	case protocol.TypeRefresh:
		s.refresh(ctx, f, send)
	case protocol.TypeClose:
		if f.session != nil {
			s.closeFlow(f, "")
		}
		return true
	default:
		s.sendError(send, "", protocol.ErrProtoBadRequest, fmt.Sprintf("unknown type %q", base.Type))
	}
	return false
}

func (s *Server) open(ctx context.Context, f *flow, open protocol.OpenMsg, send func(any)) {
	if f.session != nil {
		s.sendError(send, "", protocol.ErrSessionOpen, "a purchase flow is already open on this connection")
		return
	}
	anchorID := strings.TrimSpace(open.AnchorID)
	if anchorID == "" {
		s.sendError(send, "", protocol.ErrBadRequest, "missing anchor_id")
		return
	}

	u, ok := s.fetch(ctx, anchorID, send)
	if !ok {
		return
	}
	viewerID := strings.TrimSpace(open.ViewerID)
	universe := u.All()
	sess, err := selection.Open(u.Anchor.ID, universe, viewerID)
	if errors.Is(err, selection.ErrAnchorLost) {
		s.sendError(send, "", protocol.ErrAnchorLost, "plot "+u.Anchor.ID+" is owned by someone else")
		return
	}
	if err != nil {
		s.sendError(send, "", protocol.ErrInternal, err.Error())
		return
	}

	f.id = fmt.Sprintf("S%d", s.nextID.Add(1))
	f.viewerID = viewerID
	f.session = sess
	f.universe = universe
	s.metrics.SessionOpened()

	views, err := sess.Views(f.universe, f.viewerID)
	if err != nil {
		s.sendError(send, "", protocol.ErrInternal, err.Error())
		return
	}
	send(protocol.SessionMsg{
		Type:            protocol.TypeSession,
		ProtocolVersion: protocol.Version,
		SessionID:       f.id,
		State:           protocol.NewStateView(sess.State()),
		Parcels:         protocol.NewParcelViews(views, f.universe),
	})
	s.record(f, audit.Event{Kind: audit.KindOpen, Success: true})
}

func (s *Server) toggle(f *flow, tm protocol.ToggleMsg, preview bool, send func(any)) {
	if f.session == nil {
		s.sendError(send, tm.Ref, protocol.ErrNoSession, "send OPEN first")
		return
	}
	var (
		res selection.Result
		err error
	)
	if preview {
		res, err = f.session.Preview(tm.ParcelID, f.universe, f.viewerID)
	} else {
		res, err = f.session.Toggle(tm.ParcelID, f.universe, f.viewerID)
	}
	if err != nil {
		s.log.Printf("ws: session %s: %v", f.id, err)
		s.sendError(send, tm.Ref, protocol.ErrInternal, err.Error())
		return
	}

	msg := protocol.NewResultMsg(tm.Ref, preview, res, f.session.State())
	if !preview {
		s.metrics.ObserveToggle(string(res.Action), res.Success, string(res.Reason), len(res.AutoAdded))
		if res.Success {
			views, err := f.session.Views(f.universe, f.viewerID)
			if err != nil {
				s.sendError(send, tm.Ref, protocol.ErrInternal, err.Error())
				return
			}
			msg.Parcels = protocol.NewParcelViews(views, f.universe)
		}
		s.record(f, audit.Event{
			Kind:      audit.KindToggle,
			ParcelID:  res.ParcelID,
			Action:    string(res.Action),
			Success:   res.Success,
			Reason:    string(res.Reason),
			AutoAdded: res.AutoAdded,
		})
	}
	send(msg)
}

func (s *Server) refresh(ctx context.Context, f *flow, send func(any)) {
	if f.session == nil {
		s.sendError(send, "", protocol.ErrNoSession, "send OPEN first")
		return
	}
	u, ok := s.fetch(ctx, f.session.AnchorID(), send)
	if !ok {
		return
	}
	universe := u.All()
	rv, err := f.session.Revalidate(universe, f.viewerID)
	if errors.Is(err, selection.ErrAnchorLost) {
		s.sendError(send, "", protocol.ErrAnchorLost, "the plot this purchase started from is no longer available")
		s.closeFlow(f, protocol.ErrAnchorLost)
		return
	}
	if err != nil {
		s.sendError(send, "", protocol.ErrInternal, err.Error())
		return
	}
	f.universe = universe
	s.metrics.Dropped(len(rv.Dropped))

	views, err := f.session.Views(f.universe, f.viewerID)
	if err != nil {
		s.sendError(send, "", protocol.ErrInternal, err.Error())
		return
	}
	dropped := rv.Dropped
	if dropped == nil {
		dropped = []string{}
	}
	send(protocol.RevalidatedMsg{
		Type:            protocol.TypeRevalidated,
		ProtocolVersion: protocol.Version,
		SessionID:       f.id,
		Dropped:         dropped,
		State:           protocol.NewStateView(f.session.State()),
		Parcels:         protocol.NewParcelViews(views, f.universe),
	})
	s.record(f, audit.Event{Kind: audit.KindRevalidate, Success: true, Dropped: rv.Dropped})
}

func (s *Server) fetch(ctx context.Context, anchorID string, send func(any)) (provider.Universe, bool) {
	start := time.Now()
	u, err := s.lookup.Lookup(ctx, anchorID)
	s.metrics.ObserveLookup(time.Since(start))
	if errors.Is(err, provider.ErrNotFound) {
		s.sendError(send, "", protocol.ErrNotFound, err.Error())
		return provider.Universe{}, false
	}
	if err != nil {
		s.log.Printf("ws: lookup %s: %v", anchorID, err)
		s.sendError(send, "", protocol.ErrLookupFailed, "could not load the plots around "+anchorID)
		return provider.Universe{}, false
	}
	return u, true
}

func (s *Server) closeFlow(f *flow, reason string) {
	s.record(f, audit.Event{Kind: audit.KindClose, Success: reason == "", Reason: reason})
	s.metrics.SessionClosed()
	f.session = nil
	f.universe = nil
}

func (s *Server) record(f *flow, e audit.Event) {
	if s.recorder == nil || f.session == nil {
		return
	}
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	e.SessionID = f.id
	e.AnchorID = f.session.AnchorID()
	e.ViewerID = f.viewerID
	e.Members = f.session.Members()
	if err := s.recorder.RecordSelection(e); err != nil {
		s.log.Printf("ws: record %s: %v", e.Kind, err)
	}
}

func (s *Server) sendError(send func(any), ref, code, message string) {
	s.metrics.ProtocolError(code)
	send(protocol.NewErrorMsg(ref, code, message))
}
