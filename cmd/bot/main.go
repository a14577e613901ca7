package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mxn2020/3d-community-sub001/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		anchor  = flag.String("anchor", "", "anchor parcel to open the purchase flow on")
		viewer  = flag.String("viewer", "bot", "viewer id")
		toggles = flag.String("toggle", "", "comma separated parcels to toggle in order")
		refresh = flag.Bool("refresh", false, "revalidate against fresh data after the toggles")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if strings.TrimSpace(*anchor) == "" {
		logger.Fatalf("missing -anchor")
	}
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := drive(conn, logger, *anchor, *viewer, splitIDs(*toggles), *refresh); err != nil {
		logger.Fatalf("%v", err)
	}
}

// transcript is what one scripted purchase flow saw.
type transcript struct {
	Session     protocol.SessionMsg
	Results     []protocol.ResultMsg
	Revalidated *protocol.RevalidatedMsg
}

// drive opens a flow on anchor, toggles each parcel in order, optionally refreshes, and
// closes the flow. Each server reply is awaited before the next request goes out.
func drive(conn *websocket.Conn, logger *log.Logger, anchor, viewer string, toggles []string, refresh bool) (transcript, error) {
	var tr transcript

	open := protocol.OpenMsg{
		Type:            protocol.TypeOpen,
		ProtocolVersion: protocol.Version,
		AnchorID:        anchor,
		ViewerID:        viewer,
	}
	if err := conn.WriteJSON(open); err != nil {
		return tr, fmt.Errorf("send OPEN: %w", err)
	}
	if err := await(conn, protocol.TypeSession, &tr.Session); err != nil {
		return tr, err
	}
	logger.Printf("SESSION id=%s anchor=%s parcels=%d", tr.Session.SessionID, tr.Session.State.AnchorID, len(tr.Session.Parcels))

	for i, id := range toggles {
		tm := protocol.ToggleMsg{
			Type:            protocol.TypeToggle,
			ProtocolVersion: protocol.Version,
			Ref:             fmt.Sprintf("T%d", i+1),
			ParcelID:        id,
		}
		if err := conn.WriteJSON(tm); err != nil {
			return tr, fmt.Errorf("send TOGGLE: %w", err)
		}
		var res protocol.ResultMsg
		if err := await(conn, protocol.TypeResult, &res); err != nil {
			return tr, err
		}
		tr.Results = append(tr.Results, res)
		if res.Success {
			logger.Printf("%s %s %s auto_added=%v members=%v", res.Ref, res.Action, res.ParcelID, res.AutoAdded, res.State.MemberIDs)
		} else {
			logger.Printf("%s %s %s rejected: %s (%s)", res.Ref, res.Action, res.ParcelID, res.Reason, res.Message)
		}
	}

	if refresh {
		if err := conn.WriteJSON(protocol.BaseMessage{Type: protocol.TypeRefresh, ProtocolVersion: protocol.Version}); err != nil {
			return tr, fmt.Errorf("send REFRESH: %w", err)
		}
		var rv protocol.RevalidatedMsg
		if err := await(conn, protocol.TypeRevalidated, &rv); err != nil {
			return tr, err
		}
		tr.Revalidated = &rv
		logger.Printf("REVALIDATED dropped=%v members=%v", rv.Dropped, rv.State.MemberIDs)
	}

	if err := conn.WriteJSON(protocol.BaseMessage{Type: protocol.TypeClose, ProtocolVersion: protocol.Version}); err != nil {
		return tr, fmt.Errorf("send CLOSE: %w", err)
	}
	return tr, nil
}

// await reads until a message of type want arrives and decodes it into v. An ERROR reply
// ends the wait.
func await(conn *websocket.Conn, want string, v any) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read %s: %w", want, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case want:
			return json.Unmarshal(msg, v)
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				return err
			}
			return errors.New(e.Code + ": " + e.Message)
		}
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
