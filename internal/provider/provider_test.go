package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

type stubSource struct {
	anchor    parcel.Parcel
	adjacent  []parcel.Parcel
	anchorErr error
	inflight  atomic.Int32
	peak      atomic.Int32
}

func (s *stubSource) enter() func() {
	n := s.inflight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return func() { s.inflight.Add(-1) }
}

func (s *stubSource) Anchor(ctx context.Context, id string) (parcel.Parcel, error) {
	defer s.enter()()
	if s.anchorErr != nil {
		return parcel.Parcel{}, s.anchorErr
	}
	return s.anchor, nil
}

func (s *stubSource) Adjacent(ctx context.Context, id string) ([]parcel.Parcel, error) {
	defer s.enter()()
	return s.adjacent, nil
}

func TestFetcherLookup(t *testing.T) {
	src := &stubSource{
		anchor:   parcel.Parcel{ID: "A"},
		adjacent: []parcel.Parcel{{ID: "B", X: 12}, {ID: "A"}, {ID: "B", X: 12}, {ID: "C", X: 24}},
	}
	u, err := Fetcher{Source: src, Timeout: time.Second}.Lookup(context.Background(), " A ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.Anchor.ID != "A" || len(u.Candidates) != 2 {
		t.Fatalf("unexpected universe: %+v", u)
	}
	if all := u.All(); len(all) != 3 || all[0].ID != "A" {
		t.Fatalf("all: %+v", all)
	}
	if src.peak.Load() != 2 {
		t.Fatalf("expected both lookups in flight together, peak=%d", src.peak.Load())
	}
}

func TestFetcherLookup_Errors(t *testing.T) {
	if _, err := (Fetcher{Source: &stubSource{}}).Lookup(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty anchor")
	}
	if _, err := (Fetcher{}).Lookup(context.Background(), "A"); err == nil {
		t.Fatalf("expected error without source")
	}
	src := &stubSource{anchorErr: ErrNotFound}
	if _, err := (Fetcher{Source: src}).Lookup(context.Background(), "A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithinReach(t *testing.T) {
	anchor := parcel.Parcel{ID: "A"}
	ps := []parcel.Parcel{anchor, {ID: "B", X: 36}, {ID: "C", X: 48}, {ID: "D", X: 12, Y: -36.2}}
	got := WithinReach(anchor, ps, 36)
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "D" {
		t.Fatalf("unexpected: %+v", got)
	}
}
