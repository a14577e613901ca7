package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mxn2020/3d-community-sub001/internal/plots/geometry"
	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
)

var ErrNotFound = errors.New("parcel not found")

// Source answers the two lookups a purchase flow needs before it can start.
type Source interface {
	Anchor(ctx context.Context, anchorID string) (parcel.Parcel, error)
	Adjacent(ctx context.Context, anchorID string) ([]parcel.Parcel, error)
}

// Universe is the immutable snapshot one selection session works against.
type Universe struct {
	Anchor     parcel.Parcel
	Candidates []parcel.Parcel
}

func (u Universe) All() []parcel.Parcel {
	out := make([]parcel.Parcel, 0, len(u.Candidates)+1)
	out = append(out, u.Anchor)
	return append(out, u.Candidates...)
}

type Fetcher struct {
	Source  Source
	Timeout time.Duration
}

// Lookup runs the anchor and adjacency lookups concurrently and returns once both resolve.
func (f Fetcher) Lookup(ctx context.Context, anchorID string) (Universe, error) {
	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return Universe{}, fmt.Errorf("lookup: empty anchor id")
	}
	if f.Source == nil {
		return Universe{}, fmt.Errorf("lookup: no source")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var (
		anchor     parcel.Parcel
		candidates []parcel.Parcel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := f.Source.Anchor(gctx, anchorID)
		if err != nil {
			return fmt.Errorf("anchor %s: %w", anchorID, err)
		}
		anchor = p
		return nil
	})
	g.Go(func() error {
		ps, err := f.Source.Adjacent(gctx, anchorID)
		if err != nil {
			return fmt.Errorf("adjacent %s: %w", anchorID, err)
		}
		candidates = ps
		return nil
	})
	if err := g.Wait(); err != nil {
		return Universe{}, err
	}

	seen := map[string]struct{}{anchor.ID: {}}
	out := make([]parcel.Parcel, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return Universe{Anchor: anchor, Candidates: out}, nil
}

// WithinReach returns the parcels of ps, other than the anchor, whose x and y both lie
// within reach of the anchor.
func WithinReach(anchor parcel.Parcel, ps []parcel.Parcel, reach float64) []parcel.Parcel {
	var out []parcel.Parcel
	for _, p := range ps {
		if p.ID == anchor.ID {
			continue
		}
		if math.Abs(p.X-anchor.X) > reach+geometry.Epsilon || math.Abs(p.Y-anchor.Y) > reach+geometry.Epsilon {
			continue
		}
		out = append(out, p)
	}
	return out
}
