package community

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mxn2020/3d-community-sub001/internal/plots/parcel"
	"github.com/mxn2020/3d-community-sub001/internal/provider"
)

const DefaultPitch = 12

// Map is a community layout: every plot with its grid position and current owner.
type Map struct {
	ID    string
	Pitch float64
	Plots []parcel.Parcel
}

type file struct {
	ID    string  `yaml:"id"`
	Pitch float64 `yaml:"pitch"`
	Plots any     `yaml:"plots"`
}

func Load(path string) (Map, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Map{}, err
	}
	m, err := Parse(b)
	if err != nil {
		return Map{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a YAML community map. Plot records go through the same validation as
// any other parcel feed.
func Parse(b []byte) (Map, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Map{}, fmt.Errorf("community map: %w", err)
	}
	if strings.TrimSpace(f.ID) == "" {
		return Map{}, fmt.Errorf("community map: missing id")
	}
	if f.Plots == nil {
		f.Plots = []any{}
	}
	raw, err := json.Marshal(f.Plots)
	if err != nil {
		return Map{}, fmt.Errorf("community map: plots: %w", err)
	}
	plots, err := parcel.DecodeRecords(raw)
	if err != nil {
		return Map{}, fmt.Errorf("community map: %w", err)
	}
	m := Map{ID: strings.TrimSpace(f.ID), Pitch: f.Pitch, Plots: plots}
	if m.Pitch <= 0 {
		m.Pitch = DefaultPitch
	}
	return m, nil
}

func (m Map) Encode() ([]byte, error) {
	recs := make([]parcel.Record, 0, len(m.Plots))
	for _, p := range m.Plots {
		recs = append(recs, parcel.ToRecord(p))
	}
	return yaml.Marshal(struct {
		ID    string          `yaml:"id"`
		Pitch float64         `yaml:"pitch"`
		Plots []parcel.Record `yaml:"plots"`
	}{ID: m.ID, Pitch: m.Pitch, Plots: recs})
}

// Source serves the map as an in-memory data provider. Adjacent plots are those within
// reach of the anchor on both axes.
func (m Map) Source(reach float64) provider.Source {
	return &mapSource{plots: append([]parcel.Parcel(nil), m.Plots...), byID: parcel.Index(m.Plots), reach: reach}
}

type mapSource struct {
	plots []parcel.Parcel
	byID  map[string]parcel.Parcel
	reach float64
}

func (s *mapSource) Anchor(ctx context.Context, anchorID string) (parcel.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return parcel.Parcel{}, err
	}
	p, ok := s.byID[anchorID]
	if !ok {
		return parcel.Parcel{}, fmt.Errorf("%w: %s", provider.ErrNotFound, anchorID)
	}
	return p, nil
}

func (s *mapSource) Adjacent(ctx context.Context, anchorID string) ([]parcel.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	anchor, ok := s.byID[anchorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, anchorID)
	}
	out := provider.WithinReach(anchor, s.plots, s.reach)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
