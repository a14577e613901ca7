package parcel

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed parcel.schema.json
var recordsSchemaJSON string

var (
	recordsSchemaOnce sync.Once
	recordsSchema     *jsonschema.Schema
	recordsSchemaErr  error
)

// Record is the loose shape parcels arrive in from map files and data feeds.
type Record struct {
	ID       string   `json:"id" yaml:"id"`
	Position Position `json:"position" yaml:"position"`
	OwnerID  *string  `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
}

type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func compiledSchema() (*jsonschema.Schema, error) {
	recordsSchemaOnce.Do(func() {
		recordsSchema, recordsSchemaErr = jsonschema.CompileString("parcel.schema.json", recordsSchemaJSON)
	})
	return recordsSchema, recordsSchemaErr
}

// FromRecord converts an already-validated record. A null or blank owner means unowned.
func FromRecord(r Record) Parcel {
	p := Parcel{
		ID: strings.TrimSpace(r.ID),
		X:  r.Position.X,
		Y:  r.Position.Y,
		Z:  r.Position.Z,
	}
	if r.OwnerID != nil {
		p.OwnerID = strings.TrimSpace(*r.OwnerID)
	}
	return p
}

func ToRecord(p Parcel) Record {
	r := Record{
		ID:       p.ID,
		Position: Position{X: p.X, Y: p.Y, Z: p.Z},
	}
	if p.OwnerID != "" {
		owner := p.OwnerID
		r.OwnerID = &owner
	}
	return r
}

// DecodeRecords validates a JSON array of parcel records and converts it into parcels.
// Duplicate ids are rejected.
func DecodeRecords(b []byte) ([]Parcel, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("parcel schema: %w", err)
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parcel records: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("parcel records: %w", err)
	}

	var recs []Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("parcel records: %w", err)
	}
	out := make([]Parcel, 0, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for i, r := range recs {
		p := FromRecord(r)
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("parcel records: duplicate id %q at index %d", p.ID, i)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
