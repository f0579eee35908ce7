// Package record holds the ordered metadata records that run parallel to the
// vector index: the record at position i always describes the vector at row i.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the metadata stored for one indexed photo. Legacy mappings held a
// bare source URI per entry; everything is normalized to this shape at
// ingestion so downstream code deals with a single form.
type Record struct {
	ItemID    string         `json:"id,omitempty"`
	SourceURI string         `json:"file"`
	Title     string         `json:"title,omitempty"`
	Owner     string         `json:"user,omitempty"`
	Public    bool           `json:"is_public,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// FromURI normalizes a bare source URI into a Record.
func FromURI(uri string) Record {
	return Record{SourceURI: uri}
}

// UnmarshalJSON accepts either the detailed object form or the legacy bare
// string form (a JSON string holding the source URI).
func (r *Record) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var uri string
		if err := json.Unmarshal(data, &uri); err != nil {
			return err
		}
		*r = FromURI(uri)
		return nil
	}
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Record(p)
	return nil
}

// Key returns the identifier used for lookups: the item ID when present,
// otherwise the source URI.
func (r Record) Key() string {
	if r.ItemID != "" {
		return r.ItemID
	}
	return r.SourceURI
}

// Validate reports whether the record can be indexed at all.
func (r Record) Validate() error {
	if r.SourceURI == "" {
		return fmt.Errorf("record %q has no source URI", r.ItemID)
	}
	return nil
}
