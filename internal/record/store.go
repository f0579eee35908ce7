package record

import "encoding/json"

// Store is an ordered, position-addressable sequence of records. It is a
// plain value container: the owning manager serializes access, and any
// operation that changes positions must be paired with a rebuild of the
// vector index it runs parallel to.
type Store struct {
	records []Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// FromRecords returns a store over the given records, taking ownership of the slice.
func FromRecords(records []Record) *Store {
	return &Store{records: records}
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// At returns the record at position i. Panics when out of range, like a slice.
func (s *Store) At(i int) Record {
	return s.records[i]
}

// Append pushes records to the end. Must be called in the same critical
// section as the matching vector-index add, with the same count.
func (s *Store) Append(records ...Record) {
	s.records = append(s.records, records...)
}

// PositionOf returns the offset of the record whose key matches itemID.
func (s *Store) PositionOf(itemID string) (int, bool) {
	for i, r := range s.records {
		if r.Key() == itemID {
			return i, true
		}
	}
	return 0, false
}

// Contains reports whether any record's key matches itemID.
func (s *Store) Contains(itemID string) bool {
	_, ok := s.PositionOf(itemID)
	return ok
}

// PositionsOf returns the ascending offsets of records whose key is in ids.
func (s *Store) PositionsOf(ids map[string]struct{}) []int {
	var offsets []int
	for i, r := range s.records {
		if _, ok := ids[r.Key()]; ok {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// WithoutItemIDs returns a new store holding the records whose key is not in
// ids, in the original order, plus the number removed. The receiver is left
// untouched so a failed rebuild can keep serving the old sequence.
func (s *Store) WithoutItemIDs(ids map[string]struct{}) (*Store, int) {
	kept := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if _, ok := ids[r.Key()]; !ok {
			kept = append(kept, r)
		}
	}
	return FromRecords(kept), len(s.records) - len(kept)
}

// Truncate returns a new store holding the first n records.
func (s *Store) Truncate(n int) *Store {
	if n > len(s.records) {
		n = len(s.records)
	}
	kept := make([]Record, n)
	copy(kept, s.records[:n])
	return FromRecords(kept)
}

// Records returns a copy of the underlying sequence.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// MarshalJSON serializes the store as an ordered JSON array.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.records)
}

// UnmarshalJSON parses an ordered JSON array, accepting the legacy bare-URI
// entry form via Record.UnmarshalJSON.
func (s *Store) UnmarshalJSON(data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	s.records = records
	return nil
}
