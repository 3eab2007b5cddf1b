package storage

import (
	"sort"

	"github.com/portfolio-tracker/internal/models"
)

// RecordStore holds the last known good record per configured symbol. It is
// a value: updates return a new store and never touch the receiver.
type RecordStore struct {
	records map[string]models.NormalizedRecord
}

// NewRecordStore returns an empty store
func NewRecordStore() RecordStore {
	return RecordStore{}
}

// Get returns the record for a symbol
func (s RecordStore) Get(symbol string) (models.NormalizedRecord, bool) {
	r, ok := s.records[symbol]
	return r, ok
}

// Len returns the number of stored records
func (s RecordStore) Len() int {
	return len(s.records)
}

// Symbols returns the stored symbols in sorted order
func (s RecordStore) Symbols() []string {
	out := make([]string, 0, len(s.records))
	for sym := range s.records {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// With returns a copy of the store with the given records written over any
// existing entries for the same symbols
func (s RecordStore) With(records ...models.NormalizedRecord) RecordStore {
	next := make(map[string]models.NormalizedRecord, len(s.records)+len(records))
	for sym, r := range s.records {
		next[sym] = r
	}
	for _, r := range records {
		next[r.Symbol] = r
	}
	return RecordStore{records: next}
}
