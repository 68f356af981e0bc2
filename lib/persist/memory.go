package persist

import (
	"sync"

	"github.com/ValentinKolb/mclock/lib/lockmgr"
)

// MemoryStore keeps the persisted table in memory. It is used when no lock
// file is configured and by tests.
type MemoryStore struct {
	mu    sync.Mutex
	table map[uint32][]lockmgr.LockRecord
	saves int
}

// NewMemoryStore creates a MemoryStore preloaded with table (may be nil).
func NewMemoryStore(table map[uint32][]lockmgr.LockRecord) *MemoryStore {
	return &MemoryStore{table: copyTable(table)}
}

func (s *MemoryStore) Load() (map[uint32][]lockmgr.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTable(s.table), nil
}

func (s *MemoryStore) Save(table map[uint32][]lockmgr.LockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = copyTable(table)
	s.saves++
	return nil
}

// Saves returns how often Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyTable(table map[uint32][]lockmgr.LockRecord) map[uint32][]lockmgr.LockRecord {
	out := make(map[uint32][]lockmgr.LockRecord, len(table))
	for id, records := range table {
		rs := make([]lockmgr.LockRecord, len(records))
		for i, r := range records {
			r.Segments = append([]lockmgr.Segment(nil), r.Segments...)
			rs[i] = r
		}
		out[id] = rs
	}
	return out
}
