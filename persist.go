package authsync

import (
	"context"
	"sync"
)

// RecordStore is the narrow persistence interface the server consumes for
// restart recovery. In-memory group state stays authoritative at run time;
// store failures are logged and never propagate to sessions or broadcasts.
type RecordStore interface {
	// LoadAll returns every persisted record. Called once at startup,
	// before the server accepts connections. Records observed as already
	// expired are discarded by the caller and not re-persisted.
	LoadAll(ctx context.Context) ([]AuthRecord, error)

	// Upsert persists a record, replacing any prior record for the same
	// (group, MAC).
	Upsert(ctx context.Context, rec AuthRecord) error
}

// MemoryStore is an in-memory RecordStore for tests and storeless
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[recordKey]AuthRecord
}

type recordKey struct {
	gid uint32
	mac string
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]AuthRecord)}
}

// LoadAll returns every stored record.
func (s *MemoryStore) LoadAll(_ context.Context) ([]AuthRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]AuthRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	return records, nil
}

// Upsert stores a record, replacing any prior record for the same
// (group, MAC).
func (s *MemoryStore) Upsert(_ context.Context, rec AuthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{gid: rec.GroupID, mac: rec.MAC}] = rec
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
