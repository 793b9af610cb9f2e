package authsync

import (
	"sync"
	"time"
)

// AuthStore is the global authorization index, answering point queries by
// (group, MAC) independent of group membership. It is sharded by
// group ID modulo the shard count to bound lock contention; each shard is
// guarded by a reader/writer lock. Expired records are evicted lazily when
// a lookup observes them.
type AuthStore struct {
	shards []authShard
}

type authShard struct {
	mu      sync.RWMutex
	byGroup map[uint32]map[string]AuthRecord
}

// NewAuthStore creates a store with the given shard count. A count below 1
// falls back to DefaultStoreShards.
func NewAuthStore(shards int) *AuthStore {
	if shards < 1 {
		shards = DefaultStoreShards
	}

	s := &AuthStore{shards: make([]authShard, shards)}
	for i := range s.shards {
		s.shards[i].byGroup = make(map[uint32]map[string]AuthRecord)
	}
	return s
}

func (s *AuthStore) shard(gid uint32) *authShard {
	return &s.shards[int(gid)%len(s.shards)]
}

// Insert upserts a record, replacing any prior record for the same
// (group, MAC).
func (s *AuthStore) Insert(rec AuthRecord) {
	shard := s.shard(rec.GroupID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	macs, ok := shard.byGroup[rec.GroupID]
	if !ok {
		macs = make(map[string]AuthRecord)
		shard.byGroup[rec.GroupID] = macs
	}
	macs[rec.MAC] = rec
}

// Lookup returns the live record for (group, MAC), if any. A record observed
// to be expired is evicted as a side effect and reported as absent.
func (s *AuthStore) Lookup(gid uint32, mac string) (AuthRecord, bool) {
	shard := s.shard(gid)

	shard.mu.RLock()
	rec, ok := shard.byGroup[gid][mac]
	shard.mu.RUnlock()

	if !ok {
		return AuthRecord{}, false
	}

	if !rec.Live(time.Now()) {
		// Re-check under the write lock; a concurrent insert may have
		// replaced the expired record with a fresh one.
		shard.mu.Lock()
		if cur, ok := shard.byGroup[gid][mac]; ok && !cur.Live(time.Now()) {
			delete(shard.byGroup[gid], mac)
		}
		shard.mu.Unlock()
		return AuthRecord{}, false
	}

	return rec, true
}

// Evict removes the record for (group, MAC) if present.
func (s *AuthStore) Evict(gid uint32, mac string) {
	shard := s.shard(gid)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if macs, ok := shard.byGroup[gid]; ok {
		delete(macs, mac)
		if len(macs) == 0 {
			delete(shard.byGroup, gid)
		}
	}
}

// Len returns the total number of records held, including any not yet
// observed as expired.
func (s *AuthStore) Len() int {
	total := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.RLock()
		for _, macs := range shard.byGroup {
			total += len(macs)
		}
		shard.mu.RUnlock()
	}
	return total
}
