package authsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// recordSink receives asynchronous record deliveries targeted at one
// session. Implementations must not block: the group lock is held across
// the call.
type recordSink interface {
	deliver(rec AuthRecord)
}

// Group is one authentication domain: the set of currently joined sessions
// and the most recent live record per MAC. Membership mutation and cache
// mutation are atomic with respect to each other, so a session joining
// concurrently with an insert either sees the record in the replay or
// receives it via the broadcast, never neither.
type Group struct {
	id uint32

	mu      sync.Mutex
	recent  map[string]AuthRecord
	members map[uuid.UUID]recordSink
}

func newGroup(id uint32) *Group {
	return &Group{
		id:      id,
		recent:  make(map[string]AuthRecord),
		members: make(map[uuid.UUID]recordSink),
	}
}

// ID returns the group ID.
func (g *Group) ID() uint32 {
	return g.id
}

// Join adds a session to the group and replays every live cached record to
// it. Expired records encountered during the replay are evicted. Replay
// order is unspecified.
func (g *Group) Join(id uuid.UUID, sink recordSink) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.members[id] = sink

	for mac, rec := range g.recent {
		if !rec.Live(now) {
			delete(g.recent, mac)
			continue
		}
		sink.deliver(rec)
	}
}

// Leave removes a session from the group. It is idempotent and safe to call
// for a session that never joined.
func (g *Group) Leave(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
}

// Insert upserts a record into the group cache and broadcasts it to every
// current member, including the publisher if it is joined.
func (g *Group) Insert(rec AuthRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.recent[rec.MAC] = rec

	for _, sink := range g.members {
		sink.deliver(rec)
	}
}

// Authed returns the live record for a MAC in this group, if any. An
// expired record is evicted as a side effect and reported as absent.
func (g *Group) Authed(mac string) (AuthRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.recent[mac]
	if !ok {
		return AuthRecord{}, false
	}
	if !rec.Live(time.Now()) {
		delete(g.recent, mac)
		return AuthRecord{}, false
	}
	return rec, true
}

// Records returns a snapshot of the group's live records, evicting any
// expired ones it encounters.
func (g *Group) Records() []AuthRecord {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	records := make([]AuthRecord, 0, len(g.recent))
	for mac, rec := range g.recent {
		if !rec.Live(now) {
			delete(g.recent, mac)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// MemberCount returns the number of currently joined sessions.
func (g *Group) MemberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Registry maps group IDs to groups. Groups are created lazily on first
// reference and live until the registry is cleared at shutdown.
type Registry struct {
	mu     sync.RWMutex
	groups map[uint32]*Group
}

// NewRegistry creates an empty group registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[uint32]*Group)}
}

// GetOrCreate returns the group for the given ID, creating it if needed.
func (r *Registry) GetOrCreate(gid uint32) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[gid]
	if !ok {
		g = newGroup(gid)
		r.groups[gid] = g
	}
	return g
}

// Get returns the group for the given ID, if it exists.
func (r *Registry) Get(gid uint32) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[gid]
	return g, ok
}

// GroupIDs returns the IDs of all existing groups.
func (r *Registry) GroupIDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint32, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of existing groups.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Clear drops every group. Called on shutdown; in-memory state is not
// preserved across restarts, the record store is.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[uint32]*Group)
}
