package authsync

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records deliveries for inspection.
type captureSink struct {
	mu       sync.Mutex
	received []AuthRecord
}

func (s *captureSink) deliver(rec AuthRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, rec)
}

func (s *captureSink) records() []AuthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuthRecord, len(s.received))
	copy(out, s.received)
	return out
}

func TestGroupJoin(t *testing.T) {
	t.Run("replays live records to joiner", func(t *testing.T) {
		g := newGroup(1)
		g.Insert(liveRecord("aa:bb:cc:dd:ee:01", 1))
		g.Insert(liveRecord("aa:bb:cc:dd:ee:02", 1))

		sink := &captureSink{}
		g.Join(uuid.New(), sink)

		assert.Len(t, sink.records(), 2)
	})

	t.Run("expired records are evicted, not replayed", func(t *testing.T) {
		g := newGroup(1)
		g.Insert(liveRecord("aa:bb:cc:dd:ee:01", 1))
		g.Insert(expiredRecord("aa:bb:cc:dd:ee:02", 1))
		g.Insert(expiredRecord("aa:bb:cc:dd:ee:03", 1))

		sink := &captureSink{}
		g.Join(uuid.New(), sink)

		received := sink.records()
		require.Len(t, received, 1)
		assert.Equal(t, "aa:bb:cc:dd:ee:01", received[0].MAC)

		// The eviction is permanent: a second joiner sees the same set.
		second := &captureSink{}
		g.Join(uuid.New(), second)
		assert.Len(t, second.records(), 1)
	})

	t.Run("empty group replays nothing", func(t *testing.T) {
		g := newGroup(1)
		sink := &captureSink{}
		g.Join(uuid.New(), sink)
		assert.Empty(t, sink.records())
	})
}

func TestGroupInsert(t *testing.T) {
	t.Run("broadcasts to every member including publisher", func(t *testing.T) {
		g := newGroup(1)
		publisher := &captureSink{}
		peer := &captureSink{}
		g.Join(uuid.New(), publisher)
		g.Join(uuid.New(), peer)

		rec := liveRecord(testMAC, 1)
		g.Insert(rec)

		require.Len(t, publisher.records(), 1)
		require.Len(t, peer.records(), 1)
		assert.Equal(t, rec, peer.records()[0])
	})

	t.Run("upsert replaces cached record", func(t *testing.T) {
		g := newGroup(1)
		g.Insert(liveRecord(testMAC, 1))

		updated := liveRecord(testMAC, 1)
		updated.Attr = 42
		g.Insert(updated)

		got, ok := g.Authed(testMAC)
		require.True(t, ok)
		assert.Equal(t, uint16(42), got.Attr)
		assert.Len(t, g.Records(), 1)
	})

	t.Run("departed member receives nothing", func(t *testing.T) {
		g := newGroup(1)
		id := uuid.New()
		sink := &captureSink{}
		g.Join(id, sink)
		g.Leave(id)

		g.Insert(liveRecord(testMAC, 1))
		assert.Empty(t, sink.records())
	})
}

func TestGroupLeave(t *testing.T) {
	g := newGroup(1)
	id := uuid.New()
	g.Join(id, &captureSink{})
	require.Equal(t, 1, g.MemberCount())

	g.Leave(id)
	assert.Equal(t, 0, g.MemberCount())

	// Idempotent, and safe for a session that never joined.
	g.Leave(id)
	g.Leave(uuid.New())
	assert.Equal(t, 0, g.MemberCount())
}

func TestGroupAuthed(t *testing.T) {
	t.Run("live record found", func(t *testing.T) {
		g := newGroup(1)
		rec := liveRecord(testMAC, 1)
		g.Insert(rec)

		got, ok := g.Authed(testMAC)
		require.True(t, ok)
		assert.Equal(t, rec, got)
	})

	t.Run("expired record reported absent and evicted", func(t *testing.T) {
		g := newGroup(1)
		g.Insert(expiredRecord(testMAC, 1))

		_, ok := g.Authed(testMAC)
		assert.False(t, ok)
		assert.Empty(t, g.Records())
	})

	t.Run("unknown mac", func(t *testing.T) {
		g := newGroup(1)
		_, ok := g.Authed(testMAC)
		assert.False(t, ok)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("get or create is idempotent", func(t *testing.T) {
		r := NewRegistry()
		a := r.GetOrCreate(7)
		b := r.GetOrCreate(7)
		assert.Same(t, a, b)
		assert.Equal(t, uint32(7), a.ID())
		assert.Equal(t, 1, r.Count())
	})

	t.Run("get does not create", func(t *testing.T) {
		r := NewRegistry()
		_, ok := r.Get(7)
		assert.False(t, ok)
		assert.Equal(t, 0, r.Count())
	})

	t.Run("group ids", func(t *testing.T) {
		r := NewRegistry()
		r.GetOrCreate(1)
		r.GetOrCreate(2)
		assert.ElementsMatch(t, []uint32{1, 2}, r.GroupIDs())
	})

	t.Run("clear drops all groups", func(t *testing.T) {
		r := NewRegistry()
		r.GetOrCreate(1)
		r.Clear()
		assert.Equal(t, 0, r.Count())
		_, ok := r.Get(1)
		assert.False(t, ok)
	})
}
