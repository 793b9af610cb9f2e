package authsync

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the handshake state of one server-side session.
type SessionState uint8

const (
	// SessionStateInit indicates a freshly accepted connection.
	SessionStateInit SessionState = iota

	// SessionStateChallengeSent indicates the challenge has been sent and
	// the server is waiting for the response.
	SessionStateChallengeSent

	// SessionStateAuthenticated indicates a verified peer joined to its
	// group.
	SessionStateAuthenticated

	// SessionStateClosed is the terminal state.
	SessionStateClosed
)

// String returns a string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionStateInit:
		return "INIT"
	case SessionStateChallengeSent:
		return "CHALLENGE_SENT"
	case SessionStateAuthenticated:
		return "AUTHENTICATED"
	case SessionStateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// sendQueueDepth bounds the per-session outbound queue. Broadcast
// deliveries beyond it are dropped rather than blocking the group.
const sendQueueDepth = 128

// session is one accepted connection. The read loop is single-threaded, so
// frames are processed strictly in arrival order; all outbound writes,
// including cross-session broadcast deliveries, are serialized through
// sendCh and drained by a dedicated writer goroutine.
type session struct {
	id   uuid.UUID
	srv  *Server
	conn Conn
	log  *slog.Logger

	// state is owned by the read loop.
	state SessionState
	nonce string

	// mu guards certified and groupID, which the close path reads from
	// other goroutines.
	mu        sync.Mutex
	certified bool
	groupID   uint32

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(srv *Server, conn Conn) *session {
	id := uuid.New()
	return &session{
		id:     id,
		srv:    srv,
		conn:   conn,
		log:    srv.logger.With("session", id.String(), "remote", conn.RemoteAddr().String()),
		state:  SessionStateInit,
		sendCh: make(chan []byte, sendQueueDepth),
		done:   make(chan struct{}),
	}
}

// run drives the per-connection state machine until the peer disconnects or
// violates the protocol. The returned error is nil only for a clean peer
// disconnect.
func (s *session) run() error {
	nonce, err := NewChallenge()
	if err != nil {
		return err
	}
	s.nonce = nonce

	if err := s.sendFrame(MsgTypeHandshakeRequest, &HandshakeRequest{Nonce: nonce}); err != nil {
		return err
	}
	s.state = SessionStateChallengeSent

	for {
		header, body, err := s.readFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch header.Type {
		case MsgTypeHandshakeResponse:
			err = s.handleHandshakeResponse(body)
		case MsgTypeAuthPublish:
			err = s.handlePublish(body)
		case MsgTypeAuthQuery:
			err = s.handleQuery(body)
		default:
			// A handshake request from the peer is out of order on the
			// server side; not trusted enough to be fatal.
			s.log.Warn("ignoring unexpected frame", "type", MessageTypeName(header.Type), "state", s.state.String())
		}
		if err != nil {
			return err
		}
	}
}

// readFrame reads and validates one frame. The read deadline doubles as the
// handshake timeout until the session is authenticated.
func (s *session) readFrame() (*Header, []byte, error) {
	deadline := s.srv.readTimeout
	if s.state != SessionStateAuthenticated {
		deadline = s.srv.handshakeTimeout
	}
	if deadline > 0 {
		s.conn.SetReadDeadline(time.Now().Add(deadline))
	} else {
		s.conn.SetReadDeadline(time.Time{})
	}

	headerBuf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(s.conn, headerBuf); err != nil {
		return nil, nil, err
	}

	header := &Header{}
	if err := header.UnmarshalBinary(headerBuf); err != nil {
		return nil, nil, err
	}

	if err := header.Validate(); err != nil {
		s.srv.metrics.ProtocolErrors.Inc()
		return nil, nil, err
	}

	if uint32(header.Length) > s.srv.maxBodyLength {
		s.srv.metrics.ProtocolErrors.Inc()
		return nil, nil, fmt.Errorf("%w: body length %d exceeds maximum %d", ErrBodyTooLarge, header.Length, s.srv.maxBodyLength)
	}

	body := make([]byte, header.Length)
	if _, err := io.ReadFull(s.conn, body); err != nil {
		return nil, nil, err
	}

	return header, body, nil
}

func (s *session) handleHandshakeResponse(body []byte) error {
	if s.state == SessionStateAuthenticated {
		s.log.Warn("ignoring duplicate handshake response")
		return nil
	}

	resp := &HandshakeResponse{}
	if err := resp.UnmarshalBinary(body); err != nil {
		s.srv.metrics.ProtocolErrors.Inc()
		return err
	}

	if !VerifyChap(resp.Digest, s.nonce, s.srv.secret) {
		s.srv.metrics.HandshakeFailures.Inc()
		return fmt.Errorf("%w: bad challenge response from %s", ErrAuthenticationFailed, resp.MAC)
	}

	s.mu.Lock()
	s.certified = true
	s.groupID = resp.GroupID
	s.mu.Unlock()
	s.state = SessionStateAuthenticated

	// The challenge is consumed exactly once.
	s.nonce = ""

	group := s.srv.registry.GetOrCreate(resp.GroupID)
	group.Join(s.id, s)

	// close() may have run between certification and the join, in which
	// case it found no membership to remove. Undo the join here so the
	// group never retains a dead member.
	select {
	case <-s.done:
		group.Leave(s.id)
		return ErrConnectionClosed
	default:
	}

	s.log.Info("session authenticated", "mac", resp.MAC, "group", resp.GroupID)
	return nil
}

func (s *session) handlePublish(body []byte) error {
	if s.state != SessionStateAuthenticated {
		s.log.Warn("ignoring publish before handshake")
		return nil
	}

	pub := &AuthPublish{}
	if err := pub.UnmarshalBinary(body); err != nil {
		s.srv.metrics.ProtocolErrors.Inc()
		return err
	}

	rec := pub.Record(time.Now())

	s.mu.Lock()
	gid := s.groupID
	s.mu.Unlock()
	if rec.GroupID != gid {
		s.log.Warn("publish for foreign group, rescoping", "mac", rec.MAC, "group", rec.GroupID)
		rec.GroupID = gid
	}

	group := s.srv.registry.GetOrCreate(gid)
	group.Insert(rec)
	s.srv.store.Insert(rec)
	s.srv.metrics.RecordsPublished.Inc()

	s.log.Debug("record published", "mac", rec.MAC, "group", rec.GroupID, "duration", rec.Duration)

	// Persist after the broadcast, outside any group lock. Failures are
	// logged only; in-memory state stays authoritative.
	s.srv.persist(rec)

	return nil
}

func (s *session) handleQuery(body []byte) error {
	if s.state != SessionStateAuthenticated {
		s.log.Warn("ignoring query before handshake")
		return nil
	}

	query := &AuthQuery{}
	if err := query.UnmarshalBinary(body); err != nil {
		s.srv.metrics.ProtocolErrors.Inc()
		return err
	}

	// Queries are scoped to the session's own group, like publishes.
	s.mu.Lock()
	gid := s.groupID
	s.mu.Unlock()

	rec, ok := s.srv.store.Lookup(gid, query.MAC)
	if !ok {
		s.log.Debug("query miss", "mac", query.MAC, "group", gid)
		return nil
	}

	return s.sendFrame(MsgTypeAuthPublish, NewAuthPublish(rec, time.Now()))
}

// sendFrame marshals and enqueues a frame originated by this session's own
// read loop.
func (s *session) sendFrame(msgType uint8, p Packet) error {
	frame, err := MarshalFrame(msgType, p)
	if err != nil {
		return err
	}

	select {
	case s.sendCh <- frame:
		return nil
	case <-s.done:
		return ErrConnectionClosed
	}
}

// deliver implements recordSink. It is called by the group with the group
// lock held, possibly from another session's read loop, so it must not
// block: the frame is enqueued onto the serialized write path, or dropped
// if the peer is too slow to drain its queue.
func (s *session) deliver(rec AuthRecord) {
	frame, err := MarshalFrame(MsgTypeAuthPublish, NewAuthPublish(rec, time.Now()))
	if err != nil {
		s.log.Error("failed to marshal delivery", "error", err)
		return
	}

	select {
	case s.sendCh <- frame:
		s.srv.metrics.RecordsDelivered.Inc()
	default:
		s.srv.metrics.DeliveriesDropped.Inc()
		s.log.Warn("send queue full, dropping delivery", "mac", rec.MAC)
	}
}

// writeLoop is the sole writer to the socket.
func (s *session) writeLoop() {
	for {
		select {
		case frame := <-s.sendCh:
			if s.srv.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.srv.writeTimeout))
			}
			if err := writeAll(s.conn, frame); err != nil {
				s.log.Debug("write failed", "error", err)
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close tears the session down exactly once: leaves the group if joined,
// closes the socket (unblocking any in-flight read) and stops the writer.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		s.mu.Lock()
		certified := s.certified
		gid := s.groupID
		s.mu.Unlock()

		if certified {
			if group, ok := s.srv.registry.Get(gid); ok {
				group.Leave(s.id)
			}
		}

		s.srv.removeSession(s.id)
		s.srv.metrics.SessionsLive.Dec()
	})
}
