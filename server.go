package authsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerListener sets the listener for the server.
func WithServerListener(ln Listener) ServerOption {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithServerSecret sets the shared secret clients must prove knowledge of
// during the challenge handshake.
func WithServerSecret(secret string) ServerOption {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithServerLogger sets the logger. If logger is nil, the default discard
// logger is retained.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecordStore sets the persistence backend. Without one, records live
// only in memory and do not survive restarts.
func WithRecordStore(store RecordStore) ServerOption {
	return func(s *Server) {
		s.records = store
	}
}

// WithServerReadTimeout sets the per-read deadline for authenticated
// sessions. Zero (the default) means sessions may idle indefinitely between
// frames.
func WithServerReadTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = timeout
	}
}

// WithServerWriteTimeout sets the per-write deadline.
func WithServerWriteTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.writeTimeout = timeout
	}
}

// WithHandshakeTimeout bounds how long a peer may take to complete the
// challenge handshake.
func WithHandshakeTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.handshakeTimeout = timeout
	}
}

// WithServerMaxBodyLength sets the maximum allowed body length for incoming
// frames.
func WithServerMaxBodyLength(maxLength uint32) ServerOption {
	return func(s *Server) {
		s.maxBodyLength = maxLength
	}
}

// WithStoreShards sets the shard count of the authentication store.
func WithStoreShards(shards int) ServerOption {
	return func(s *Server) {
		s.store = NewAuthStore(shards)
	}
}

// WithAcceptRate limits how fast new connections are accepted, as a token
// bucket of perSecond tokens with the given burst.
func WithAcceptRate(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Server is an auth-sync gateway server: it accepts connections, drives the
// challenge handshake and fans authorization records out inside each group.
type Server struct {
	mu       sync.Mutex
	listener Listener
	secret   string
	logger   *slog.Logger
	records  RecordStore
	limiter  *rate.Limiter

	readTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	maxBodyLength    uint32

	registry *Registry
	store    *AuthStore
	metrics  *Metrics
	sessions map[uuid.UUID]*session

	running    bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates a new auth-sync server with the given options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		writeTimeout:     30 * time.Second,
		handshakeTimeout: 30 * time.Second,
		maxBodyLength:    DefaultMaxBodyLength,
		registry:         NewRegistry(),
		store:            NewAuthStore(DefaultStoreShards),
		metrics:          NewMetrics(),
		sessions:         make(map[uuid.UUID]*session),
		shutdownCh:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Registry returns the server's group registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Store returns the server's authentication store.
func (s *Server) Store() *AuthStore {
	return s.store
}

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// SessionCount returns the number of currently open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Addr returns the server's listener address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning returns true if the server is currently accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Serve loads persisted records and starts accepting connections. It blocks
// until the server is shut down.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("no listener configured")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.loadRecords(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.logger.Info("accepting connections", "addr", s.listener.Addr().String())

	for {
		if err := s.throttleAccept(); err != nil {
			return nil
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// Transient accept errors must not stop the listener.
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.metrics.SessionsAccepted.Inc()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// throttleAccept waits for an accept token when a rate limit is configured.
// It returns an error only when the server shuts down while waiting.
func (s *Server) throttleAccept() error {
	if s.limiter == nil {
		return nil
	}

	delay := s.limiter.Reserve().Delay()
	if delay == 0 {
		return nil
	}

	select {
	case <-time.After(delay):
		return nil
	case <-s.shutdownCh:
		return ErrConnectionClosed
	}
}

// loadRecords primes the registry and store from the persistence backend.
// Records already expired at load are discarded and never re-persisted.
func (s *Server) loadRecords() error {
	if s.records == nil {
		return nil
	}

	records, err := s.records.LoadAll(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load persisted records: %w", err)
	}

	now := time.Now()
	loaded := 0
	for _, rec := range records {
		if !rec.Live(now) {
			continue
		}
		s.store.Insert(rec)
		s.registry.GetOrCreate(rec.GroupID).Insert(rec)
		loaded++
	}

	s.logger.Info("loaded persisted records", "live", loaded, "discarded", len(records)-loaded)
	return nil
}

// handleConn runs one session. A panic in session processing is contained
// here: one connection's crash must not stop the listener.
func (s *Server) handleConn(conn Conn) {
	defer s.wg.Done()

	sess := newSession(s, conn)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panicked", "session", sess.id.String(), "panic", r, "stack", string(debug.Stack()))
			sess.close()
		}
	}()

	s.addSession(sess)
	s.metrics.SessionsLive.Inc()

	go sess.writeLoop()

	err := sess.run()
	switch {
	case err == nil:
		sess.log.Info("peer disconnected")
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		sess.log.Debug("connection lost", "error", err)
	default:
		sess.log.Warn("closing session", "error", err)
	}

	sess.state = SessionStateClosed
	sess.close()
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *Server) removeSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// persist writes a record through to the persistence backend, if one is
// configured. Failures are logged, not retried; the in-memory group state
// is authoritative for run-time correctness.
func (s *Server) persist(rec AuthRecord) {
	if s.records == nil {
		return
	}
	if err := s.records.Upsert(context.Background(), rec); err != nil {
		s.metrics.StoreFailures.Inc()
		s.logger.Error("failed to persist record", "mac", rec.MAC, "group", rec.GroupID, "error", err)
	}
}

// Shutdown gracefully shuts down the server: it stops accepting, closes
// live sessions, waits for them to finish (or the context to expire) and
// clears the in-memory group state.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	live := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	close(s.shutdownCh)

	if s.listener != nil {
		s.listener.Close()
	}

	for _, sess := range live {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.registry.Clear()
	return err
}
