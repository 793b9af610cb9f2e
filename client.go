package authsync

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// RecordHandler is invoked by the client's receive loop for every
// authorization record pushed by the server, including replays delivered
// right after the handshake.
type RecordHandler func(rec AuthRecord)

// Client is an auth-sync client. It holds one long-lived connection over
// which it authenticates, publishes authorization records and receives
// records published by its peers in the same group.
type Client struct {
	mu      sync.Mutex
	address string
	secret  string
	dialer  Dialer
	conn    Conn
	logger  *slog.Logger

	mac     string
	attr    uint16
	groupID uint32

	timeout       time.Duration
	maxBodyLength uint32
	handler       RecordHandler

	writeMu sync.Mutex
	recvWG  sync.WaitGroup
	done    chan struct{}
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the connection and per-operation timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithSecret sets the shared secret used to answer the server's challenge.
func WithSecret(secret string) ClientOption {
	return func(c *Client) {
		c.secret = secret
	}
}

// WithClientID sets the MAC address and device attribute this client
// announces during the handshake.
func WithClientID(mac string, attr uint16) ClientOption {
	return func(c *Client) {
		c.mac = mac
		c.attr = attr
	}
}

// WithGroupID sets the synchronization group the client joins.
func WithGroupID(groupID uint32) ClientOption {
	return func(c *Client) {
		c.groupID = groupID
	}
}

// WithTLSConfig sets the TLS configuration for secure connections.
func WithTLSConfig(config *tls.Config) ClientOption {
	return func(c *Client) {
		c.dialer = &TLSDialer{
			Timeout: c.timeout,
			Config:  config,
		}
	}
}

// WithDialer sets a custom dialer for connections.
// If dialer is nil, the default TCP dialer is retained.
func WithDialer(dialer Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithClientLogger sets the logger. If logger is nil, the default discard
// logger is retained.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxBodyLength sets the maximum allowed body length for incoming
// frames. This prevents memory exhaustion from a malicious server.
func WithMaxBodyLength(maxLength uint32) ClientOption {
	return func(c *Client) {
		c.maxBodyLength = maxLength
	}
}

// WithRecordHandler sets the callback for records pushed by the server.
// The handler runs on the client's receive goroutine and must not block.
func WithRecordHandler(handler RecordHandler) ClientOption {
	return func(c *Client) {
		c.handler = handler
	}
}

// NewClient creates a new auth-sync client.
func NewClient(address string, opts ...ClientOption) *Client {
	c := &Client{
		address:       address,
		timeout:       30 * time.Second,
		dialer:        DefaultTCPDialer(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBodyLength: DefaultMaxBodyLength,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Update dialer timeout after all options are applied
	switch d := c.dialer.(type) {
	case *TCPDialer:
		d.Timeout = c.timeout
	case *TLSDialer:
		d.Timeout = c.timeout
	}

	return c
}

// Connect dials the server, completes the challenge handshake and starts
// the receive loop. It returns once the client is authenticated and
// joined to its group.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil // Already connected
	}

	conn, err := c.dialer.Dial(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.done = make(chan struct{})

	c.recvWG.Add(1)
	go c.recvLoop(conn, c.done)

	c.logger.Info("connected", "addr", c.address, "group", c.groupID)
	return nil
}

// handshake waits for the server's challenge and answers it.
func (c *Client) handshake(conn Conn) error {
	header, body, err := c.recvFrame(conn)
	if err != nil {
		return fmt.Errorf("waiting for challenge: %w", err)
	}
	if header.Type != MsgTypeHandshakeRequest {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidType,
			MessageTypeName(MsgTypeHandshakeRequest), MessageTypeName(header.Type))
	}

	challenge := &HandshakeRequest{}
	if err := challenge.UnmarshalBinary(body); err != nil {
		return err
	}

	resp := &HandshakeResponse{
		Digest:  ChapDigest(challenge.Nonce, c.secret),
		MAC:     c.mac,
		Attr:    c.attr,
		GroupID: c.groupID,
	}

	return c.sendFrame(conn, MsgTypeHandshakeResponse, resp)
}

// recvLoop reads frames until the connection closes, dispatching pushed
// records to the configured handler.
func (c *Client) recvLoop(conn Conn, done chan struct{}) {
	defer c.recvWG.Done()

	for {
		header, body, err := c.recvFrameBlocking(conn)
		if err != nil {
			select {
			case <-done:
			default:
				c.logger.Warn("receive loop stopped", "error", err)
			}
			return
		}

		if header.Type != MsgTypeAuthPublish {
			c.logger.Warn("ignoring unexpected frame", "type", MessageTypeName(header.Type))
			continue
		}

		pub := &AuthPublish{}
		if err := pub.UnmarshalBinary(body); err != nil {
			c.logger.Warn("discarding malformed record", "error", err)
			continue
		}

		if c.handler != nil {
			c.handler(pub.Record(time.Now()))
		}
	}
}

// Publish announces an authorized MAC address to the group. The record is
// scoped to the group this client joined at connect time.
func (c *Client) Publish(mac string, attr uint16, duration uint32) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrConnectionClosed
	}

	pub := &AuthPublish{
		MAC:      mac,
		Attr:     attr,
		GroupID:  c.groupID,
		Duration: duration,
	}
	return c.sendFrame(conn, MsgTypeAuthPublish, pub)
}

// Query asks the server whether mac currently holds a live authorization
// in this client's group. A hit is answered with a pushed record on the
// record handler; a miss is silent.
func (c *Client) Query(mac string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrConnectionClosed
	}

	query := &AuthQuery{
		MAC:     mac,
		Attr:    c.attr,
		GroupID: c.groupID,
	}
	return c.sendFrame(conn, MsgTypeAuthQuery, query)
}

// sendFrame marshals and writes one frame. Writes from Publish, Query and
// the connect path are serialized.
func (c *Client) sendFrame(conn Conn, msgType uint8, p Packet) error {
	frame, err := MarshalFrame(msgType, p)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	return writeAll(conn, frame)
}

// recvFrame reads one frame under the client's operation timeout. It is
// used during the handshake, where the server must respond promptly.
func (c *Client) recvFrame(conn Conn) (*Header, []byte, error) {
	if c.timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	return readFrame(conn, c.maxBodyLength)
}

// recvFrameBlocking reads one frame with no deadline. Pushed records may
// arrive at any time, so the receive loop blocks indefinitely.
func (c *Client) recvFrameBlocking(conn Conn) (*Header, []byte, error) {
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	return readFrame(conn, c.maxBodyLength)
}

// readFrame reads and validates one frame from r.
func readFrame(r io.Reader, maxBodyLength uint32) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		if err == io.EOF {
			return nil, nil, ErrConnectionClosed
		}
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	header := &Header{}
	if err := header.UnmarshalBinary(headerBuf); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal header: %w", err)
	}

	if err := header.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid header: %w", err)
	}

	if uint32(header.Length) > maxBodyLength {
		return nil, nil, fmt.Errorf("%w: body length %d exceeds maximum %d", ErrBodyTooLarge, header.Length, maxBodyLength)
	}

	body := make([]byte, header.Length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	return header, body, nil
}

// Close closes the connection to the server and stops the receive loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil
	}

	close(c.done)
	err := c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	c.recvWG.Wait()
	return err
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Address returns the server address.
func (c *Client) Address() string {
	return c.address
}

// LocalAddr returns the local address of the connection.
func (c *Client) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote address of the connection.
func (c *Client) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}
