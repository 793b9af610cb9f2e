package authsync

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"
)

// Conn is the stream a session exchanges frames over. It is a plain
// net.Conn; the alias keeps server and client signatures independent of
// the concrete transport so tests can substitute pipes.
type Conn interface {
	net.Conn
}

// Listener accepts gateway connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Dialer opens gateway connections on the client side.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (Conn, error)
}

type tcpConn struct {
	net.Conn
}

type tcpListener struct {
	net.Listener
}

func (l *tcpListener) Accept() (Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: conn}, nil
}

// TCPDialer dials plaintext TCP.
type TCPDialer struct {
	// Timeout bounds the dial. Zero means no limit.
	Timeout time.Duration

	// LocalAddr pins the local endpoint; nil lets the stack choose.
	LocalAddr *net.TCPAddr
}

func (d *TCPDialer) Dial(ctx context.Context, network, address string) (Conn, error) {
	dialer := &net.Dialer{
		Timeout:   d.Timeout,
		LocalAddr: d.LocalAddr,
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: conn}, nil
}

// TLSDialer dials TLS. The frame protocol itself sends bodies in the
// clear, so TLS is the way to get confidentiality on untrusted networks.
type TLSDialer struct {
	Timeout time.Duration
	Config  *tls.Config
}

func (d *TLSDialer) Dial(ctx context.Context, network, address string) (Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout: d.Timeout,
		},
		Config: d.Config,
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: conn}, nil
}

// ListenTCP opens a plaintext listener on address.
func ListenTCP(address string) (Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &tcpListener{Listener: ln}, nil
}

// ListenTLS opens a TLS listener on address.
func ListenTLS(address string, config *tls.Config) (Listener, error) {
	if config == nil {
		return nil, fmt.Errorf("TLS config is required")
	}
	ln, err := tls.Listen("tcp", address, config)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &tcpListener{Listener: ln}, nil
}

// DefaultTCPDialer returns a TCP dialer with a 30 second dial timeout.
func DefaultTCPDialer() *TCPDialer {
	return &TCPDialer{
		Timeout: 30 * time.Second,
	}
}

// NewTLSConfig builds a server TLS config from a certificate pair, TLS 1.2
// minimum.
func NewTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// writeAll retries short writes until the whole frame is on the wire.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
