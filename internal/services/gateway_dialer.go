package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"
)

// GatewayDialer opens TLS connections to the push gateway. The gateway speaks
// a bare length-prefixed binary protocol over the socket, so the channel is a
// thin wrapper around the TLS conn with write-error classification on top.
type GatewayDialer struct {
	addr         string
	tlsConfig    *tls.Config
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

func NewGatewayDialer(addr, certFile, keyFile string, dialTimeout, writeTimeout time.Duration, logger *slog.Logger) (*GatewayDialer, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load gateway certificate: %w", err)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway address %q: %w", addr, err)
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &GatewayDialer{
		addr: addr,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ServerName:   host,
		},
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		logger:       logger,
	}, nil
}

func (d *GatewayDialer) Open(ctx context.Context) (DeliveryChannel, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.dialTimeout},
		Config:    d.tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", d.addr, err)
	}
	d.logger.Debug("gateway connection established", slog.String("addr", d.addr))
	return &gatewayChannel{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type gatewayChannel struct {
	conn         net.Conn
	writeTimeout time.Duration
}

func (c *gatewayChannel) Write(frame []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(frame); err != nil {
		return &ChannelError{Err: err, Fatal: isConnFatal(err)}
	}
	return nil
}

func (c *gatewayChannel) Close() error {
	return c.conn.Close()
}

// isConnFatal classifies broken-pipe-class failures that make the connection
// unusable for further writes. Deadline misses count as transient: the peer
// may still drain the socket.
func isConnFatal(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.EOF)
}
