// Package transport carries SDAP envelopes over a websocket connection and
// keeps that connection alive across drops.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/sdapctl/internal/protocol"
	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrSendQueueFull           = errors.New("transport: send queue full")
	ErrClosed                  = errors.New("transport: client closed")
	ErrAlreadyRunning          = errors.New("transport: client already running")
	ErrConnectAttemptsExceeded = errors.New("transport: connect attempts exceeded")
)

// Handler receives every text frame read from the server. Errors are logged
// and do not end the connection.
type Handler func(data []byte) error

// Client is a reconnecting websocket client. Send never blocks on the
// network: frames are queued and written by the connection loop.
type Client struct {
	endpoint *url.URL
	cfg      session.Config
	log      zerolog.Logger
	dialer   *websocket.Dialer

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	connected atomic.Bool

	mu        sync.Mutex
	onConnect func()
}

func New(endpoint string, cfg session.Config, logger zerolog.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	u, err := cfg.ValidateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		NetDialContext:   (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}
	if u.Scheme == "wss" {
		tlsCfg, err := cfg.ClientTLSConfig(u.Hostname())
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	return &Client{
		endpoint: u,
		cfg:      cfg,
		log:      logger.With().Str("component", "transport").Str("endpoint", u.Redacted()).Logger(),
		dialer:   dialer,
		queue:    make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
	}, nil
}

// OnConnect registers fn to run after every successful dial, before queued
// frames are written. It is the place to say hello and re-attach rooms.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// Connected reports whether a websocket is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send encodes msg and queues it for the connection loop.
func (c *Client) Send(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.queue <- data:
		return nil
	default:
		return fmt.Errorf("%w: %d queued", ErrSendQueueFull, len(c.queue))
	}
}

// Close stops Run and rejects further sends.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run dials the server and serves connections until ctx ends or Close is
// called, reconnecting with backoff after every drop. It returns
// ErrConnectAttemptsExceeded when MaxConnectAttempts consecutive dials fail.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := session.NewBackoff(c.cfg.Backoff)
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.exitErr(ctx)
			}
			c.log.Warn().Int("attempt", backoff.Attempt()+1).Err(err).Msg("dial failed")
			if limit := c.cfg.MaxConnectAttempts; limit > 0 && backoff.Attempt()+1 >= limit {
				return fmt.Errorf("%w: %v", ErrConnectAttemptsExceeded, err)
			}
			if err := backoff.Wait(ctx); err != nil {
				return c.exitErr(ctx)
			}
			continue
		}

		backoff.Reset()
		err = c.serve(ctx, conn, handler)
		if ctx.Err() != nil {
			return c.exitErr(ctx)
		}
		c.log.Warn().Err(err).Msg("connection lost")
		if err := backoff.Wait(ctx); err != nil {
			return c.exitErr(ctx)
		}
	}
}

func (c *Client) exitErr(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
		return ctx.Err()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return conn, nil
}

// serve runs one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	defer conn.Close()
	c.connected.Store(true)
	defer c.connected.Store(false)

	conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	if dropped := c.drainQueue(); dropped > 0 {
		c.log.Debug().Int("dropped", dropped).Msg("discarded frames queued before connect")
	}
	c.log.Info().Msg("connected")
	c.mu.Lock()
	onConnect := c.onConnect
	c.mu.Unlock()
	if onConnect != nil {
		onConnect()
	}

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(conn, handler)
	}()

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return ctx.Err()
		case err := <-readErr:
			return err
		case data := <-c.queue:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("transport: write: %w", err)
			}
		case <-ping.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("transport: ping: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, handler Handler) error {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("transport: read: %w", err)
		}
		if kind != websocket.TextMessage {
			c.log.Debug().Int("kind", kind).Msg("ignoring non-text frame")
			continue
		}
		if handler == nil {
			continue
		}
		if err := handler(data); err != nil {
			c.log.Debug().Err(err).Msg("handler error")
		}
	}
}

// drainQueue drops frames queued while disconnected. They were addressed to
// a session the server no longer has.
func (c *Client) drainQueue() int {
	n := 0
	for {
		select {
		case <-c.queue:
			n++
		default:
			return n
		}
	}
}
