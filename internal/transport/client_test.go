package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/sdapctl/internal/protocol"
	"github.com/danmuck/sdapctl/internal/protocol/session"
	"github.com/danmuck/sdapctl/internal/testutil/testlog"
	"github.com/danmuck/sdapctl/internal/testutil/tlstest"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// helloServer answers every hello frame with a username assignment.
func helloServer(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.HasPrefix(string(data), `{"type":"hello"`) {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","newUsername":"assigned"}`))
			}
		}
	})
}

func wsURL(raw string) string {
	return "ws" + strings.TrimPrefix(raw, "http")
}

func fastConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Backoff.InitialDelay = 10 * time.Millisecond
	cfg.Backoff.MaxDelay = 20 * time.Millisecond
	cfg.Backoff.Jitter = false
	return cfg
}

func runClient(t *testing.T, client *Client, handler Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, handler) }()
	return cancel, done
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	logger := testlog.Start(t)
	if _, err := New("http://example.com", session.DefaultConfig(), logger); !errors.Is(err, session.ErrInvalidEndpoint) {
		t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
	}
	cfg := session.DefaultConfig()
	cfg.SecurityMode = session.SecurityModeProduction
	if _, err := New("ws://example.com", cfg, logger); !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
}

func TestSendValidatesAndQueues(t *testing.T) {
	logger := testlog.Start(t)
	cfg := fastConfig()
	cfg.SendQueueSize = 1
	client, err := New("ws://127.0.0.1:1", cfg, logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := client.Send(&protocol.Subscribe{}); !errors.Is(err, protocol.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if err := client.Send(&protocol.Subscribe{Name: "r"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := client.Send(&protocol.Subscribe{Name: "r"}); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("expected ErrSendQueueFull, got %v", err)
	}
	client.Close()
	if err := client.Send(&protocol.Subscribe{Name: "r"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRoundTripThroughServer(t *testing.T) {
	logger := testlog.Start(t)
	srv := httptest.NewServer(helloServer(t))
	defer srv.Close()

	client, err := New(wsURL(srv.URL), fastConfig(), logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	client.OnConnect(func() {
		if err := client.Send(&protocol.Hello{Username: "me"}); err != nil {
			t.Errorf("send hello: %v", err)
		}
	})
	frames := make(chan []byte, 4)
	cancel, done := runClient(t, client, func(data []byte) error {
		frames <- data
		return nil
	})

	select {
	case data := <-frames:
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		helloed, ok := msg.(*protocol.Helloed)
		if !ok || helloed.NewUsername != "assigned" {
			t.Fatalf("msg=%#v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for hello answer")
	}
	if !client.Connected() {
		t.Fatalf("expected connected client")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestReconnectsAfterDrop(t *testing.T) {
	logger := testlog.Start(t)
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if conns.Add(1) == 1 {
			_ = conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client, err := New(wsURL(srv.URL), fastConfig(), logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var connects atomic.Int32
	client.OnConnect(func() { connects.Add(1) })
	cancel, done := runClient(t, client, nil)
	defer cancel()

	deadline := time.Now().Add(5 * time.Second)
	for connects.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("connects=%d conns=%d", connects.Load(), conns.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}

	client.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	logger := testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := fastConfig()
	cfg.MaxConnectAttempts = 2
	client, err := New("ws://"+addr, cfg, logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Run(ctx, nil); !errors.Is(err, ErrConnectAttemptsExceeded) {
		t.Fatalf("expected ErrConnectAttemptsExceeded, got %v", err)
	}
}

func TestSecureEndpointWithPrivateCA(t *testing.T) {
	logger := testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir)

	srv := httptest.NewUnstartedServer(helloServer(t))
	srv.TLS = ca.ServerConfig(t)
	srv.StartTLS()
	defer srv.Close()

	cfg := fastConfig()
	cfg.SecurityMode = session.SecurityModeProduction
	cfg.TLS.CAFile = ca.CAFile()
	client, err := New("wss"+strings.TrimPrefix(srv.URL, "https"), cfg, logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	client.OnConnect(func() {
		_ = client.Send(&protocol.Hello{Username: "secure"})
	})
	frames := make(chan []byte, 1)
	cancel, done := runClient(t, client, func(data []byte) error {
		select {
		case frames <- data:
		default:
		}
		return nil
	})
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatalf("no frame over wss")
	}
}
