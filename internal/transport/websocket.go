// Package transport provides the websocket connection to the remote
// framebuffer server and the HTTP clients for the workspace session
// services.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/protocol"
	"github.com/deskbridge/deskbridge/internal/session"
)

var (
	// ErrNotConnected is returned when sending without a live socket.
	ErrNotConnected = errors.New("transport is not connected")
	// ErrSendQueueFull is returned when the bounded send queue
	// overflows; the event is dropped, not blocked on.
	ErrSendQueueFull = errors.New("send queue is full")
)

const (
	dialTimeout    = 10 * time.Second
	writeTimeout   = 5 * time.Second
	sendQueueDepth = 64
	pongWait       = 30 * time.Second
)

// TokenSource supplies the bearer token presented on connect.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// WS is a websocket transport to the framebuffer server. It implements
// session.Transport.
type WS struct {
	url    string
	tokens TokenSource

	mu       sync.Mutex
	conn     *websocket.Conn
	sendQ    chan []byte
	stop     chan struct{}
	wg       sync.WaitGroup
	running  bool
	pingCh   chan time.Time

	bytesReceived  atomic.Int64
	framesReceived atomic.Int64
	droppedFrames  atomic.Int64

	onDisconnect func(error)
	closeOnce    sync.Once
}

// NewWS creates a transport for the given ws:// or wss:// URL. tokens
// may be nil when the endpoint requires no authentication.
func NewWS(url string, tokens TokenSource) *WS {
	return &WS{url: url, tokens: tokens}
}

// OnDisconnect registers the unexpected-drop callback.
func (t *WS) OnDisconnect(cb func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = cb
}

// Connect dials the server, presenting the bearer token when one is
// configured. A 401/403 rejection maps to session.ErrAuthFailed so the
// state machine never auto-retries it.
func (t *WS) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	t.mu.Unlock()

	header := http.Header{}
	if t.tokens != nil {
		token, err := t.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrAuthFailed, err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: server rejected credentials (%d)", session.ErrAuthFailed, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.sendQ = make(chan []byte, sendQueueDepth)
	t.stop = make(chan struct{})
	t.pingCh = make(chan time.Time, 1)
	t.running = true
	t.closeOnce = sync.Once{}
	t.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		select {
		case t.pingCh <- time.Now():
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	t.wg.Add(2)
	go t.readLoop(conn)
	go t.writeLoop(conn)

	logger.Debugf("Transport connected to %s", t.url)
	return nil
}

// SendInput queues one encoded event for the writer. Events are queued
// while the socket is momentarily busy, up to the bound; past that the
// event is dropped with an error rather than blocking capture.
func (t *WS) SendInput(event *protocol.InputEvent) error {
	data, err := protocol.Encode(event)
	if err != nil {
		return err
	}
	return t.enqueue(data)
}

// SetQuality sends the wire-parameter update frame.
func (t *WS) SetQuality(settings protocol.QualitySettings) error {
	data, err := protocol.EncodeQuality(settings)
	if err != nil {
		return err
	}
	return t.enqueue(data)
}

func (t *WS) enqueue(data []byte) error {
	t.mu.Lock()
	running := t.running
	q := t.sendQ
	t.mu.Unlock()

	if !running {
		return ErrNotConnected
	}
	select {
	case q <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Ping measures round-trip time with a websocket ping frame.
func (t *WS) Ping(ctx context.Context) (time.Duration, error) {
	t.mu.Lock()
	conn := t.conn
	running := t.running
	pingCh := t.pingCh
	t.mu.Unlock()

	if !running || conn == nil {
		return 0, ErrNotConnected
	}

	// Drain any stale pong.
	select {
	case <-pingCh:
	default:
	}

	start := time.Now()
	t.mu.Lock()
	err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
	t.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("failed to send ping: %w", err)
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case at := <-pingCh:
		return at.Sub(start), nil
	}
}

// Stats returns the raw receive counters.
func (t *WS) Stats() session.TransportStats {
	return session.TransportStats{
		BytesReceived:  t.bytesReceived.Load(),
		FramesReceived: t.framesReceived.Load(),
		DroppedFrames:  t.droppedFrames.Load(),
	}
}

// Close tears the socket down. Idempotent.
func (t *WS) Close() error {
	t.teardown(nil, false)
	return nil
}

// readLoop consumes framebuffer frames, counting bytes and frames for
// the telemetry loop. Any read error ends the connection.
func (t *WS) readLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.teardown(err, true)
			return
		}
		if msgType == websocket.BinaryMessage || msgType == websocket.TextMessage {
			t.bytesReceived.Add(int64(len(data)))
			t.framesReceived.Add(1)
		}
	}
}

// writeLoop drains the send queue onto the socket.
func (t *WS) writeLoop(conn *websocket.Conn) {
	defer t.wg.Done()

	t.mu.Lock()
	stop := t.stop
	q := t.sendQ
	t.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case data := <-q:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				t.teardown(err, true)
				return
			}
		}
	}
}

// teardown closes the socket once and, for unexpected drops, notifies
// the session so its reconnect policy can take over.
func (t *WS) teardown(cause error, unexpected bool) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		if t.conn != nil {
			_ = t.conn.Close()
			t.conn = nil
		}
		if t.stop != nil {
			close(t.stop)
		}
		t.running = false
		cb := t.onDisconnect
		t.mu.Unlock()

		if unexpected && cb != nil {
			go cb(cause)
		}
	})
}
