// Package agent implements the capture client: it maintains a channel
// to the relay, sends periodic screen captures and heartbeats, and
// receives operator answers.
package agent

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"screenrelay/pkg/capture"
	"screenrelay/pkg/logger"
	"screenrelay/pkg/protocol"
)

// Config holds agent settings
type Config struct {
	ServerURL       string
	SessionID       string
	CaptureInterval time.Duration
	HeartbeatEvery  time.Duration
	CaptureQuality  int
	// OfflineQueueSize bounds captures held while disconnected
	OfflineQueueSize int
	// ReconnectDelay is the initial reconnect delay; it backs off up to
	// ReconnectMaxDelay.
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
	InsecureTLS       bool
}

// AnswerHandler is invoked for each operator answer the agent receives
type AnswerHandler func(requestID, body string)

// Agent is the capture client
type Agent struct {
	cfg        Config
	supervisor *Supervisor
	capturer   *capture.ScreenCapturer
	onAnswer   AnswerHandler
	log        *logger.Logger

	mu   sync.Mutex
	send chan *protocol.Frame // nil while disconnected
}

// New creates an agent. The answer handler may be nil; answers are then
// only logged.
func New(cfg Config, onAnswer AnswerHandler) *Agent {
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = 30 * time.Second
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 30 * time.Second
	}
	if cfg.OfflineQueueSize <= 0 {
		cfg.OfflineQueueSize = 32
	}
	return &Agent{
		cfg:        cfg,
		supervisor: NewSupervisor(cfg.ReconnectDelay, cfg.ReconnectMaxDelay, cfg.OfflineQueueSize),
		capturer:   capture.NewScreenCapturer(cfg.CaptureQuality),
		onAnswer:   onAnswer,
		log:        logger.Get().With("session", cfg.SessionID),
	}
}

// Supervisor exposes channel state, mostly for diagnostics
func (a *Agent) Supervisor() *Supervisor {
	return a.supervisor
}

// Run connects and keeps the channel alive until the context ends. Each
// lost connection is followed by a supervised reconnect; the session
// identity stays the same so the relay rebinds rather than forgetting.
func (a *Agent) Run(ctx context.Context) error {
	go a.captureLoop(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.supervisor.MarkConnecting()
		conn, err := a.dial(ctx)
		if err != nil {
			a.supervisor.MarkDisconnected()
			delay := a.supervisor.NextDelay()
			a.log.WarnWith("dial failed, retrying", "error", err, "retry_in", delay)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		a.supervisor.MarkConnected()
		a.log.InfoWith("channel established", "url", a.cfg.ServerURL)
		a.runSession(ctx, conn)
		a.supervisor.MarkDisconnected()

		if err := ctx.Err(); err != nil {
			return err
		}
		delay := a.supervisor.NextDelay()
		a.log.InfoWith("channel lost, reconnecting", "retry_in", delay)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: a.cfg.InsecureTLS,
		},
	}
	conn, _, err := dialer.DialContext(ctx, a.cfg.ServerURL, http.Header{})
	return conn, err
}

// runSession drives one connection until it breaks. The handshake goes
// out first, then any captures queued while offline.
func (a *Agent) runSession(ctx context.Context, conn *websocket.Conn) {
	send := make(chan *protocol.Frame, 64)
	done := make(chan struct{})

	a.mu.Lock()
	a.send = send
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.send = nil
		a.mu.Unlock()
		conn.Close()
	}()

	go a.writePump(conn, send, done)

	handshake := protocol.NewHandshake(protocol.RoleClient, a.cfg.SessionID, "")
	select {
	case send <- handshake:
	case <-done:
		return
	}

	// Replay captures taken while the channel was down
	for _, queued := range a.supervisor.Drain() {
		select {
		case send <- queued:
		case <-done:
			return
		}
	}

	go a.heartbeatLoop(ctx, send, done)

	a.readPump(conn)
	close(done)
}

func (a *Agent) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				a.log.WarnWith("channel read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		frame, err := protocol.ParseFrame(raw)
		if err != nil {
			a.log.WarnWith("dropping malformed frame from relay", "error", err)
			continue
		}
		a.handleFrame(frame)
	}
}

func (a *Agent) writePump(conn *websocket.Conn, send chan *protocol.Frame, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-send:
			raw, err := frame.Encode()
			if err != nil {
				a.log.ErrorWithErr("could not encode frame", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

func (a *Agent) handleFrame(f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameTypeAnswer:
		a.log.InfoWith("answer received", "requestID", f.RequestID)
		if a.onAnswer != nil {
			a.onAnswer(f.RequestID, f.Body)
		}
	case protocol.FrameTypeError:
		a.log.WarnWith("error frame from relay", "reason", f.Reason, "requestID", f.RequestID)
	default:
		a.log.DebugWith("ignoring frame", "kind", f.Type)
	}
}

// captureLoop takes a capture every interval for the whole agent
// lifetime. While the channel is down captures go to the supervisor's
// offline queue.
func (a *Agent) captureLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.CaptureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.captureOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) captureOnce() {
	payload, meta, err := a.capturer.Capture()
	if err != nil {
		a.log.WarnWith("capture failed", "error", err)
		return
	}

	frame := protocol.NewCapture(a.cfg.SessionID, payload, meta)
	a.deliver(frame)
}

// deliver hands a frame to the live session or queues it for reconnect
func (a *Agent) deliver(f *protocol.Frame) {
	a.mu.Lock()
	send := a.send
	a.mu.Unlock()

	if send == nil {
		a.supervisor.Enqueue(f)
		return
	}
	select {
	case send <- f:
	default:
		// Session writer is wedged; treat like offline
		a.supervisor.Enqueue(f)
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context, send chan *protocol.Frame, done chan struct{}) {
	ticker := time.NewTicker(a.cfg.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			frame := protocol.NewHeartbeat(a.cfg.SessionID, collectStats())
			select {
			case send <- frame:
			default:
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sleepCtx waits for d or until the context ends, reporting whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
