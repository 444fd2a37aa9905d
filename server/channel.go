package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"screenrelay/pkg/logger"
	"screenrelay/pkg/protocol"
	"screenrelay/pkg/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Agents connect from arbitrary networks; the handshake frame
		// carries the actual authorization.
		return true
	},
}

// channelConn is one WebSocket channel. Outbound frames are queued on a
// buffered channel drained by writePump; a full queue fails the send so
// the router can evict the connection.
type channelConn struct {
	conn *websocket.Conn
	send chan *protocol.Frame

	mu     sync.Mutex
	closed bool

	log *logger.Logger
}

func newChannelConn(conn *websocket.Conn, queueSize int) *channelConn {
	if queueSize < 1 {
		queueSize = 256
	}
	return &channelConn{
		conn: conn,
		send: make(chan *protocol.Frame, queueSize),
		log:  logger.Get(),
	}
}

// Send queues a frame for delivery. It never blocks: a closed connection
// or a full queue is a channel failure reported to the caller.
func (c *channelConn) Send(f *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	// Held lock serializes against Close, so the queue cannot be closed
	// under us here.
	select {
	case c.send <- f:
		return nil
	default:
		return relay.ErrSendBufferFull
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *channelConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	return c.conn.Close()
}

// handleChannel upgrades the request and runs the connection until its
// channel closes. Role and identity arrive in the first frames; the
// router handles them like any other frame.
func (s *Server) handleChannel(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WarnWith("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	cc := newChannelConn(conn, s.cfg.Relay.SendQueueSize)
	connID := s.registry.Register(cc)
	s.log.DebugWith("channel opened", "connID", connID, "remote", c.ClientIP())

	go s.writePump(cc)
	go s.readPump(connID, cc)
}

// readPump reads frames off the wire and hands them to the router. It
// owns connection teardown: when the read loop exits the connection is
// removed from the registry.
func (s *Server) readPump(connID uint64, cc *channelConn) {
	defer func() {
		cc.Close()
		s.router.HandleClose(connID)
		s.log.DebugWith("channel closed", "connID", connID)
	}()

	cc.conn.SetReadLimit(int64(s.cfg.Relay.MaxPayloadBytes) + 64*1024)
	cc.conn.SetReadDeadline(time.Now().Add(pongWait))
	cc.conn.SetPongHandler(func(string) error {
		cc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := cc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.WarnWith("channel read error", "connID", connID, "error", err)
			}
			return
		}
		cc.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.router.HandleFrame(connID, raw)
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (s *Server) writePump(cc *channelConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cc.Close()
	}()

	for {
		select {
		case frame, ok := <-cc.send:
			if !ok {
				cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
				cc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := frame.Encode()
			if err != nil {
				cc.log.ErrorWithErr("could not encode outbound frame", err)
				continue
			}
			cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			cc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
