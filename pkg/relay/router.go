package relay

import (
	"io"

	"screenrelay/pkg/logger"
	"screenrelay/pkg/metrics"
	"screenrelay/pkg/protocol"
)

// CaptureSink archives capture payloads durably. The router only holds the
// opaque reference it returns; the storage mechanism is not its concern.
type CaptureSink interface {
	SaveCapture(requestID, clientSessionID string, payload []byte, meta *protocol.CaptureMeta) (string, error)
	LoadCapture(requestID string) ([]byte, *protocol.CaptureMeta, error)
}

// AdminAuthorizer decides whether an identity may take the admin role.
// Checked before a connection is identified as admin.
type AdminAuthorizer interface {
	IsAuthorizedAdmin(identity string) bool
}

// RouterConfig carries the router's optional collaborators
type RouterConfig struct {
	Sink       CaptureSink     // nil disables payload archiving
	Authorizer AdminAuthorizer // nil accepts any admin handshake
	Metrics    *metrics.RelayMetrics
	// MaxPayloadBytes bounds capture payload size; zero means the
	// protocol default.
	MaxPayloadBytes int
}

// Router is the per-frame dispatch state machine. It validates inbound
// frames, updates the registry and ledger, and forwards frames to the
// correct peers. All sends are fire-and-forget; a failure never blocks the
// handling of other frames.
type Router struct {
	registry   *ConnectionRegistry
	ledger     *RequestLedger
	sink       CaptureSink
	authorizer AdminAuthorizer
	metrics    *metrics.RelayMetrics
	maxPayload int
	log        *logger.Logger
}

// NewRouter creates a router over the given stores
func NewRouter(registry *ConnectionRegistry, ledger *RequestLedger, cfg RouterConfig) *Router {
	maxPayload := cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = protocol.MaxPayloadBytes
	}
	return &Router{
		registry:   registry,
		ledger:     ledger,
		sink:       cfg.Sink,
		authorizer: cfg.Authorizer,
		metrics:    cfg.Metrics,
		maxPayload: maxPayload,
		log:        logger.Get(),
	}
}

// HandleFrame processes one raw inbound frame from a connection. Malformed
// frames are dropped with a diagnostic; the connection stays up.
func (rt *Router) HandleFrame(connID uint64, raw []byte) {
	frame, err := protocol.ParseFrame(raw)
	if err != nil {
		rt.log.WarnWith("dropping malformed frame", "connID", connID, "error", err)
		rt.countError(protocol.ReasonMalformedFrame)
		return
	}
	rt.countFrame(string(frame.Type))

	switch frame.Type {
	case protocol.FrameTypeHandshake:
		rt.handleHandshake(connID, frame)
	case protocol.FrameTypeCapture:
		rt.handleCapture(connID, frame)
	case protocol.FrameTypeAnswer:
		rt.handleAnswer(connID, frame)
	case protocol.FrameTypeHeartbeat:
		rt.handleHeartbeat(connID, frame)
	default:
		rt.log.WarnWith("dropping frame of unknown kind", "connID", connID, "kind", frame.Type)
		rt.countError(protocol.ReasonMalformedFrame)
	}
}

// HandleClose removes a connection after its channel closed
func (rt *Router) HandleClose(connID uint64) {
	rt.registry.Remove(connID)
	rt.syncGauges()
}

func (rt *Router) handleHandshake(connID uint64, f *protocol.Frame) {
	switch f.Role {
	case protocol.RoleClient:
		if f.ClientSessionID == "" {
			rt.log.WarnWith("client handshake without session id", "connID", connID)
			rt.countError(protocol.ReasonMalformedFrame)
			return
		}
		if err := rt.registry.Identify(connID, protocol.RoleClient, f.ClientSessionID); err != nil {
			rt.log.WarnWith("client identify rejected", "connID", connID, "error", err)
			return
		}
		rt.log.InfoWith("client session bound", "connID", connID, "session", f.ClientSessionID)
		rt.flushPending(f.ClientSessionID)

	case protocol.RoleAdmin:
		if rt.authorizer != nil && !rt.authorizer.IsAuthorizedAdmin(f.Token) {
			rt.log.WarnWith("admin handshake not authorized", "connID", connID)
			rt.sendError(connID, protocol.ReasonUnauthorized, "")
			return
		}
		if err := rt.registry.Identify(connID, protocol.RoleAdmin, ""); err != nil {
			rt.log.WarnWith("admin identify rejected", "connID", connID, "error", err)
			return
		}
		rt.log.InfoWith("admin connection identified", "connID", connID)

	default:
		rt.log.WarnWith("handshake with unknown role", "connID", connID, "role", f.Role)
		rt.countError(protocol.ReasonMalformedFrame)
	}
	rt.syncGauges()
}

func (rt *Router) handleCapture(connID uint64, f *protocol.Frame) {
	role, ok := rt.registry.Role(connID)
	if !ok || role != protocol.RoleClient {
		rt.log.WarnWith("capture from unidentified connection", "connID", connID)
		rt.countError(protocol.ReasonMalformedFrame)
		return
	}

	sessionID := f.ClientSessionID
	if sessionID == "" {
		sessionID, _ = rt.registry.SessionOf(connID)
	}
	if sessionID == "" {
		rt.log.WarnWith("capture without session id", "connID", connID)
		rt.countError(protocol.ReasonMalformedFrame)
		return
	}
	if len(f.Payload) > rt.maxPayload {
		rt.log.WarnWith("capture payload exceeds bound, dropping",
			"connID", connID, "session", sessionID, "bytes", len(f.Payload))
		rt.countError(protocol.ReasonMalformedFrame)
		return
	}

	requestID := rt.ledger.Open(sessionID)
	rt.registry.TouchSession(sessionID)

	if rt.sink != nil {
		ref, err := rt.sink.SaveCapture(requestID, sessionID, f.Payload, f.Meta)
		if err != nil {
			rt.log.ErrorWithErr("failed to archive capture payload", err, "requestID", requestID)
		} else {
			rt.ledger.SetStorageRef(requestID, ref)
		}
	}

	out := *f
	out.RequestID = requestID
	out.ClientSessionID = sessionID
	rt.broadcastToAdmins(&out, sessionID)
	rt.log.DebugWith("capture forwarded", "requestID", requestID, "session", sessionID)
	rt.syncGauges()
}

func (rt *Router) handleAnswer(connID uint64, f *protocol.Frame) {
	role, ok := rt.registry.Role(connID)
	if !ok || role != protocol.RoleAdmin {
		rt.log.WarnWith("answer from non-admin connection", "connID", connID)
		rt.countError(protocol.ReasonMalformedFrame)
		return
	}

	req, ok := rt.ledger.Resolve(f.RequestID)
	if !ok {
		// Already answered, expired, or never existed. Never guess at
		// a best-effort match.
		rt.log.InfoWith("answer for unknown request", "connID", connID, "requestID", f.RequestID)
		rt.countError(protocol.ReasonUnknownRequestID)
		rt.sendError(connID, protocol.ReasonUnknownRequestID, f.RequestID)
		return
	}

	targetConn, ok := rt.registry.Resolve(req.OriginSessionID)
	if !ok {
		// Origin session disconnected between capture and answer. The
		// entry is closed anyway; redelivery on reconnect is not
		// guaranteed and retry storms are worse.
		rt.log.InfoWith("answer for session with no live connection",
			"requestID", f.RequestID, "session", req.OriginSessionID)
		rt.countError(protocol.ReasonNoSuchRecipient)
		rt.sendError(connID, protocol.ReasonNoSuchRecipient, f.RequestID)
		rt.ledger.Close(f.RequestID)
		rt.syncGauges()
		return
	}

	answer := protocol.NewAnswer(f.RequestID, f.Body)
	if err := rt.sendTo(targetConn, answer); err != nil {
		rt.log.WarnWith("answer delivery failed, evicting connection",
			"connID", targetConn, "requestID", f.RequestID, "error", err)
		rt.evict(targetConn)
		rt.countError(protocol.ReasonNoSuchRecipient)
		rt.sendError(connID, protocol.ReasonNoSuchRecipient, f.RequestID)
	}
	rt.ledger.Close(f.RequestID)
	rt.syncGauges()
}

func (rt *Router) handleHeartbeat(connID uint64, f *protocol.Frame) {
	sessionID := f.ClientSessionID
	if sessionID == "" {
		sessionID, _ = rt.registry.SessionOf(connID)
	}
	if sessionID != "" {
		rt.registry.TouchSession(sessionID)
	}
	if f.Stats != nil {
		rt.log.DebugWith("heartbeat", "session", sessionID,
			"cpu", f.Stats.CPUUsage, "mem", f.Stats.MemUsage)
	}
}

// flushPending replays server-held pending requests for a reconnecting
// session to the current admin set, so reconnect does not lose in-flight
// context. Payloads are reloaded from the sink when available.
func (rt *Router) flushPending(clientSessionID string) {
	pending := rt.ledger.PendingForSession(clientSessionID)
	if len(pending) == 0 {
		return
	}
	rt.log.InfoWith("replaying pending requests for reconnected session",
		"session", clientSessionID, "count", len(pending))

	for _, req := range pending {
		frame := &protocol.Frame{
			Type:            protocol.FrameTypeCapture,
			RequestID:       req.ID,
			ClientSessionID: req.OriginSessionID,
			Timestamp:       req.CreatedAt,
		}
		if rt.sink != nil && req.StorageRef != "" {
			payload, meta, err := rt.sink.LoadCapture(req.ID)
			if err != nil {
				rt.log.WarnWith("could not reload archived capture",
					"requestID", req.ID, "error", err)
			} else {
				frame.Payload = payload
				frame.Meta = meta
			}
		}
		rt.broadcastToAdmins(frame, clientSessionID)
	}
}

// broadcastToAdmins fans a frame out to a stable snapshot of admin
// connections. A failed send evicts that admin only; the rest of the
// broadcast proceeds.
func (rt *Router) broadcastToAdmins(f *protocol.Frame, clientSessionID string) {
	admins := rt.registry.AdminConns()
	if len(admins) == 0 {
		rt.log.DebugWith("no admin connections for broadcast", "session", clientSessionID)
		return
	}
	for _, adminID := range admins {
		if err := rt.sendTo(adminID, f); err != nil {
			rt.log.WarnWith("broadcast to admin failed, evicting",
				"connID", adminID, "error", err)
			rt.evict(adminID)
			rt.countError("channel_failure")
			continue
		}
		rt.registry.RecordObserved(adminID, clientSessionID)
	}
}

func (rt *Router) sendTo(connID uint64, f *protocol.Frame) error {
	sender, ok := rt.registry.Sender(connID)
	if !ok {
		return ErrConnNotFound
	}
	return sender.Send(f)
}

func (rt *Router) sendError(connID uint64, reason, requestID string) {
	if err := rt.sendTo(connID, protocol.NewError(reason, requestID)); err != nil {
		rt.log.WarnWith("could not deliver error frame", "connID", connID, "error", err)
	}
}

// evict drops a connection whose channel failed, closing the underlying
// transport when the sender supports it.
func (rt *Router) evict(connID uint64) {
	if sender, ok := rt.registry.Sender(connID); ok {
		if closer, ok := sender.(io.Closer); ok {
			closer.Close()
		}
	}
	rt.registry.Remove(connID)
	rt.syncGauges()
}

func (rt *Router) countFrame(kind string) {
	if rt.metrics != nil {
		rt.metrics.FramesTotal.WithLabelValues(kind).Inc()
	}
}

func (rt *Router) countError(reason string) {
	if rt.metrics != nil {
		rt.metrics.DeliveryErrorsTotal.WithLabelValues(reason).Inc()
	}
}

func (rt *Router) syncGauges() {
	if rt.metrics == nil {
		return
	}
	clients, admins, unknown := rt.registry.Counts()
	rt.metrics.ActiveConnections.WithLabelValues("client").Set(float64(clients))
	rt.metrics.ActiveConnections.WithLabelValues("admin").Set(float64(admins))
	rt.metrics.ActiveConnections.WithLabelValues("unknown").Set(float64(unknown))
	rt.metrics.PendingRequests.Set(float64(rt.ledger.Len()))
}
