package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// FrameType defines the kind of frame being sent
type FrameType string

const (
	// FrameTypeHandshake declares the role of a freshly opened connection
	FrameTypeHandshake FrameType = "handshake"

	// FrameTypeCapture carries a screen capture from an agent
	FrameTypeCapture FrameType = "capture"

	// FrameTypeAnswer carries an operator's reply to a capture request
	FrameTypeAnswer FrameType = "answer"

	// FrameTypeHeartbeat carries periodic agent liveness and system stats
	FrameTypeHeartbeat FrameType = "heartbeat"

	// FrameTypeError reports a delivery or validation failure to the sender
	FrameTypeError FrameType = "error"
)

// Role identifies which side of the relay a connection belongs to
type Role string

const (
	RoleUnknown Role = ""
	RoleClient  Role = "client"
	RoleAdmin   Role = "admin"
)

// Error reasons carried in error frames
const (
	ReasonMalformedFrame   = "malformed_frame"
	ReasonUnknownRequestID = "unknown_request_id"
	ReasonNoSuchRecipient  = "no_such_recipient"
	ReasonUnauthorized     = "unauthorized"
)

// MaxPayloadBytes bounds the size of a capture payload the relay accepts.
// Payloads are otherwise opaque to the relay.
const MaxPayloadBytes = 8 << 20

// Frame is the single message structure carried over the channel. Which
// fields are populated depends on Type; unused fields are omitted on the
// wire.
type Frame struct {
	Type            FrameType    `json:"type,omitempty"`
	Role            Role         `json:"role,omitempty"`
	ClientSessionID string       `json:"clientSessionId,omitempty"`
	RequestID       string       `json:"requestId,omitempty"`
	Payload         []byte       `json:"payload,omitempty"`
	Meta            *CaptureMeta `json:"meta,omitempty"`
	Body            string       `json:"body,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	Token           string       `json:"token,omitempty"`
	Stats           *AgentStats  `json:"stats,omitempty"`
	Timestamp       time.Time    `json:"timestamp,omitempty"`
}

// CaptureMeta describes an encoded capture image
type CaptureMeta struct {
	Format string `json:"format"` // png, jpg
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// AgentStats carries agent host health reported with heartbeats
type AgentStats struct {
	Hostname string  `json:"hostname,omitempty"`
	OS       string  `json:"os,omitempty"`
	Arch     string  `json:"arch,omitempty"`
	CPUUsage float64 `json:"cpu_usage,omitempty"`
	MemUsage float64 `json:"mem_usage,omitempty"`
	Uptime   int64   `json:"uptime,omitempty"` // seconds
}

// ErrMissingType is returned when a frame declares no kind and cannot be
// classified as a handshake.
var ErrMissingType = errors.New("frame has no type")

// ParseFrame decodes a raw frame and resolves its kind. A frame without an
// explicit type but with a role set is treated as a handshake, matching the
// minimum handshake shape of {role, clientSessionId}.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f.Type == "" {
		if f.Role == "" {
			return nil, ErrMissingType
		}
		f.Type = FrameTypeHandshake
	}
	return &f, nil
}

// NewHandshake builds a handshake frame for the given role. clientSessionID
// is required for RoleClient and ignored for RoleAdmin.
func NewHandshake(role Role, clientSessionID, token string) *Frame {
	return &Frame{
		Type:            FrameTypeHandshake,
		Role:            role,
		ClientSessionID: clientSessionID,
		Token:           token,
		Timestamp:       time.Now(),
	}
}

// NewCapture builds a capture frame as sent by an agent. The relay stamps
// RequestID before forwarding to operators.
func NewCapture(clientSessionID string, payload []byte, meta *CaptureMeta) *Frame {
	return &Frame{
		Type:            FrameTypeCapture,
		ClientSessionID: clientSessionID,
		Payload:         payload,
		Meta:            meta,
		Timestamp:       time.Now(),
	}
}

// NewAnswer builds an answer frame referencing a pending capture request
func NewAnswer(requestID, body string) *Frame {
	return &Frame{
		Type:      FrameTypeAnswer,
		RequestID: requestID,
		Body:      body,
		Timestamp: time.Now(),
	}
}

// NewError builds an error frame. requestID may be empty when the failure is
// not tied to a specific request.
func NewError(reason, requestID string) *Frame {
	return &Frame{
		Type:      FrameTypeError,
		Reason:    reason,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// NewHeartbeat builds a heartbeat frame with optional host stats
func NewHeartbeat(clientSessionID string, stats *AgentStats) *Frame {
	return &Frame{
		Type:            FrameTypeHeartbeat,
		ClientSessionID: clientSessionID,
		Stats:           stats,
		Timestamp:       time.Now(),
	}
}

// Encode marshals the frame for the wire
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
