package storage

import (
	"errors"
	"time"

	"screenrelay/pkg/protocol"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store defines the interface for persistent storage operations
type Store interface {
	// Capture archive. SaveCapture returns an opaque storage reference
	// for the archived payload.
	SaveCapture(requestID, clientSessionID string, payload []byte, meta *protocol.CaptureMeta) (string, error)
	LoadCapture(requestID string) ([]byte, *protocol.CaptureMeta, error)
	DeleteCapture(requestID string) error
	PurgeCaptures(olderThan time.Duration) (int64, error)
	CountCaptures() (int, error)

	// Operator accounts for the admin panel and admin channel auth
	CreateOperator(username, passwordHash string) error
	GetOperator(username string) (*Operator, string, error)
	GetAllOperators() ([]*Operator, error)
	DeleteOperator(username string) error
	OperatorExists(username string) (bool, error)
	UpdateOperatorLastLogin(username string) error

	// Lifecycle
	Close() error
}

// Operator represents an admin panel account
type Operator struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}
