package auth

import (
	"errors"
	"fmt"

	"screenrelay/pkg/logger"
	"screenrelay/pkg/storage"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when a username/password pair does not match
var ErrBadCredentials = errors.New("bad credentials")

// Authorizer validates operator credentials against the store and admin
// channel tokens against the session manager. A connection may only take the
// admin role after this check passes.
type Authorizer struct {
	store    storage.Store
	sessions *SessionManager
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(store storage.Store, sessions *SessionManager) *Authorizer {
	return &Authorizer{
		store:    store,
		sessions: sessions,
	}
}

// IsAuthorizedAdmin reports whether an identity token belongs to a logged-in
// operator. The token is the session ID issued at panel login.
func (a *Authorizer) IsAuthorizedAdmin(identity string) bool {
	if identity == "" {
		return false
	}
	_, ok := a.sessions.GetSession(identity)
	return ok
}

// Login verifies a username/password pair and issues a session
func (a *Authorizer) Login(username, password string) (*Session, error) {
	_, hash, err := a.store.GetOperator(username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}

	if err := a.store.UpdateOperatorLastLogin(username); err != nil {
		logger.Get().WarnWith("could not record operator login", "username", username, "error", err)
	}

	return a.sessions.CreateSession(username)
}

// Logout removes a session
func (a *Authorizer) Logout(sessionID string) {
	a.sessions.DeleteSession(sessionID)
}

// HashPassword generates a bcrypt hash for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// EnsureOperator creates an operator account if it does not exist. Used to
// bootstrap the initial admin from configuration.
func EnsureOperator(store storage.Store, username, password string) error {
	exists, err := store.OperatorExists(username)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := store.CreateOperator(username, hash); err != nil {
		return err
	}
	logger.Get().InfoWith("bootstrap operator created", "username", username)
	return nil
}
