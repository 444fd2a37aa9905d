// Package auth provides operator authentication and session management for
// the relay's admin surface.
//
// This package includes:
// - SessionManager: manages admin panel sessions with automatic expiration
// - Authorizer: validates operator credentials and admin channel tokens
//
// Usage:
//
//	sessionMgr := auth.NewSessionManager(24 * time.Hour)
//	authorizer := auth.NewAuthorizer(store, sessionMgr)
//
//	// Create a session after a successful login
//	session, err := sessionMgr.CreateSession("username")
//
//	// Check an admin channel identity token
//	ok := authorizer.IsAuthorizedAdmin(token)
package auth
