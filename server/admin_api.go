package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"screenrelay/pkg/auth"
	"screenrelay/pkg/storage"
)

// sessionCookie is the panel session cookie name. The same session ID
// doubles as the admin token on the channel handshake.
const sessionCookie = "session_id"

// requireSession guards panel API routes. The session ID is taken from
// the Authorization header (Bearer) or the session cookie.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(sessionCookie); err == nil {
				token = cookie
			}
		}

		session, ok := s.sessions.GetSession(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		s.sessions.RefreshSession(session.ID)
		c.Set("operator", session.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin verifies operator credentials and issues a panel session.
// The returned token is also what an operator console presents on its
// channel handshake.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	session, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		s.log.WarnWith("login rejected", "username", req.Username, "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(sessionCookie, session.ID, int(session.ExpiresAt.Sub(session.CreatedAt).Seconds()), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"token": session.ID, "username": session.Username})
}

func (s *Server) handleLogout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		if cookie, err := c.Cookie(sessionCookie); err == nil {
			token = cookie
		}
	}
	if token != "" {
		s.auth.Logout(token)
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStats reports live relay counters for the panel dashboard
func (s *Server) handleStats(c *gin.Context) {
	clients, admins, unknown := s.registry.Counts()
	captures, err := s.store.CountCaptures()
	if err != nil {
		captures = -1
	}
	c.JSON(http.StatusOK, gin.H{
		"client_connections":  clients,
		"admin_connections":   admins,
		"unknown_connections": unknown,
		"pending_requests":    s.ledger.Len(),
		"archived_captures":   captures,
	})
}

// handleSessions lists known client sessions, connected or not
func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Sessions())
}

// handleRequests lists pending capture requests in creation order
func (s *Server) handleRequests(c *gin.Context) {
	c.JSON(http.StatusOK, s.ledger.Pending())
}

// handleCaptureDownload serves an archived capture payload by request ID
func (s *Server) handleCaptureDownload(c *gin.Context) {
	requestID := c.Param("id")
	payload, meta, err := s.store.LoadCapture(requestID)
	if err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such capture"})
			return
		}
		s.log.ErrorWithErr("capture load failed", err, "requestID", requestID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}

	contentType := "application/octet-stream"
	if meta != nil {
		switch meta.Format {
		case "png":
			contentType = "image/png"
		case "jpg", "jpeg":
			contentType = "image/jpeg"
		}
	}
	c.Data(http.StatusOK, contentType, payload)
}

func (s *Server) handleOperatorsList(c *gin.Context) {
	operators, err := s.store.GetAllOperators()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, operators)
}

type operatorRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleOperatorCreate(c *gin.Context) {
	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}
	if err := s.store.CreateOperator(req.Username, hash); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "operator already exists"})
		return
	}

	s.log.InfoWith("operator created", "username", req.Username, "by", c.GetString("operator"))
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (s *Server) handleOperatorDelete(c *gin.Context) {
	username := c.Param("username")
	if username == c.GetString("operator") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the operator you are logged in as"})
		return
	}
	if err := s.store.DeleteOperator(username); err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such operator"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleHealthz reports process and relay health, unauthenticated for
// load balancer probes
func (s *Server) handleHealthz(c *gin.Context) {
	clients, admins, _ := s.registry.Counts()
	c.JSON(http.StatusOK, s.monitor.GetHealth(clients, admins, s.ledger.Len()))
}
