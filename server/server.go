package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"screenrelay/pkg/auth"
	"screenrelay/pkg/config"
	"screenrelay/pkg/health"
	"screenrelay/pkg/logger"
	"screenrelay/pkg/metrics"
	"screenrelay/pkg/middleware"
	"screenrelay/pkg/relay"
	"screenrelay/pkg/storage"
)

// Server ties the relay core to its transports: the WebSocket channel
// endpoint for agents and operator consoles, and the REST API for the
// admin panel.
type Server struct {
	cfg      *config.ServerConfig
	registry *relay.ConnectionRegistry
	ledger   *relay.RequestLedger
	router   *relay.Router
	store    storage.Store
	sessions *auth.SessionManager
	auth     *auth.Authorizer
	metrics  *metrics.RelayMetrics
	monitor  *health.Monitor
	log      *logger.Logger

	httpServer *http.Server
	serverMu   sync.Mutex

	started   bool
	startedMu sync.Mutex
	stop      chan struct{}
}

// NewServer wires the relay core from configuration. The store is opened
// here and closed by Shutdown.
func NewServer(cfg *config.ServerConfig) (*Server, error) {
	log := logger.Get()

	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Bootstrap the configured panel operator so a fresh deployment can
	// log in.
	if err := auth.EnsureOperator(store, cfg.WebUI.Username, cfg.WebUI.Password); err != nil {
		store.Close()
		return nil, err
	}

	sessions := auth.NewSessionManager(24 * time.Hour)
	authorizer := auth.NewAuthorizer(store, sessions)
	relayMetrics := metrics.NewRelayMetrics()

	registry := relay.NewConnectionRegistry()
	ledger := relay.NewRequestLedger()
	router := relay.NewRouter(registry, ledger, relay.RouterConfig{
		Sink:            store,
		Authorizer:      authorizer,
		Metrics:         relayMetrics,
		MaxPayloadBytes: cfg.Relay.MaxPayloadBytes,
	})

	monitor := health.NewMonitor()
	monitor.SetComponentStatus("storage", health.StatusHealthy, cfg.Database.Type)
	monitor.SetComponentStatus("relay", health.StatusHealthy, "")

	return &Server{
		cfg:      cfg,
		registry: registry,
		ledger:   ledger,
		router:   router,
		store:    store,
		sessions: sessions,
		auth:     authorizer,
		metrics:  relayMetrics,
		monitor:  monitor,
		log:      log,
		stop:     make(chan struct{}),
	}, nil
}

// Start runs the HTTP listener. It blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start() error {
	s.startedMu.Lock()
	if s.started {
		s.startedMu.Unlock()
		return ErrServerStarted
	}
	s.started = true
	s.startedMu.Unlock()

	go s.sweepLoop()

	router := s.buildRouter()
	server := &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	if s.cfg.TLS.Enabled {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}

		s.serverMu.Lock()
		s.httpServer = server
		s.serverMu.Unlock()

		s.log.InfoWith("listening with TLS", "address", s.cfg.Address)
		return server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	s.serverMu.Lock()
	s.httpServer = server
	s.serverMu.Unlock()

	s.log.InfoWith("listening", "address", s.cfg.Address)
	return server.ListenAndServe()
}

// buildRouter assembles the HTTP surface: the channel endpoint, the panel
// API, and the operational endpoints.
func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})
	router.RemoteIPHeaders = []string{"X-Forwarded-For", "X-Real-IP"}
	router.ForwardedByClientIP = true

	// Channel endpoint for agents and operator consoles
	router.GET("/ws", s.handleChannel)

	// Panel auth
	router.POST("/api/login", s.handleLogin)
	router.POST("/api/logout", s.handleLogout)

	// Panel API, session-protected
	authed := router.Group("/api", s.requireSession())
	authed.GET("/stats", s.handleStats)
	authed.GET("/sessions", s.handleSessions)
	authed.GET("/requests", s.handleRequests)
	authed.GET("/captures/:id", s.handleCaptureDownload)
	authed.GET("/operators", s.handleOperatorsList)
	authed.POST("/operators", s.handleOperatorCreate)
	authed.DELETE("/operators/:username", s.handleOperatorDelete)

	// Operational endpoints
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	return router
}

// Shutdown stops the listener, the sweep loop, and closes the store
func (s *Server) Shutdown(ctx context.Context) error {
	s.startedMu.Lock()
	if s.started {
		s.started = false
		close(s.stop)
	}
	s.startedMu.Unlock()

	s.serverMu.Lock()
	httpServer := s.httpServer
	s.serverMu.Unlock()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.log.ErrorWithErr("http shutdown failed, forcing close", err)
			httpServer.Close()
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.ErrorWithErr("error closing store", err)
		}
	}

	s.log.Info("shutdown complete")
	return nil
}

// sweepLoop periodically reclaims pending requests whose origin session
// is gone and whose age exceeds the configured bound, and purges archived
// captures past their retention.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.cfg.Relay.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stop:
			return
		}
	}
}

// runSweep is one sweep pass
func (s *Server) runSweep() {
	evicted := s.ledger.Sweep(s.cfg.Relay.RequestMaxAge, s.registry.SessionAlive)
	if len(evicted) > 0 {
		s.metrics.OrphansSweptTotal.Add(float64(len(evicted)))
		s.metrics.PendingRequests.Set(float64(s.ledger.Len()))
		s.log.InfoWith("swept orphaned requests", "count", len(evicted))
		for _, id := range evicted {
			if err := s.store.DeleteCapture(id); err != nil {
				s.log.WarnWith("could not drop archived capture", "requestID", id, "error", err)
			}
		}
	}

	if s.cfg.Relay.CaptureRetention > 0 {
		purged, err := s.store.PurgeCaptures(s.cfg.Relay.CaptureRetention)
		if err != nil {
			s.log.WarnWith("capture retention purge failed", "error", err)
		} else if purged > 0 {
			s.log.InfoWith("purged expired captures", "count", purged)
		}
	}
}
