// Package health tracks server health metrics for the /healthz endpoint.
package health

import (
	"runtime"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health status of a single component
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// ServerHealth represents overall relay health
type ServerHealth struct {
	Status          Status            `json:"status"`
	Uptime          int64             `json:"uptime_seconds"`
	Timestamp       time.Time         `json:"timestamp"`
	ClientConns     int               `json:"client_connections"`
	AdminConns      int               `json:"admin_connections"`
	PendingRequests int               `json:"pending_requests"`
	Goroutines      int               `json:"goroutines"`
	MemoryMB        uint64            `json:"memory_mb"`
	Components      []ComponentHealth `json:"components"`
}

// Monitor tracks relay health
type Monitor struct {
	startTime  time.Time
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:  time.Now(),
		components: make(map[string]*ComponentHealth),
	}
}

// SetComponentStatus updates the status of a component
func (m *Monitor) SetComponentStatus(name string, status Status, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = &ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		LastChecked: time.Now(),
	}
}

// GetHealth returns the current relay health
func (m *Monitor) GetHealth(clientConns, adminConns, pendingRequests int) *ServerHealth {
	m.mu.RLock()
	components := make([]ComponentHealth, 0, len(m.components))
	overallStatus := StatusHealthy
	for _, comp := range m.components {
		components = append(components, *comp)
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if comp.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}
	m.mu.RUnlock()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	return &ServerHealth{
		Status:          overallStatus,
		Uptime:          int64(time.Since(m.startTime).Seconds()),
		Timestamp:       time.Now(),
		ClientConns:     clientConns,
		AdminConns:      adminConns,
		PendingRequests: pendingRequests,
		Goroutines:      runtime.NumGoroutine(),
		MemoryMB:        stats.Alloc / 1024 / 1024,
		Components:      components,
	}
}
