package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gymdesk/internal/auth"
)

const bytesPerMB = 1 << 20

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     time.Time                    `json:"timestamp"`
	Version       string                       `json:"version"`
	UptimeSeconds int64                        `json:"uptime_seconds"`
	Runtime       RuntimeMetrics               `json:"runtime"`
	LiveFeed      FeedMetrics                  `json:"live_feed"`
	Integrations  map[string]IntegrationStatus `json:"integrations"`
	Members       MemberMetrics                `json:"members"`
	Database      *DatabaseMetrics             `json:"database,omitempty"`
}

// RuntimeMetrics are Go runtime counters.
type RuntimeMetrics struct {
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// FeedMetrics describes the admin live feed.
type FeedMetrics struct {
	Clients int `json:"clients"`
}

// IntegrationStatus reports an optional outbound connection.
type IntegrationStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// MemberMetrics counts accounts by role.
type MemberMetrics struct {
	Total  int            `json:"total"`
	ByRole map[string]int `json:"by_role"`
}

// DatabaseMetrics is a subset of the SQLite pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
	WaitMillis      int64 `json:"wait_ms"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := SystemMetrics{
		Timestamp:     s.now().UTC(),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       runtimeMetrics(),
		LiveFeed:      FeedMetrics{Clients: s.hub.ClientCount()},
		Integrations: map[string]IntegrationStatus{
			"mqtt": {Enabled: s.mqtt != nil, Connected: s.mqtt != nil && s.mqtt.IsConnected()},
		},
		Members: s.memberMetrics(r.Context()),
	}
	if s.db != nil {
		st := s.db.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			WaitCount:       st.WaitCount,
			WaitMillis:      st.WaitDuration.Milliseconds(),
		}
	}
	writeJSON(w, http.StatusOK, m)
}

func runtimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  float64(ms.HeapAlloc) / bytesPerMB,
		TotalAllocMB: float64(ms.TotalAlloc) / bytesPerMB,
		NumGC:        ms.NumGC,
	}
}

// memberMetrics counts accounts. Failures are logged and leave zeros.
func (s *Server) memberMetrics(ctx context.Context) MemberMetrics {
	m := MemberMetrics{ByRole: make(map[string]int, len(auth.ValidRoles))}
	for _, role := range auth.ValidRoles {
		n, err := s.users.CountByRole(ctx, role)
		if err != nil {
			s.logger.Warn("counting members for metrics failed", "role", role, "error", err)
			continue
		}
		m.ByRole[string(role)] = n
		m.Total += n
	}
	return m
}
