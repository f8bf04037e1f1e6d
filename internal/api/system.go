package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// handleListEvents returns the most recent retained events, newest last.
//
//	GET /api/v1/events?limit=50
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.habitat.RecentEvents(limit)})
}

// handleReload re-reads persisted configuration into the running system.
// Adapters keep running; only sources without a cache entry are seeded.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.habitat.Reload(r.Context()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}

// SystemMetrics is the metrics response body.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Adapters      AdapterMetrics `json:"adapters"`
	Spaces        SpaceMetrics   `json:"spaces"`
	Events        EventMetrics   `json:"events"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// AdapterMetrics counts supervised adapters by status.
type AdapterMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// SpaceMetrics counts the provisioned graph.
type SpaceMetrics struct {
	Spaces  int `json:"spaces"`
	Sources int `json:"sources"`
}

// EventMetrics reports the retained event ring.
type EventMetrics struct {
	Retained int `json:"retained"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := s.sup.Health()
	byStatus := make(map[string]int)
	for _, h := range health {
		byStatus[string(h.Status)]++
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Adapters:  AdapterMetrics{Total: len(health), ByStatus: byStatus},
		Spaces: SpaceMetrics{
			Spaces:  len(s.spaces.GetAllSpaces()),
			Sources: s.spaces.SourceCount(),
		},
		Events: EventMetrics{Retained: len(s.habitat.RecentEvents(0))},
	})
}
