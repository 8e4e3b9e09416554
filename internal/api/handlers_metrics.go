package api

import "net/http"

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	jsonResponse(w, http.StatusOK, StandardResponse{
		Success: true,
		Data: PoolStatsResponse{
			Size:      stats.Size,
			Available: stats.Available,
			InUse:     stats.InUse,
			Unhealthy: stats.Unhealthy,
			Waiting:   stats.Waiting,
			Restarts:  stats.Restarts,
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: s.metrics.Aggregate()})
}

func (s *Server) handleMetricsHistorical(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: s.metrics.Historical()})
}

func (s *Server) handleMetricsAlerts(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: s.metrics.Alerts()})
}
