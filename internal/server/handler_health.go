package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Projects  int    `json:"projects"`
	Graph     int    `json:"graph_projects"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	storeStatus := "ok"
	if _, err := s.store.ListQueue(r.Context()); err != nil {
		s.logger.Warn("health check: store unavailable", "error", err)
		storeStatus = "unavailable"
	}

	status := "healthy"
	if storeStatus != "ok" {
		status = "degraded"
	}
	respondOK(w, reqID, healthResponse{
		Status:    status,
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     storeStatus,
		Projects:  s.projects.Len(),
		Graph:     s.graph.Graph().Len(),
	})
}
