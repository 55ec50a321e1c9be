package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "jobcascade API",
		Version:     "v1",
		Description: "Job configuration with template inheritance and downstream build triggering",
		Endpoints: []endpointInfo{
			{"/api/v1/projects", []string{"GET", "POST"}, "List projects or create one from scratch"},
			{"/api/v1/projects/{name}", []string{"GET", "DELETE"}, "Own configuration of a single project"},
			{"/api/v1/projects/{name}/effective", []string{"GET"}, "Configuration resolved through the template chain"},
			{"/api/v1/projects/{name}/config", []string{"PATCH"}, "Update cascaded fields; values equal to the template's are re-inherited"},
			{"/api/v1/projects/{name}/copy", []string{"POST"}, "Create a new project copied from this one"},
			{"/api/v1/projects/{name}/builds", []string{"GET"}, "Completed builds of a project"},
			{"/api/v1/graph", []string{"GET"}, "Current dependency graph snapshot"},
			{"/api/v1/graph/rebuild", []string{"POST"}, "Recompute the dependency graph"},
			{"/api/v1/builds", []string{"POST"}, "Report a completed build and trigger its dependents"},
			{"/api/v1/queue", []string{"GET"}, "Pending build requests"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
