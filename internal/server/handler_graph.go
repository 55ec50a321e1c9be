package server

import (
	"errors"
	"net/http"

	"github.com/me/jobcascade/internal/depgraph"
	"github.com/me/jobcascade/pkg/model"
)

type graphResponse struct {
	Projects int                 `json:"projects"`
	Order    []string            `json:"order"`
	Edges    map[string][]string `json:"edges"`
}

func newGraphResponse(g *depgraph.Graph) graphResponse {
	order := g.Order()
	if order == nil {
		order = []string{}
	}
	return graphResponse{
		Projects: g.Len(),
		Order:    order,
		Edges:    g.Edges(),
	}
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, newGraphResponse(s.graph.Graph()))
}

func (s *Server) handleRebuildGraph(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if err := s.graph.Rebuild(r.Context()); err != nil {
		var gerr *depgraph.GraphError
		if errors.As(err, &gerr) {
			details := make([]model.FieldError, 0, len(gerr.Projects))
			for _, p := range gerr.Projects {
				details = append(details, model.FieldError{Field: "project", Message: p})
			}
			respondError(w, reqID, http.StatusUnprocessableEntity, &model.APIError{
				Code:    model.ErrValidation,
				Message: gerr.Error(),
				Details: details,
			})
			return
		}
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	respondOK(w, reqID, newGraphResponse(s.graph.Graph()))
}
