package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/me/jobcascade/pkg/model"
)

type buildCompletedRequest struct {
	Project string            `json:"project"`
	Number  int               `json:"number"`
	Result  model.BuildResult `json:"result"`
}

type buildCompletedResponse struct {
	Build *model.Build `json:"build"`
	// Log is what the trigger executor wrote for each dependent.
	Log []string `json:"log"`
}

func (s *Server) handleBuildCompleted(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req buildCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var details []model.FieldError
	if req.Project == "" {
		details = append(details, model.FieldError{Field: "project", Message: "required"})
	}
	if !req.Result.Valid() {
		details = append(details, model.FieldError{Field: "result", Message: "must be one of SUCCESS, UNSTABLE, FAILURE, ABORTED"})
	}
	if req.Number < 0 {
		details = append(details, model.FieldError{Field: "number", Message: "must not be negative"})
	}
	if len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid build", details...))
		return
	}

	build, apiErr, status := s.recordBuild(r, req)
	if apiErr != nil {
		respondError(w, reqID, status, apiErr)
		return
	}

	var listener bytes.Buffer
	if err := s.graph.TriggerDependents(r.Context(), build, &listener); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	log := []string{}
	for _, line := range strings.Split(listener.String(), "\n") {
		if line != "" {
			log = append(log, line)
		}
	}
	respondCreated(w, reqID, buildCompletedResponse{Build: build, Log: log})
}

// recordBuild assigns a build number when none was given and stores the build.
// The project's counter changes only once the store has accepted it.
func (s *Server) recordBuild(r *http.Request, req buildCompletedRequest) (*model.Build, *model.APIError, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.projects.Lookup(req.Project)
	if p == nil {
		return nil, model.NewNotFoundError("project", req.Project), http.StatusNotFound
	}
	if p.HoldOffBuildUntilSave() {
		return nil, &model.APIError{
			Code:    model.ErrConflict,
			Message: "project '" + p.Name() + "' has not been saved since it was copied",
		}, http.StatusConflict
	}

	number := req.Number
	if number == 0 || number >= p.NextBuildNumber() {
		updated := model.ProjectFromRecord(p.Record())
		if number == 0 {
			number = updated.AssignBuildNumber()
		} else {
			updated.SetNextBuildNumber(number + 1)
		}
		if err := s.store.UpdateProject(r.Context(), updated); err != nil {
			return nil, &model.APIError{Code: model.ErrInternal, Message: err.Error()}, http.StatusInternalServerError
		}
		s.projects.Put(updated)
	}

	build := &model.Build{
		ID:          "b_" + uuid.New().String(),
		ProjectName: p.Name(),
		Number:      number,
		Result:      req.Result,
		CompletedAt: time.Now().UTC(),
	}
	if err := s.store.RecordBuild(r.Context(), build); err != nil {
		return nil, &model.APIError{Code: model.ErrInternal, Message: err.Error()}, http.StatusInternalServerError
	}
	s.logger.Info("build completed", "build", build.FullDisplayName(), "result", build.Result)
	return build, nil, 0
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	items, err := s.store.ListQueue(r.Context())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if items == nil {
		items = []*model.QueueItem{}
	}
	respondOK(w, reqID, items)
}
