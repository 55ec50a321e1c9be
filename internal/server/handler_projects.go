package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/jobcascade/internal/cascade"
	"github.com/me/jobcascade/internal/jobfile"
	"github.com/me/jobcascade/pkg/model"
)

// projectResponse is a project's own configuration. GraphWarning is set when
// the change left the dependency graph on its previous snapshot.
type projectResponse struct {
	model.ProjectRecord
	GraphWarning string `json:"graph_warning,omitempty"`
}

// configRequest is the body of PATCH /projects/{name}/config. Absent members
// are left alone; null clears an override.
type configRequest struct {
	cascade.Update
	Disabled *bool                               `json:"disabled"`
	Triggers cascade.Optional[*jobfile.Triggers] `json:"triggers"`
}

type copyRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid limit", model.FieldError{Field: "limit", Message: err.Error()}))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid offset", model.FieldError{Field: "offset", Message: err.Error()}))
			return
		}
		opts.Offset = n
	}
	opts.Group = q.Get("group")
	opts.Clamp()

	projects, total, err := s.store.ListProjects(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	data := make([]model.ProjectRecord, 0, len(projects))
	for _, p := range projects {
		data = append(data, p.Record())
	}
	respondList(w, reqID, data, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var def jobfile.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := (&jobfile.File{Projects: []jobfile.Definition{def}}).Validate(); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if apiErr := s.checkTemplate(def.Name, def.Template); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	p := def.BuildWith(s.resolver)
	if !s.projects.Add(p) {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError("project", def.Name))
		return
	}
	s.initializer.OnCreatedFromScratch(r.Context(), p)
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.projects.Remove(p.Name())
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("project created", "project", p.Name(), "created_by", p.CreatedBy())
	respondCreated(w, reqID, projectResponse{
		ProjectRecord: p.Record(),
		GraphWarning:  s.rebuildGraph(r.Context()),
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	respondOK(w, reqID, projectResponse{ProjectRecord: p.Record()})
}

func (s *Server) handleGetEffective(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	respondOK(w, reqID, s.resolver.Resolve(p))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if t := req.Triggers.Value; t != nil && t.Threshold != "" && !t.Threshold.Valid() {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("unknown trigger threshold",
			model.FieldError{Field: "triggers.threshold", Message: string(t.Threshold)}))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	if req.Template.Set {
		if apiErr := s.checkTemplate(current.Name(), req.Template.Value); apiErr != nil {
			respondError(w, reqID, http.StatusBadRequest, apiErr)
			return
		}
	}

	// The live project is replaced only after the copy is saved.
	p := model.ProjectFromRecord(current.Record())
	s.resolver.Apply(p, req.Update)
	if req.Disabled != nil {
		p.SetDisabled(*req.Disabled)
	}
	if req.Triggers.Set {
		if t := req.Triggers.Value; t != nil && len(t.Downstream) > 0 {
			p.PutProperty(&model.BuildTriggerProperty{
				Downstream: append([]string(nil), t.Downstream...),
				Threshold:  t.Threshold,
			})
		} else {
			p.RemoveProperty(model.PropertyBuildTrigger)
		}
	}
	p.SetHoldOffBuildUntilSave(false)

	if err := s.store.UpdateProject(r.Context(), p); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	s.projects.Put(p)

	s.logger.Info("project configuration updated", "project", p.Name())
	respondOK(w, reqID, projectResponse{
		ProjectRecord: p.Record(),
		GraphWarning:  s.rebuildGraph(r.Context()),
	})
}

func (s *Server) handleCopyProject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req copyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("name is required",
			model.FieldError{Field: "name", Message: "required"}))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.lookupProject(w, r)
	if !ok {
		return
	}

	rec := src.Record()
	rec.Name = req.Name
	rec.CreationTime = time.Time{}
	rec.CreatedBy = ""
	p := model.ProjectFromRecord(rec)

	if !s.projects.Add(p) {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError("project", req.Name))
		return
	}
	s.initializer.OnCopiedFrom(r.Context(), p, src)
	if err := s.store.CreateProject(r.Context(), p); err != nil {
		s.projects.Remove(p.Name())
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}

	s.logger.Info("project copied", "project", p.Name(), "source", src.Name(), "created_by", p.CreatedBy())
	respondCreated(w, reqID, projectResponse{
		ProjectRecord: p.Record(),
		GraphWarning:  s.rebuildGraph(r.Context()),
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteProject(r.Context(), p.Name()); err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	s.projects.Remove(p.Name())

	var orphaned []string
	for _, d := range s.projects.Dependents(p.Name()) {
		orphaned = append(orphaned, d.Name())
	}
	if len(orphaned) > 0 {
		s.logger.Warn("deleted project was a template", "project", p.Name(), "dependents", orphaned)
	}

	respondOK(w, reqID, map[string]any{
		"deleted":       true,
		"template_of":   orphaned,
		"graph_warning": s.rebuildGraph(r.Context()),
	})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	p, ok := s.lookupProject(w, r)
	if !ok {
		return
	}

	builds, err := s.store.ListBuilds(r.Context(), p.Name())
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if builds == nil {
		builds = []*model.Build{}
	}
	respondOK(w, reqID, builds)
}

// lookupProject resolves the {name} URL parameter, writing a 404 when the
// project does not exist.
func (s *Server) lookupProject(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	name := chi.URLParam(r, "name")
	p := s.projects.Lookup(name)
	if p == nil {
		respondError(w, RequestIDFromContext(r.Context()), http.StatusNotFound, model.NewNotFoundError("project", name))
		return nil, false
	}
	return p, true
}

// checkTemplate rejects template assignments that name a missing project or
// would make the template chain of project cyclic. An empty template is
// always accepted.
func (s *Server) checkTemplate(project, template string) *model.APIError {
	if template == "" {
		return nil
	}
	if template == project {
		return model.NewValidationError("a project cannot be its own template",
			model.FieldError{Field: "template", Message: template})
	}
	seen := map[string]bool{}
	for cur := s.projects.Lookup(template); cur != nil; cur = s.projects.Lookup(cur.TemplateName()) {
		if cur.Name() == project {
			return model.NewValidationError("template chain would contain a cycle",
				model.FieldError{Field: "template", Message: fmt.Sprintf("%s inherits from %s", template, project)})
		}
		if seen[cur.Name()] || cur.TemplateName() == "" {
			return nil
		}
		seen[cur.Name()] = true
	}
	if s.projects.Lookup(template) == nil {
		return model.NewValidationError("template not found",
			model.FieldError{Field: "template", Message: template})
	}
	return nil
}

// rebuildGraph recomputes the dependency graph after a project change. A
// failure keeps the previous snapshot and is returned as a warning.
func (s *Server) rebuildGraph(ctx context.Context) string {
	if err := s.graph.Rebuild(ctx); err != nil {
		s.logger.Warn("dependency graph not rebuilt", "error", err)
		return err.Error()
	}
	return ""
}
