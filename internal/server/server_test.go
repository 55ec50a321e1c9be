package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/me/jobcascade/internal/cascade"
	"github.com/me/jobcascade/internal/config"
	"github.com/me/jobcascade/internal/depgraph"
	"github.com/me/jobcascade/internal/lifecycle"
	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/internal/registry"
	"github.com/me/jobcascade/internal/store"
	"github.com/me/jobcascade/internal/trigger"
	"github.com/me/jobcascade/pkg/model"
)

type testEnv struct {
	srv   *Server
	store *store.SQLiteStore
}

func testServer(t *testing.T, strategy model.AuthorizationStrategy) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	m := metrics.New()
	reg := registry.New()
	resolver := cascade.New(reg, config.NewGlobalDefaults(config.DefaultsConfig{QuietPeriod: 5}), logger)
	in := lifecycle.New(lifecycle.UserFunc(UserFromContext),
		config.NewAuthorizationProvider(config.AuthorizationConfig{Strategy: string(strategy)}),
		logger, lifecycle.WithMetrics(m))
	exec := trigger.NewExecutor(st, resolver, reg, logger, trigger.WithMetrics(m))
	graph := depgraph.NewService(reg, exec, logger, depgraph.WithMetrics(m))

	return &testEnv{
		srv:   New(st, reg, resolver, in, graph, logger, WithMetrics(m)),
		store: st,
	}
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// do sends a request as user ("" for anonymous) and checks the status code.
func do(t *testing.T, srv *Server, method, path, user, body string, wantStatus int) envelope {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(RemoteUserHeader, user)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	return do(t, srv, "GET", path, "", "", http.StatusOK)
}

func decodeRecord(t *testing.T, env envelope) model.ProjectRecord {
	t.Helper()
	var rec model.ProjectRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	return rec
}

func TestDiscovery(t *testing.T) {
	env := doGet(t, testServer(t, model.StrategyUnsecured).srv, "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "jobcascade API" {
		t.Errorf("name = %q, want jobcascade API", data.Name)
	}
	if len(data.Endpoints) < 10 {
		t.Errorf("endpoints count = %d, want >= 10", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	env := doGet(t, testServer(t, model.StrategyUnsecured).srv, "/api/v1/health")

	var data struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Store   string `json:"store"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.Version != Version {
		t.Errorf("version = %q, want %s", data.Version, Version)
	}
	if data.Store != "ok" {
		t.Errorf("store = %q, want ok", data.Store)
	}
}

func TestCreateProject_GrantsCreator(t *testing.T) {
	te := testServer(t, model.StrategyProjectMatrix)
	env := do(t, te.srv, "POST", "/api/v1/projects/", "alice", `{"name":"core","quiet_period":"3"}`, http.StatusCreated)

	rec := decodeRecord(t, env)
	if rec.Name != "core" || rec.QuietPeriod != "3" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CreatedBy != "alice" {
		t.Errorf("created_by = %q, want alice", rec.CreatedBy)
	}
	if rec.CreationTime.IsZero() {
		t.Error("creation_time not stamped")
	}
	auth, ok := rec.Properties.Get(model.PropertyAuthorizationMatrix).(*model.AuthorizationMatrixProperty)
	if !ok {
		t.Fatalf("properties = %+v, want authorization matrix", rec.Properties.All())
	}
	for _, perm := range model.CreatorPermissions {
		if !auth.HasPermission("alice", perm) {
			t.Errorf("alice lacks %s", perm)
		}
	}

	stored, err := te.store.GetProject(context.Background(), "core")
	if err != nil || stored == nil {
		t.Fatalf("GetProject: %v, %v", stored, err)
	}
	if stored.CreatedBy() != "alice" {
		t.Errorf("stored created_by = %q, want alice", stored.CreatedBy())
	}
}

func TestCreateProject_NoGrant(t *testing.T) {
	tests := []struct {
		name     string
		strategy model.AuthorizationStrategy
		user     string
	}{
		{"anonymous", model.StrategyProjectMatrix, ""},
		{"global matrix", model.StrategyGlobalMatrix, "alice"},
		{"unsecured", model.StrategyUnsecured, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := testServer(t, tt.strategy)
			rec := decodeRecord(t, do(t, te.srv, "POST", "/api/v1/projects/", tt.user, `{"name":"core"}`, http.StatusCreated))
			if rec.Properties.Len() != 0 {
				t.Errorf("properties = %d, want 0", rec.Properties.Len())
			}
			if rec.CreatedBy != tt.user {
				t.Errorf("created_by = %q, want %q", rec.CreatedBy, tt.user)
			}
		})
	}
}

func TestCreateProject_Errors(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"core"}`, http.StatusCreated)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `not json`, http.StatusBadRequest},
		{"missing name", `{"jdk":"17"}`, http.StatusBadRequest},
		{"duplicate", `{"name":"core"}`, http.StatusConflict},
		{"unknown template", `{"name":"app","template":"nope"}`, http.StatusBadRequest},
		{"self template", `{"name":"app","template":"app"}`, http.StatusBadRequest},
		{"bad threshold", `{"name":"app","triggers":{"downstream":["core"],"threshold":"MEH"}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := do(t, te.srv, "POST", "/api/v1/projects/", "", tt.body, tt.want)
			if env.Status != "error" || env.Error == nil {
				t.Errorf("envelope = %+v, want error", env)
			}
		})
	}
}

func TestGetProject_NotFound(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	for _, path := range []string{
		"/api/v1/projects/missing/",
		"/api/v1/projects/missing/effective",
		"/api/v1/projects/missing/builds",
	} {
		env := do(t, te.srv, "GET", path, "", "", http.StatusNotFound)
		if env.Error == nil || env.Error.Code != model.ErrNotFound {
			t.Errorf("GET %s: error = %+v, want NOT_FOUND", path, env.Error)
		}
	}
}

func TestListProjects(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"b","group":"web"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"a","group":"web"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"c","group":"infra"}`, http.StatusCreated)

	env := doGet(t, te.srv, "/api/v1/projects/?group=web")
	var recs []model.ProjectRecord
	if err := json.Unmarshal(env.Data, &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "a" || recs[1].Name != "b" {
		t.Errorf("projects = %+v, want a, b", recs)
	}
	if env.Pagination == nil || env.Pagination.Total != 2 {
		t.Errorf("pagination = %+v, want total 2", env.Pagination)
	}

	do(t, te.srv, "GET", "/api/v1/projects/?limit=x", "", "", http.StatusBadRequest)
}

func TestEffectiveConfiguration(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "",
		`{"name":"base","quiet_period":"10","jdk":"jdk17","concurrent_build":true}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "",
		`{"name":"app","template":"base","custom_workspace":"/ws/app"}`, http.StatusCreated)

	env := doGet(t, te.srv, "/api/v1/projects/app/effective")
	var eff cascade.Effective
	if err := json.Unmarshal(env.Data, &eff); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eff.QuietPeriod != 10 {
		t.Errorf("quiet_period = %d, want 10", eff.QuietPeriod)
	}
	if eff.JDK != "jdk17" {
		t.Errorf("jdk = %q, want jdk17", eff.JDK)
	}
	if eff.CustomWorkspace != "/ws/app" {
		t.Errorf("custom_workspace = %q, want /ws/app", eff.CustomWorkspace)
	}
	if !eff.ConcurrentBuild {
		t.Error("concurrent_build = false, want inherited true")
	}
	if eff.SCMCheckoutRetryCount != 0 {
		t.Errorf("scm_checkout_retry_count = %d, want global default 0", eff.SCMCheckoutRetryCount)
	}
}

func TestUpdateConfig_AutoReInherit(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"base","quiet_period":"10"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"app","template":"base"}`, http.StatusCreated)

	rec := decodeRecord(t, do(t, te.srv, "PATCH", "/api/v1/projects/app/config", "", `{"quiet_period":"10"}`, http.StatusOK))
	if rec.QuietPeriod != "" {
		t.Errorf("quiet_period override = %q, want cleared", rec.QuietPeriod)
	}

	rec = decodeRecord(t, do(t, te.srv, "PATCH", "/api/v1/projects/app/config", "", `{"quiet_period":"7","concurrent_build":true}`, http.StatusOK))
	if rec.QuietPeriod != "7" {
		t.Errorf("quiet_period override = %q, want 7", rec.QuietPeriod)
	}
	if rec.ConcurrentBuild == nil || !*rec.ConcurrentBuild {
		t.Errorf("concurrent_build = %v, want true", rec.ConcurrentBuild)
	}

	// Absent members are untouched; null clears.
	rec = decodeRecord(t, do(t, te.srv, "PATCH", "/api/v1/projects/app/config", "", `{"concurrent_build":null}`, http.StatusOK))
	if rec.QuietPeriod != "7" {
		t.Errorf("quiet_period override = %q, want 7", rec.QuietPeriod)
	}
	if rec.ConcurrentBuild != nil {
		t.Errorf("concurrent_build = %v, want nil", *rec.ConcurrentBuild)
	}

	stored, err := te.store.GetProject(context.Background(), "app")
	if err != nil || stored == nil {
		t.Fatalf("GetProject: %v, %v", stored, err)
	}
	if stored.QuietPeriodOverride() != "7" {
		t.Errorf("stored quiet_period = %q, want 7", stored.QuietPeriodOverride())
	}
}

func TestCreateProject_InheritsValuesEqualToTemplate(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"parent","quiet_period":"10","jdk":"jdk17"}`, http.StatusCreated)

	rec := decodeRecord(t, do(t, te.srv, "POST", "/api/v1/projects/", "",
		`{"name":"child","template":"parent","quiet_period":"10","jdk":"jdk17","custom_workspace":"/ws/child"}`,
		http.StatusCreated))
	if rec.QuietPeriod != "" || rec.JDK != "" {
		t.Errorf("overrides = quiet %q jdk %q, want both inherited", rec.QuietPeriod, rec.JDK)
	}
	if rec.CustomWorkspace != "/ws/child" {
		t.Errorf("custom_workspace = %q, want /ws/child", rec.CustomWorkspace)
	}

	stored, err := te.store.GetProject(context.Background(), "child")
	if err != nil || stored == nil {
		t.Fatalf("GetProject: %v, %v", stored, err)
	}
	if stored.QuietPeriodOverride() != "" || stored.JDKOverride() != "" {
		t.Errorf("stored overrides = quiet %q jdk %q, want empty", stored.QuietPeriodOverride(), stored.JDKOverride())
	}

	// Changing the template value now shows through the child.
	do(t, te.srv, "PATCH", "/api/v1/projects/parent/config", "", `{"quiet_period":"3"}`, http.StatusOK)
	env := doGet(t, te.srv, "/api/v1/projects/child/effective")
	var eff struct {
		QuietPeriod int `json:"quiet_period"`
	}
	if err := json.Unmarshal(env.Data, &eff); err != nil {
		t.Fatalf("decode effective: %v", err)
	}
	if eff.QuietPeriod != 3 {
		t.Errorf("effective quiet_period = %d, want 3 from template", eff.QuietPeriod)
	}
}

func TestUpdateConfig_RejectsTemplateCycle(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"a"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"b","template":"a"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"c","template":"b"}`, http.StatusCreated)

	env := do(t, te.srv, "PATCH", "/api/v1/projects/a/config", "", `{"template":"c"}`, http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
	do(t, te.srv, "PATCH", "/api/v1/projects/a/config", "", `{"template":"a"}`, http.StatusBadRequest)
	do(t, te.srv, "PATCH", "/api/v1/projects/c/config", "", `{"template":"a"}`, http.StatusOK)
}

func TestCopyProject(t *testing.T) {
	te := testServer(t, model.StrategyProjectMatrix)
	do(t, te.srv, "POST", "/api/v1/projects/", "alice", `{"name":"core","jdk":"jdk21"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core","result":"SUCCESS"}`, http.StatusCreated)

	rec := decodeRecord(t, do(t, te.srv, "POST", "/api/v1/projects/core/copy", "bob", `{"name":"core-copy"}`, http.StatusCreated))
	if rec.JDK != "jdk21" {
		t.Errorf("jdk = %q, want copied jdk21", rec.JDK)
	}
	if rec.CreatedBy != "bob" {
		t.Errorf("created_by = %q, want bob", rec.CreatedBy)
	}
	if rec.NextBuildNumber != 1 {
		t.Errorf("next_build_number = %d, want 1", rec.NextBuildNumber)
	}
	if !rec.HoldOffBuildUntilSave {
		t.Error("hold_off_build_until_save = false, want true")
	}
	auth := rec.Properties.Get(model.PropertyAuthorizationMatrix).(*model.AuthorizationMatrixProperty)
	if !auth.HasPermission("bob", model.PermissionConfigure) || auth.HasPermission("alice", model.PermissionConfigure) {
		t.Errorf("grants = %v, want bob only", auth.Grants)
	}

	// A copy cannot build until it has been saved once.
	do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core-copy","result":"SUCCESS"}`, http.StatusConflict)
	do(t, te.srv, "PATCH", "/api/v1/projects/core-copy/config", "", `{}`, http.StatusOK)
	do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core-copy","result":"SUCCESS"}`, http.StatusCreated)

	do(t, te.srv, "POST", "/api/v1/projects/core/copy", "", `{"name":"core-copy"}`, http.StatusConflict)
	do(t, te.srv, "POST", "/api/v1/projects/core/copy", "", `{}`, http.StatusBadRequest)
	do(t, te.srv, "POST", "/api/v1/projects/missing/copy", "", `{"name":"x"}`, http.StatusNotFound)
}

func TestBuildCompleted_TriggersDependents(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"lib"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"off","disabled":true}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "",
		`{"name":"core","triggers":{"downstream":["lib","off"],"threshold":"UNSTABLE"}}`, http.StatusCreated)

	env := doGet(t, te.srv, "/api/v1/graph/")
	var g graphResponse
	json.Unmarshal(env.Data, &g)
	if len(g.Order) != 3 || g.Order[0] != "core" {
		t.Errorf("order = %v, want core first", g.Order)
	}

	env = do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core","result":"UNSTABLE"}`, http.StatusCreated)
	var resp buildCompletedResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Build.Number != 1 || resp.Build.FullDisplayName() != "core #1" {
		t.Errorf("build = %+v", resp.Build)
	}
	want := []string{"Triggering a new build of lib", "off is disabled. Triggering skipped"}
	if strings.Join(resp.Log, "|") != strings.Join(want, "|") {
		t.Errorf("log = %q, want %q", resp.Log, want)
	}

	env = doGet(t, te.srv, "/api/v1/queue")
	var queue []model.QueueItem
	json.Unmarshal(env.Data, &queue)
	if len(queue) != 1 || queue[0].ProjectName != "lib" || queue[0].Cause.UpstreamProject != "core" {
		t.Errorf("queue = %+v, want one item for lib", queue)
	}
	if got := queue[0].NotBefore.Sub(queue[0].QueuedAt).Seconds(); got != 5 {
		t.Errorf("quiet period = %vs, want 5s", got)
	}

	// Below the threshold nothing is queued.
	env = do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core","result":"FAILURE"}`, http.StatusCreated)
	json.Unmarshal(env.Data, &resp)
	if resp.Build.Number != 2 {
		t.Errorf("number = %d, want 2", resp.Build.Number)
	}
	if len(resp.Log) != 2 || !strings.Contains(resp.Log[0], "not triggered") {
		t.Errorf("log = %q, want threshold message", resp.Log)
	}

	env = doGet(t, te.srv, "/api/v1/projects/core/builds")
	var builds []model.Build
	json.Unmarshal(env.Data, &builds)
	if len(builds) != 2 {
		t.Errorf("builds = %d, want 2", len(builds))
	}
}

func TestBuildCompleted_Errors(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"nope","result":"SUCCESS"}`, http.StatusNotFound)
	env := do(t, te.srv, "POST", "/api/v1/builds", "", `{"result":"GREAT","number":-1}`, http.StatusBadRequest)
	if env.Error == nil || len(env.Error.Details) != 3 {
		t.Errorf("error = %+v, want 3 details", env.Error)
	}
}

// failingUpdates rejects project updates while fail is set.
type failingUpdates struct {
	store.Store
	fail bool
}

func (f *failingUpdates) UpdateProject(ctx context.Context, p *model.Project) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Store.UpdateProject(ctx, p)
}

func TestBuildCompleted_StoreFailureKeepsBuildNumber(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"core"}`, http.StatusCreated)

	fs := &failingUpdates{Store: te.store, fail: true}
	te.srv.store = fs

	for _, body := range []string{`{"project":"core","result":"SUCCESS"}`, `{"project":"core","number":9,"result":"SUCCESS"}`} {
		do(t, te.srv, "POST", "/api/v1/builds", "", body, http.StatusInternalServerError)
		if n := te.srv.projects.Lookup("core").NextBuildNumber(); n != 1 {
			t.Fatalf("after %s: next build number = %d, want 1", body, n)
		}
	}

	fs.fail = false
	env := do(t, te.srv, "POST", "/api/v1/builds", "", `{"project":"core","result":"SUCCESS"}`, http.StatusCreated)
	var resp struct {
		Build model.Build `json:"build"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Build.Number != 1 {
		t.Errorf("build number = %d, want 1", resp.Build.Number)
	}
	if n := te.srv.projects.Lookup("core").NextBuildNumber(); n != 2 {
		t.Errorf("next build number = %d, want 2", n)
	}
	stored, err := te.store.GetProject(context.Background(), "core")
	if err != nil || stored == nil || stored.NextBuildNumber() != 2 {
		t.Errorf("stored project = %v, %v; want next build number 2", stored, err)
	}
}

func TestRebuildGraph_Cycle(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"a"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"b","triggers":{"downstream":["a"]}}`, http.StatusCreated)

	env := do(t, te.srv, "PATCH", "/api/v1/projects/a/config", "", `{"triggers":{"downstream":["b"]}}`, http.StatusOK)
	var resp projectResponse
	json.Unmarshal(env.Data, &resp)
	if !strings.Contains(resp.GraphWarning, "cycle") {
		t.Errorf("graph_warning = %q, want cycle", resp.GraphWarning)
	}

	env = do(t, te.srv, "POST", "/api/v1/graph/rebuild", "", "", http.StatusUnprocessableEntity)
	if env.Error == nil || len(env.Error.Details) == 0 {
		t.Errorf("error = %+v, want cycle details", env.Error)
	}

	// The previous snapshot is still served.
	var g graphResponse
	json.Unmarshal(doGet(t, te.srv, "/api/v1/graph/").Data, &g)
	if down := g.Edges["b"]; len(down) != 1 || down[0] != "a" {
		t.Errorf("edges = %v, want b -> a", g.Edges)
	}
	if len(g.Edges["a"]) != 0 {
		t.Errorf("edges[a] = %v, want none", g.Edges["a"])
	}
}

func TestDeleteProject(t *testing.T) {
	te := testServer(t, model.StrategyUnsecured)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"base","quiet_period":"9"}`, http.StatusCreated)
	do(t, te.srv, "POST", "/api/v1/projects/", "", `{"name":"app","template":"base"}`, http.StatusCreated)

	env := do(t, te.srv, "DELETE", "/api/v1/projects/base/", "", "", http.StatusOK)
	var data struct {
		Deleted    bool     `json:"deleted"`
		TemplateOf []string `json:"template_of"`
	}
	json.Unmarshal(env.Data, &data)
	if !data.Deleted || len(data.TemplateOf) != 1 || data.TemplateOf[0] != "app" {
		t.Errorf("data = %+v", data)
	}

	do(t, te.srv, "GET", "/api/v1/projects/base/", "", "", http.StatusNotFound)
	do(t, te.srv, "DELETE", "/api/v1/projects/base/", "", "", http.StatusNotFound)

	// The dependent falls back to the global default.
	var eff cascade.Effective
	json.Unmarshal(doGet(t, te.srv, "/api/v1/projects/app/effective").Data, &eff)
	if eff.QuietPeriod != 5 {
		t.Errorf("quiet_period = %d, want global default 5", eff.QuietPeriod)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	te := testServer(t, model.StrategyProjectMatrix)
	do(t, te.srv, "POST", "/api/v1/projects/", "alice", `{"name":"core"}`, http.StatusCreated)
	doGet(t, te.srv, "/api/v1/health")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	te.srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`jobcascade_http_requests_total{method="GET",route="/api/v1/health",status="200"} 1`,
		`jobcascade_projects_initialized_total{grant="creator",path="scratch"} 1`,
		`jobcascade_graph_rebuilds_total{status="success"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	testServer(t, model.StrategyUnsecured).srv.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("X-Request-ID = %q, want req_ prefix", id)
	}
}
