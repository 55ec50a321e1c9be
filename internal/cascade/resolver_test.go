package cascade

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/me/jobcascade/pkg/model"
)

const globalDefault = 4

type projectMap map[string]*model.Project

func (m projectMap) Lookup(name string) *model.Project { return m[name] }

type fixedDefaults struct{ quiet, retry int }

func (d fixedDefaults) QuietPeriod() int           { return d.quiet }
func (d fixedDefaults) SCMCheckoutRetryCount() int { return d.retry }

// testResolver returns a resolver over the given projects with both numeric
// defaults set to globalDefault.
func testResolver(t *testing.T, projects ...*model.Project) *Resolver {
	t.Helper()
	m := projectMap{}
	for _, p := range projects {
		m[p.Name()] = p
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(m, fixedDefaults{quiet: globalDefault, retry: globalDefault}, logger)
}

func TestLogRotator_FromTemplate(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)

	r.SetLogRotator(parent, model.NewLogRotator(10, 11, 12, 13))
	child.SetTemplate("parent")

	got := r.LogRotator(child)
	if got == nil {
		t.Fatal("LogRotator = nil, want template's policy")
	}
	if got.DaysToKeep != 10 {
		t.Errorf("DaysToKeep = %d, want 10", got.DaysToKeep)
	}
}

func TestLogRotator_OwnValueWins(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)

	r.SetLogRotator(parent, model.NewLogRotator(10, 10, 10, 10))
	r.SetLogRotator(child, model.NewLogRotator(20, 20, 20, 20))
	child.SetTemplate("parent")

	if got := r.LogRotator(child); got == nil || got.DaysToKeep != 20 {
		t.Errorf("LogRotator = %+v, want DaysToKeep 20", got)
	}
}

func TestSetLogRotator_EqualToTemplateClearsOverride(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)

	r.SetLogRotator(parent, model.NewLogRotator(10, 11, 12, 13))
	child.SetTemplate("parent")
	r.SetLogRotator(child, model.NewLogRotator(10, 11, 12, 13))
	child.SetTemplate("")

	if got := r.LogRotator(child); got != nil {
		t.Errorf("LogRotator = %+v, want nil", got)
	}
}

func TestSetLogRotator_NoTemplateStoresVerbatim(t *testing.T) {
	child := model.NewProject("child")
	r := testResolver(t, child)

	r.SetLogRotator(child, model.NewLogRotator(10, 11, 12, 13))
	if got := r.LogRotator(child); got == nil || got.DaysToKeep != 10 {
		t.Errorf("LogRotator = %+v, want DaysToKeep 10", got)
	}
}

func TestCustomWorkspace(t *testing.T) {
	t.Run("equal to template clears override", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetCustomWorkspace(parent, "/tmp")
		child.SetTemplate("parent")
		r.SetCustomWorkspace(child, "/tmp")
		child.SetTemplate("")

		if ws, ok := r.CustomWorkspace(child); ok {
			t.Errorf("CustomWorkspace = %q, want unset", ws)
		}
	})

	t.Run("different from template is kept", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetCustomWorkspace(parent, "/tmp")
		child.SetTemplate("parent")
		r.SetCustomWorkspace(child, "/tmp1")

		if ws, _ := r.CustomWorkspace(child); ws != "/tmp1" {
			t.Errorf("CustomWorkspace = %q, want /tmp1", ws)
		}
	})

	t.Run("blank falls through", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetCustomWorkspace(child, "/tmp")
		if ws, _ := r.CustomWorkspace(child); ws != "/tmp" {
			t.Fatalf("CustomWorkspace = %q, want /tmp", ws)
		}

		r.SetCustomWorkspace(parent, "/tmp")
		r.SetCustomWorkspace(child, " ")
		child.SetTemplate("parent")
		if ws, _ := r.CustomWorkspace(child); ws != "/tmp" {
			t.Errorf("CustomWorkspace = %q, want /tmp from template", ws)
		}

		r.SetCustomWorkspace(parent, "  ")
		if ws, ok := r.CustomWorkspace(child); ok {
			t.Errorf("CustomWorkspace = %q, want unset", ws)
		}
	})
}

func TestJDK(t *testing.T) {
	const jdk5, jdk6 = "sun-java5-jdk32", "sun-java6-jdk32"

	t.Run("equal to template clears override", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetJDK(parent, jdk5)
		child.SetTemplate("parent")
		r.SetJDK(child, jdk5)
		child.SetTemplate("")

		if name, ok := r.JDK(child); ok {
			t.Errorf("JDK = %q, want unset", name)
		}
	})

	t.Run("different from template is kept", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetJDK(parent, jdk5)
		child.SetTemplate("parent")
		r.SetJDK(child, jdk6)

		if name, _ := r.JDK(child); name != jdk6 {
			t.Errorf("JDK = %q, want %q", name, jdk6)
		}
	})

	t.Run("blank falls through", func(t *testing.T) {
		parent := model.NewProject("parent")
		child := model.NewProject("child")
		r := testResolver(t, parent, child)

		r.SetJDK(parent, jdk6)
		r.SetJDK(child, " ")
		child.SetTemplate("parent")
		if name, _ := r.JDK(child); name != jdk6 {
			t.Errorf("JDK = %q, want %q", name, jdk6)
		}
		r.SetJDK(parent, "  ")
		if name, ok := r.JDK(child); ok {
			t.Errorf("JDK = %q, want unset", name)
		}
	})
}

// numericField lets the quiet period and SCM retry count share test cases.
type numericField struct {
	name string
	get  func(*Resolver, *model.Project) int
	set  func(*Resolver, *model.Project, string)
	raw  func(*model.Project) string
}

var numericFields = []numericField{
	{
		name: "quiet period",
		get:  (*Resolver).QuietPeriod,
		set:  (*Resolver).SetQuietPeriod,
		raw:  (*model.Project).QuietPeriodOverride,
	},
	{
		name: "scm checkout retry count",
		get:  (*Resolver).SCMCheckoutRetryCount,
		set:  (*Resolver).SetSCMCheckoutRetryCount,
		raw:  (*model.Project).SCMCheckoutRetryCountOverride,
	},
}

func TestNumericFields(t *testing.T) {
	for _, f := range numericFields {
		t.Run(f.name+"/equal to template clears override", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, "10")
			if got := f.get(r, child); got != globalDefault {
				t.Fatalf("before template: got %d, want global default %d", got, globalDefault)
			}
			child.SetTemplate("parent")
			f.set(r, child, "10")
			if got := f.get(r, child); got != 10 {
				t.Errorf("with template: got %d, want 10", got)
			}
			if raw := f.raw(child); raw != "" {
				t.Errorf("raw override = %q, want cleared", raw)
			}
			child.SetTemplate("")
			if got := f.get(r, child); got != globalDefault {
				t.Errorf("after removing template: got %d, want %d", got, globalDefault)
			}
		})

		t.Run(f.name+"/different from template is kept", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, "10")
			child.SetTemplate("parent")
			f.set(r, child, "11")
			if got := f.get(r, child); got != 11 {
				t.Errorf("got %d, want 11", got)
			}
		})

		t.Run(f.name+"/no template stores verbatim", func(t *testing.T) {
			child := model.NewProject("child")
			r := testResolver(t, child)

			f.set(r, child, "4")
			if raw := f.raw(child); raw != "4" {
				t.Errorf("raw override = %q, want 4 even though it equals the global default", raw)
			}
			f.set(r, child, "10")
			if got := f.get(r, child); got != 10 {
				t.Errorf("got %d, want 10", got)
			}
		})

		t.Run(f.name+"/invalid falls back to global default", func(t *testing.T) {
			child := model.NewProject("child")
			r := testResolver(t, child)

			for _, raw := range []string{"asd10asdasd", "10abc", "", "  ", "1.5", "9999999999"} {
				f.set(r, child, raw)
				if got := f.get(r, child); got != globalDefault {
					t.Errorf("raw %q: got %d, want %d", raw, got, globalDefault)
				}
			}
		})

		t.Run(f.name+"/invalid falls back to template", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, "7")
			child.SetTemplate("parent")
			f.set(r, child, "asd10asdasd")
			if got := f.get(r, child); got != 7 {
				t.Errorf("got %d, want template value 7", got)
			}
		})

		t.Run(f.name+"/cascade", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, child, "10")
			if got := f.get(r, child); got != 10 {
				t.Fatalf("got %d, want 10", got)
			}
			f.set(r, parent, "10")
			f.set(r, child, " ")
			child.SetTemplate("parent")
			if got := f.get(r, child); got != 10 {
				t.Errorf("got %d, want 10 from template", got)
			}
			f.set(r, parent, "  ")
			if got := f.get(r, child); got != globalDefault {
				t.Errorf("got %d, want global default %d", got, globalDefault)
			}
		})
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{"10", 10, true},
		{" 10 ", 10, true},
		{"-3", -3, true},
		{"0", 0, true},
		{"", 0, false},
		{"   ", 0, false},
		{"10abc", 0, false},
		{"asd10asdasd", 0, false},
		{"99999999999999999999", 0, false},
		{"9999999999", 0, false},
		{"2147483647", 2147483647, true},
		{"-2147483648", -2147483648, true},
		{"2147483648", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumeric(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseNumeric(%q) = (%d, %v), want (%d, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

// flagCase lets the four boolean flags share test cases.
type flagCase struct {
	name     string
	get      func(*Resolver, *model.Project) bool
	set      func(*Resolver, *model.Project, *bool)
	explicit func(*model.Project) *bool
}

var flagCases = []flagCase{
	{"block downstream", (*Resolver).BlockBuildWhenDownstreamBuilding, (*Resolver).SetBlockBuildWhenDownstreamBuilding, (*model.Project).BlockBuildWhenDownstreamBuildingOverride},
	{"block upstream", (*Resolver).BlockBuildWhenUpstreamBuilding, (*Resolver).SetBlockBuildWhenUpstreamBuilding, (*model.Project).BlockBuildWhenUpstreamBuildingOverride},
	{"clean workspace", (*Resolver).CleanWorkspaceRequired, (*Resolver).SetCleanWorkspaceRequired, (*model.Project).CleanWorkspaceRequiredOverride},
	{"concurrent build", (*Resolver).ConcurrentBuild, (*Resolver).SetConcurrentBuild, (*model.Project).ConcurrentBuildOverride},
}

func TestFlags(t *testing.T) {
	for _, f := range flagCases {
		t.Run(f.name+"/equal to template clears override", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, model.Bool(true))
			child.SetTemplate("parent")
			f.set(r, child, model.Bool(true))
			if v := f.explicit(child); v != nil {
				t.Errorf("explicit = %v, want nil", *v)
			}
		})

		t.Run(f.name+"/different from template is kept", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, model.Bool(true))
			child.SetTemplate("parent")
			f.set(r, child, model.Bool(false))
			v := f.explicit(child)
			if v == nil || *v {
				t.Errorf("explicit = %v, want false", v)
			}
		})

		t.Run(f.name+"/no template stores verbatim", func(t *testing.T) {
			child := model.NewProject("child")
			r := testResolver(t, child)

			f.set(r, child, model.Bool(true))
			if v := f.explicit(child); v == nil || !*v {
				t.Errorf("explicit = %v, want true", v)
			}
		})

		t.Run(f.name+"/cascade", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, model.Bool(true))
			f.set(r, child, nil)
			child.SetTemplate("parent")
			if !f.get(r, child) {
				t.Error("want true from template")
			}
			f.set(r, child, model.Bool(false))
			if f.get(r, child) {
				t.Error("want false from child override")
			}
		})

		t.Run(f.name+"/override survives template change", func(t *testing.T) {
			parent := model.NewProject("parent")
			child := model.NewProject("child")
			r := testResolver(t, parent, child)

			f.set(r, parent, model.Bool(true))
			child.SetTemplate("parent")
			f.set(r, child, model.Bool(false))
			// The template now matches the stored override; it stays explicit.
			f.set(r, parent, model.Bool(false))
			if v := f.explicit(child); v == nil || *v {
				t.Errorf("explicit = %v, want false", v)
			}
		})

		t.Run(f.name+"/defaults to false", func(t *testing.T) {
			child := model.NewProject("child")
			r := testResolver(t, child)
			if f.get(r, child) {
				t.Error("want false with nothing set")
			}
		})
	}
}

func TestResolve_MultiLevelChain(t *testing.T) {
	root := model.NewProject("root")
	mid := model.NewProject("mid")
	leaf := model.NewProject("leaf")
	r := testResolver(t, root, mid, leaf)

	r.SetQuietPeriod(root, "30")
	r.SetJDK(mid, "jdk17")
	mid.SetTemplate("root")
	leaf.SetTemplate("mid")

	if got := r.QuietPeriod(leaf); got != 30 {
		t.Errorf("QuietPeriod = %d, want 30 from root", got)
	}
	if got, _ := r.JDK(leaf); got != "jdk17" {
		t.Errorf("JDK = %q, want jdk17 from mid", got)
	}

	// Setting the leaf to the root value via the chain clears its override.
	r.SetQuietPeriod(leaf, "30")
	if raw := leaf.QuietPeriodOverride(); raw != "" {
		t.Errorf("raw = %q, want cleared", raw)
	}
	r.SetQuietPeriod(root, "45")
	if got := r.QuietPeriod(leaf); got != 45 {
		t.Errorf("QuietPeriod = %d, want 45 tracking root", got)
	}
}

func TestResolve_TemplateCycleFallsBackToDefault(t *testing.T) {
	a := model.NewProject("a")
	b := model.NewProject("b")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := New(projectMap{"a": a, "b": b}, fixedDefaults{quiet: 9, retry: 2}, logger)

	a.SetTemplate("b")
	b.SetTemplate("a")

	if got := r.QuietPeriod(a); got != 9 {
		t.Errorf("QuietPeriod = %d, want global default 9", got)
	}
	if got := r.LogRotator(a); got != nil {
		t.Errorf("LogRotator = %+v, want nil", got)
	}
	if !strings.Contains(buf.String(), "template cycle detected") {
		t.Errorf("expected cycle warning, got: %s", buf.String())
	}

	// An own override still wins inside a cycle.
	r.SetQuietPeriod(b, "12")
	if got := r.QuietPeriod(a); got != 12 {
		t.Errorf("QuietPeriod = %d, want 12", got)
	}
}

func TestResolve_SelfTemplate(t *testing.T) {
	a := model.NewProject("a")
	r := testResolver(t, a)
	a.SetTemplate("a")
	if got := r.SCMCheckoutRetryCount(a); got != globalDefault {
		t.Errorf("SCMCheckoutRetryCount = %d, want %d", got, globalDefault)
	}
}

func TestResolve_MissingTemplateActsAsNone(t *testing.T) {
	child := model.NewProject("child")
	r := testResolver(t, child)
	child.SetTemplate("deleted")

	if got := r.QuietPeriod(child); got != globalDefault {
		t.Errorf("QuietPeriod = %d, want %d", got, globalDefault)
	}
	r.SetQuietPeriod(child, "4")
	if raw := child.QuietPeriodOverride(); raw != "4" {
		t.Errorf("raw = %q, want 4 stored verbatim", raw)
	}
}

func TestResolve_NilDefaults(t *testing.T) {
	p := model.NewProject("p")
	r := New(projectMap{"p": p}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := r.QuietPeriod(p); got != 0 {
		t.Errorf("QuietPeriod = %d, want 0", got)
	}
}

func TestResolveAll(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)

	r.SetQuietPeriod(parent, "10")
	r.SetConcurrentBuild(parent, model.Bool(true))
	child.SetTemplate("parent")
	r.SetJDK(child, "jdk8")

	eff := r.Resolve(child)
	if eff.Project != "child" || eff.Template != "parent" {
		t.Errorf("identity = %q/%q", eff.Project, eff.Template)
	}
	if eff.QuietPeriod != 10 || eff.SCMCheckoutRetryCount != globalDefault {
		t.Errorf("numbers = %d/%d", eff.QuietPeriod, eff.SCMCheckoutRetryCount)
	}
	if !eff.ConcurrentBuild || eff.CleanWorkspaceRequired {
		t.Errorf("flags = %+v", eff)
	}
	if eff.JDK != "jdk8" {
		t.Errorf("JDK = %q", eff.JDK)
	}
}

func TestApply(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)
	r.SetQuietPeriod(parent, "10")
	r.SetCleanWorkspaceRequired(parent, model.Bool(true))

	var u Update
	body := `{"template":"parent","quiet_period":"10","jdk":"jdk11","clean_workspace_required":true}`
	if err := json.Unmarshal([]byte(body), &u); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	r.Apply(child, u)

	if child.TemplateName() != "parent" {
		t.Errorf("template = %q", child.TemplateName())
	}
	if child.QuietPeriodOverride() != "" {
		t.Errorf("quiet period override = %q, want cleared (matches template)", child.QuietPeriodOverride())
	}
	if child.CleanWorkspaceRequiredOverride() != nil {
		t.Error("clean workspace override should be cleared (matches template)")
	}
	if child.JDKOverride() != "jdk11" {
		t.Errorf("jdk override = %q", child.JDKOverride())
	}

	// Explicit null clears; absent members are untouched.
	r.SetConcurrentBuild(child, model.Bool(true))
	u = Update{}
	if err := json.Unmarshal([]byte(`{"concurrent_build":null}`), &u); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	r.Apply(child, u)
	if child.ConcurrentBuildOverride() != nil {
		t.Error("concurrent build override should be cleared by null")
	}
	if child.JDKOverride() != "jdk11" {
		t.Error("absent member must not change jdk")
	}
}

func TestConcurrentReads(t *testing.T) {
	parent := model.NewProject("parent")
	child := model.NewProject("child")
	r := testResolver(t, parent, child)
	child.SetTemplate("parent")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.SetQuietPeriod(parent, "10")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := r.QuietPeriod(child); got != 10 && got != globalDefault {
					t.Errorf("QuietPeriod = %d, want 10 or %d", got, globalDefault)
					return
				}
			}
		}()
	}
	wg.Wait()
}
