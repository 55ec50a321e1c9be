package cascade

import (
	"strconv"
	"strings"

	"github.com/me/jobcascade/pkg/model"
)

var (
	logRotatorField = field[*model.LogRotator]{
		name: "log_rotator",
		own: func(p *model.Project) (*model.LogRotator, bool) {
			lr := p.LogRotatorOverride()
			return lr, lr != nil
		},
	}

	customWorkspaceField = field[string]{
		name: "custom_workspace",
		own:  func(p *model.Project) (string, bool) { return nonBlank(p.CustomWorkspaceOverride()) },
	}

	jdkField = field[string]{
		name: "jdk",
		own:  func(p *model.Project) (string, bool) { return nonBlank(p.JDKOverride()) },
	}

	quietPeriodField = field[int]{
		name:     "quiet_period",
		own:      func(p *model.Project) (int, bool) { return ParseNumeric(p.QuietPeriodOverride()) },
		fallback: func(d Defaults) (int, bool) { return d.QuietPeriod(), true },
	}

	scmCheckoutRetryCountField = field[int]{
		name:     "scm_checkout_retry_count",
		own:      func(p *model.Project) (int, bool) { return ParseNumeric(p.SCMCheckoutRetryCountOverride()) },
		fallback: func(d Defaults) (int, bool) { return d.SCMCheckoutRetryCount(), true },
	}

	blockDownstreamField = flagField("block_build_when_downstream_building", (*model.Project).BlockBuildWhenDownstreamBuildingOverride)
	blockUpstreamField   = flagField("block_build_when_upstream_building", (*model.Project).BlockBuildWhenUpstreamBuildingOverride)
	cleanWorkspaceField  = flagField("clean_workspace_required", (*model.Project).CleanWorkspaceRequiredOverride)
	concurrentBuildField = flagField("concurrent_build", (*model.Project).ConcurrentBuildOverride)
)

// flagField builds a boolean field whose global default is false.
func flagField(name string, get func(*model.Project) *bool) field[bool] {
	return field[bool]{
		name: name,
		own: func(p *model.Project) (bool, bool) {
			v := get(p)
			if v == nil {
				return false, false
			}
			return *v, true
		},
		fallback: func(Defaults) (bool, bool) { return false, true },
	}
}

// ParseNumeric parses a stored numeric override. Blank, whitespace-only and
// malformed strings ("10abc") report false rather than an error, as do values
// outside the 32-bit range.
func ParseNumeric(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func nonBlank(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// --- Log rotation ---

// LogRotator returns the effective log rotation policy, nil when none applies.
func (r *Resolver) LogRotator(p *model.Project) *model.LogRotator {
	lr, _ := resolve(r, p, logRotatorField)
	return lr
}

// SetLogRotator assigns a log rotation policy following the auto-re-inherit rule.
func (r *Resolver) SetLogRotator(p *model.Project, lr *model.LogRotator) {
	if inherits(r, p, logRotatorField, lr.Equal) {
		p.SetLogRotatorOverride(nil)
		return
	}
	p.SetLogRotatorOverride(lr)
}

// --- Custom workspace ---

// CustomWorkspace returns the effective custom workspace path. The boolean is
// false when no project in the chain sets one.
func (r *Resolver) CustomWorkspace(p *model.Project) (string, bool) {
	return resolve(r, p, customWorkspaceField)
}

func (r *Resolver) SetCustomWorkspace(p *model.Project, path string) {
	if inherits(r, p, customWorkspaceField, func(v string) bool { return v == path }) {
		p.SetCustomWorkspaceOverride("")
		return
	}
	p.SetCustomWorkspaceOverride(path)
}

// --- JDK ---

// JDK returns the effective JDK name. The boolean is false when no project in
// the chain sets one.
func (r *Resolver) JDK(p *model.Project) (string, bool) {
	return resolve(r, p, jdkField)
}

func (r *Resolver) SetJDK(p *model.Project, name string) {
	if inherits(r, p, jdkField, func(v string) bool { return v == name }) {
		p.SetJDKOverride("")
		return
	}
	p.SetJDKOverride(name)
}

// --- Numeric fields ---

// QuietPeriod returns the effective quiet period in seconds. Invalid overrides
// fall through to the template and then to the global default.
func (r *Resolver) QuietPeriod(p *model.Project) int {
	n, _ := resolve(r, p, quietPeriodField)
	return n
}

// SetQuietPeriod stores a raw quiet period. The value is compared with the
// template's effective value as an integer; a raw value that does not parse is
// stored verbatim and ignored on read.
func (r *Resolver) SetQuietPeriod(p *model.Project, raw string) {
	if inherits(r, p, quietPeriodField, sameNumber(raw)) {
		p.SetQuietPeriodOverride("")
		return
	}
	p.SetQuietPeriodOverride(raw)
}

// SCMCheckoutRetryCount returns the effective number of checkout retries.
func (r *Resolver) SCMCheckoutRetryCount(p *model.Project) int {
	n, _ := resolve(r, p, scmCheckoutRetryCountField)
	return n
}

func (r *Resolver) SetSCMCheckoutRetryCount(p *model.Project, raw string) {
	if inherits(r, p, scmCheckoutRetryCountField, sameNumber(raw)) {
		p.SetSCMCheckoutRetryCountOverride("")
		return
	}
	p.SetSCMCheckoutRetryCountOverride(raw)
}

func sameNumber(raw string) func(int) bool {
	return func(v int) bool {
		n, ok := ParseNumeric(raw)
		return ok && n == v
	}
}

// --- Flags ---

// BlockBuildWhenDownstreamBuilding returns the effective flag value.
func (r *Resolver) BlockBuildWhenDownstreamBuilding(p *model.Project) bool {
	v, _ := resolve(r, p, blockDownstreamField)
	return v
}

// SetBlockBuildWhenDownstreamBuilding assigns the flag; nil clears the override.
func (r *Resolver) SetBlockBuildWhenDownstreamBuilding(p *model.Project, v *bool) {
	setFlag(r, p, blockDownstreamField, v, p.SetBlockBuildWhenDownstreamBuildingOverride)
}

// BlockBuildWhenUpstreamBuilding returns the effective flag value.
func (r *Resolver) BlockBuildWhenUpstreamBuilding(p *model.Project) bool {
	v, _ := resolve(r, p, blockUpstreamField)
	return v
}

func (r *Resolver) SetBlockBuildWhenUpstreamBuilding(p *model.Project, v *bool) {
	setFlag(r, p, blockUpstreamField, v, p.SetBlockBuildWhenUpstreamBuildingOverride)
}

// CleanWorkspaceRequired returns the effective flag value.
func (r *Resolver) CleanWorkspaceRequired(p *model.Project) bool {
	v, _ := resolve(r, p, cleanWorkspaceField)
	return v
}

func (r *Resolver) SetCleanWorkspaceRequired(p *model.Project, v *bool) {
	setFlag(r, p, cleanWorkspaceField, v, p.SetCleanWorkspaceRequiredOverride)
}

// ConcurrentBuild returns the effective flag value.
func (r *Resolver) ConcurrentBuild(p *model.Project) bool {
	v, _ := resolve(r, p, concurrentBuildField)
	return v
}

func (r *Resolver) SetConcurrentBuild(p *model.Project, v *bool) {
	setFlag(r, p, concurrentBuildField, v, p.SetConcurrentBuildOverride)
}

func setFlag(r *Resolver, p *model.Project, f field[bool], v *bool, store func(*bool)) {
	if v != nil && inherits(r, p, f, func(inherited bool) bool { return inherited == *v }) {
		store(nil)
		return
	}
	store(v)
}
