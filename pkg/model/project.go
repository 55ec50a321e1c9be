package model

import (
	"sync"
	"time"
)

// Project is a CI job definition.
//
// Cascaded fields hold only the project's own override. The effective value,
// which walks the template chain and falls back to global defaults, is computed
// by internal/cascade. Every accessor is safe for concurrent use; each field is
// read and written atomically on its own.
type Project struct {
	mu sync.RWMutex

	name  string
	group string

	// template is the name of the template project, "" for none.
	template string

	logRotator            *LogRotator
	customWorkspace       string
	jdk                   string
	quietPeriod           string // raw, validated on read
	scmCheckoutRetryCount string // raw, validated on read

	blockBuildWhenDownstreamBuilding *bool
	blockBuildWhenUpstreamBuilding   *bool
	cleanWorkspaceRequired           *bool
	concurrentBuild                  *bool

	disabled              bool
	creationTime          time.Time
	createdBy             string
	nextBuildNumber       int
	holdOffBuildUntilSave bool
	properties            PropertySet
}

// NewProject creates an empty project with the given name.
func NewProject(name string) *Project {
	return &Project{name: name, nextBuildNumber: 1}
}

// Name returns the project's unique, immutable name.
func (p *Project) Name() string {
	return p.name
}

// Group returns the owning group, "" when the project is top level.
func (p *Project) Group() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.group
}

// SetGroup sets the owning group.
func (p *Project) SetGroup(group string) {
	p.mu.Lock()
	p.group = group
	p.mu.Unlock()
}

// TemplateName returns the name of the template project, "" for none.
func (p *Project) TemplateName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.template
}

// SetTemplate points the project at a template by name. An empty name removes
// the template; own overrides are kept either way.
func (p *Project) SetTemplate(name string) {
	p.mu.Lock()
	p.template = name
	p.mu.Unlock()
}

// --- Own overrides ---

// LogRotatorOverride returns the project's own log rotation policy.
func (p *Project) LogRotatorOverride() *LogRotator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.logRotator.Clone()
}

func (p *Project) SetLogRotatorOverride(lr *LogRotator) {
	p.mu.Lock()
	p.logRotator = lr.Clone()
	p.mu.Unlock()
}

// CustomWorkspaceOverride returns the raw custom workspace path.
func (p *Project) CustomWorkspaceOverride() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.customWorkspace
}

func (p *Project) SetCustomWorkspaceOverride(path string) {
	p.mu.Lock()
	p.customWorkspace = path
	p.mu.Unlock()
}

// JDKOverride returns the raw JDK name.
func (p *Project) JDKOverride() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jdk
}

func (p *Project) SetJDKOverride(name string) {
	p.mu.Lock()
	p.jdk = name
	p.mu.Unlock()
}

// QuietPeriodOverride returns the raw quiet period string as stored.
func (p *Project) QuietPeriodOverride() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quietPeriod
}

func (p *Project) SetQuietPeriodOverride(raw string) {
	p.mu.Lock()
	p.quietPeriod = raw
	p.mu.Unlock()
}

// SCMCheckoutRetryCountOverride returns the raw retry count string as stored.
func (p *Project) SCMCheckoutRetryCountOverride() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scmCheckoutRetryCount
}

func (p *Project) SetSCMCheckoutRetryCountOverride(raw string) {
	p.mu.Lock()
	p.scmCheckoutRetryCount = raw
	p.mu.Unlock()
}

// BlockBuildWhenDownstreamBuildingOverride returns the explicit flag value or
// nil when the project inherits it.
func (p *Project) BlockBuildWhenDownstreamBuildingOverride() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneBool(p.blockBuildWhenDownstreamBuilding)
}

func (p *Project) SetBlockBuildWhenDownstreamBuildingOverride(v *bool) {
	p.mu.Lock()
	p.blockBuildWhenDownstreamBuilding = cloneBool(v)
	p.mu.Unlock()
}

// BlockBuildWhenUpstreamBuildingOverride returns the explicit flag value or
// nil when the project inherits it.
func (p *Project) BlockBuildWhenUpstreamBuildingOverride() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneBool(p.blockBuildWhenUpstreamBuilding)
}

func (p *Project) SetBlockBuildWhenUpstreamBuildingOverride(v *bool) {
	p.mu.Lock()
	p.blockBuildWhenUpstreamBuilding = cloneBool(v)
	p.mu.Unlock()
}

// CleanWorkspaceRequiredOverride returns the explicit flag value or nil when
// the project inherits it.
func (p *Project) CleanWorkspaceRequiredOverride() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneBool(p.cleanWorkspaceRequired)
}

func (p *Project) SetCleanWorkspaceRequiredOverride(v *bool) {
	p.mu.Lock()
	p.cleanWorkspaceRequired = cloneBool(v)
	p.mu.Unlock()
}

// ConcurrentBuildOverride returns the explicit flag value or nil when the
// project inherits it.
func (p *Project) ConcurrentBuildOverride() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneBool(p.concurrentBuild)
}

func (p *Project) SetConcurrentBuildOverride(v *bool) {
	p.mu.Lock()
	p.concurrentBuild = cloneBool(v)
	p.mu.Unlock()
}

// --- Lifecycle fields ---

// Disabled reports whether new builds of the project are suppressed.
func (p *Project) Disabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled
}

func (p *Project) SetDisabled(v bool) {
	p.mu.Lock()
	p.disabled = v
	p.mu.Unlock()
}

// CreationTime returns when the project was created, zero if never stamped.
func (p *Project) CreationTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creationTime
}

// StampCreation records the creation time and creator. Values already set are
// left untouched; it reports whether the creation time was recorded by this call.
func (p *Project) StampCreation(at time.Time, createdBy string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stamped := false
	if p.creationTime.IsZero() {
		p.creationTime = at
		stamped = true
	}
	if p.createdBy == "" {
		p.createdBy = createdBy
	}
	return stamped
}

// CreatedBy returns the creator's identity ID, "" when created anonymously.
func (p *Project) CreatedBy() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.createdBy
}

// NextBuildNumber returns the number the next build will receive.
func (p *Project) NextBuildNumber() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextBuildNumber
}

func (p *Project) SetNextBuildNumber(n int) {
	p.mu.Lock()
	p.nextBuildNumber = n
	p.mu.Unlock()
}

// AssignBuildNumber returns the next build number and advances the counter.
func (p *Project) AssignBuildNumber() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.nextBuildNumber
	p.nextBuildNumber++
	return n
}

// HoldOffBuildUntilSave reports whether builds wait for the first save.
func (p *Project) HoldOffBuildUntilSave() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.holdOffBuildUntilSave
}

func (p *Project) SetHoldOffBuildUntilSave(v bool) {
	p.mu.Lock()
	p.holdOffBuildUntilSave = v
	p.mu.Unlock()
}

// Properties returns the attached properties in insertion order.
func (p *Project) Properties() []Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.properties.All()
}

// Property returns the attached property of the given kind, or nil.
func (p *Project) Property(kind PropertyKind) Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.properties.Get(kind)
}

// AddProperty attaches prop unless a property of the same kind is already
// present. It reports whether prop was added.
func (p *Project) AddProperty(prop Property) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.properties.Add(prop)
}

// PutProperty attaches prop, replacing any property of the same kind in place.
func (p *Project) PutProperty(prop Property) {
	p.mu.Lock()
	p.properties.Put(prop)
	p.mu.Unlock()
}

// RemoveProperty detaches the property of the given kind.
func (p *Project) RemoveProperty(kind PropertyKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.properties.Remove(kind)
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	b := *v
	return &b
}

// Bool returns a pointer to v, for flag overrides.
func Bool(v bool) *bool {
	return &v
}
