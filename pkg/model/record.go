package model

import "time"

// ProjectRecord is the serialized form of a Project: own overrides only, never
// effective values.
type ProjectRecord struct {
	Name                  string      `json:"name"`
	Group                 string      `json:"group,omitempty"`
	Template              string      `json:"template,omitempty"`
	LogRotator            *LogRotator `json:"log_rotator,omitempty"`
	CustomWorkspace       string      `json:"custom_workspace,omitempty"`
	JDK                   string      `json:"jdk,omitempty"`
	QuietPeriod           string      `json:"quiet_period,omitempty"`
	SCMCheckoutRetryCount string      `json:"scm_checkout_retry_count,omitempty"`

	BlockBuildWhenDownstreamBuilding *bool `json:"block_build_when_downstream_building,omitempty"`
	BlockBuildWhenUpstreamBuilding   *bool `json:"block_build_when_upstream_building,omitempty"`
	CleanWorkspaceRequired           *bool `json:"clean_workspace_required,omitempty"`
	ConcurrentBuild                  *bool `json:"concurrent_build,omitempty"`

	Disabled              bool        `json:"disabled"`
	CreationTime          time.Time   `json:"creation_time"`
	CreatedBy             string      `json:"created_by,omitempty"`
	NextBuildNumber       int         `json:"next_build_number"`
	HoldOffBuildUntilSave bool        `json:"hold_off_build_until_save"`
	Properties            PropertySet `json:"properties"`
}

// Record captures the project's current state.
func (p *Project) Record() ProjectRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var props PropertySet
	for _, prop := range p.properties.All() {
		props.Add(prop)
	}
	return ProjectRecord{
		Name:                             p.name,
		Group:                            p.group,
		Template:                         p.template,
		LogRotator:                       p.logRotator.Clone(),
		CustomWorkspace:                  p.customWorkspace,
		JDK:                              p.jdk,
		QuietPeriod:                      p.quietPeriod,
		SCMCheckoutRetryCount:            p.scmCheckoutRetryCount,
		BlockBuildWhenDownstreamBuilding: cloneBool(p.blockBuildWhenDownstreamBuilding),
		BlockBuildWhenUpstreamBuilding:   cloneBool(p.blockBuildWhenUpstreamBuilding),
		CleanWorkspaceRequired:           cloneBool(p.cleanWorkspaceRequired),
		ConcurrentBuild:                  cloneBool(p.concurrentBuild),
		Disabled:                         p.disabled,
		CreationTime:                     p.creationTime,
		CreatedBy:                        p.createdBy,
		NextBuildNumber:                  p.nextBuildNumber,
		HoldOffBuildUntilSave:            p.holdOffBuildUntilSave,
		Properties:                       props,
	}
}

// ProjectFromRecord rebuilds a Project from its serialized form.
func ProjectFromRecord(r ProjectRecord) *Project {
	p := &Project{
		name:                             r.Name,
		group:                            r.Group,
		template:                         r.Template,
		logRotator:                       r.LogRotator.Clone(),
		customWorkspace:                  r.CustomWorkspace,
		jdk:                              r.JDK,
		quietPeriod:                      r.QuietPeriod,
		scmCheckoutRetryCount:            r.SCMCheckoutRetryCount,
		blockBuildWhenDownstreamBuilding: cloneBool(r.BlockBuildWhenDownstreamBuilding),
		blockBuildWhenUpstreamBuilding:   cloneBool(r.BlockBuildWhenUpstreamBuilding),
		cleanWorkspaceRequired:           cloneBool(r.CleanWorkspaceRequired),
		concurrentBuild:                  cloneBool(r.ConcurrentBuild),
		disabled:                         r.Disabled,
		creationTime:                     r.CreationTime,
		createdBy:                        r.CreatedBy,
		nextBuildNumber:                  r.NextBuildNumber,
		holdOffBuildUntilSave:            r.HoldOffBuildUntilSave,
	}
	if p.nextBuildNumber < 1 {
		p.nextBuildNumber = 1
	}
	for _, prop := range r.Properties.All() {
		p.properties.Add(prop)
	}
	return p
}
