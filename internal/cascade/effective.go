package cascade

import (
	"encoding/json"

	"github.com/me/jobcascade/pkg/model"
)

// Effective is the resolved configuration of a project at one moment.
type Effective struct {
	Project                          string            `json:"project" yaml:"project"`
	Template                         string            `json:"template,omitempty" yaml:"template,omitempty"`
	LogRotator                       *model.LogRotator `json:"log_rotator,omitempty" yaml:"log_rotator,omitempty"`
	CustomWorkspace                  string            `json:"custom_workspace,omitempty" yaml:"custom_workspace,omitempty"`
	JDK                              string            `json:"jdk,omitempty" yaml:"jdk,omitempty"`
	QuietPeriod                      int               `json:"quiet_period" yaml:"quiet_period"`
	SCMCheckoutRetryCount            int               `json:"scm_checkout_retry_count" yaml:"scm_checkout_retry_count"`
	BlockBuildWhenDownstreamBuilding bool              `json:"block_build_when_downstream_building" yaml:"block_build_when_downstream_building"`
	BlockBuildWhenUpstreamBuilding   bool              `json:"block_build_when_upstream_building" yaml:"block_build_when_upstream_building"`
	CleanWorkspaceRequired           bool              `json:"clean_workspace_required" yaml:"clean_workspace_required"`
	ConcurrentBuild                  bool              `json:"concurrent_build" yaml:"concurrent_build"`
}

// Resolve computes every cascaded field of p.
func (r *Resolver) Resolve(p *model.Project) Effective {
	ws, _ := r.CustomWorkspace(p)
	jdk, _ := r.JDK(p)
	return Effective{
		Project:                          p.Name(),
		Template:                         p.TemplateName(),
		LogRotator:                       r.LogRotator(p),
		CustomWorkspace:                  ws,
		JDK:                              jdk,
		QuietPeriod:                      r.QuietPeriod(p),
		SCMCheckoutRetryCount:            r.SCMCheckoutRetryCount(p),
		BlockBuildWhenDownstreamBuilding: r.BlockBuildWhenDownstreamBuilding(p),
		BlockBuildWhenUpstreamBuilding:   r.BlockBuildWhenUpstreamBuilding(p),
		CleanWorkspaceRequired:           r.CleanWorkspaceRequired(p),
		ConcurrentBuild:                  r.ConcurrentBuild(p),
	}
}

// Update is a partial write of cascaded fields. Members that are not Set are
// left alone; a Set member holding nil or "" clears the override.
type Update struct {
	Template              Optional[string]            `json:"template"`
	LogRotator            Optional[*model.LogRotator] `json:"log_rotator"`
	CustomWorkspace       Optional[string]            `json:"custom_workspace"`
	JDK                   Optional[string]            `json:"jdk"`
	QuietPeriod           Optional[string]            `json:"quiet_period"`
	SCMCheckoutRetryCount Optional[string]            `json:"scm_checkout_retry_count"`

	BlockBuildWhenDownstreamBuilding Optional[*bool] `json:"block_build_when_downstream_building"`
	BlockBuildWhenUpstreamBuilding   Optional[*bool] `json:"block_build_when_upstream_building"`
	CleanWorkspaceRequired           Optional[*bool] `json:"clean_workspace_required"`
	ConcurrentBuild                  Optional[*bool] `json:"concurrent_build"`
}

// Optional distinguishes an absent JSON member from an explicit null.
type Optional[T any] struct {
	Set   bool
	Value T
}

// Some returns a Set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// Apply writes u to p. The template is assigned first so that every field
// write compares against the new template.
func (r *Resolver) Apply(p *model.Project, u Update) {
	if u.Template.Set {
		p.SetTemplate(u.Template.Value)
	}
	if u.LogRotator.Set {
		r.SetLogRotator(p, u.LogRotator.Value)
	}
	if u.CustomWorkspace.Set {
		r.SetCustomWorkspace(p, u.CustomWorkspace.Value)
	}
	if u.JDK.Set {
		r.SetJDK(p, u.JDK.Value)
	}
	if u.QuietPeriod.Set {
		r.SetQuietPeriod(p, u.QuietPeriod.Value)
	}
	if u.SCMCheckoutRetryCount.Set {
		r.SetSCMCheckoutRetryCount(p, u.SCMCheckoutRetryCount.Value)
	}
	if u.BlockBuildWhenDownstreamBuilding.Set {
		r.SetBlockBuildWhenDownstreamBuilding(p, u.BlockBuildWhenDownstreamBuilding.Value)
	}
	if u.BlockBuildWhenUpstreamBuilding.Set {
		r.SetBlockBuildWhenUpstreamBuilding(p, u.BlockBuildWhenUpstreamBuilding.Value)
	}
	if u.CleanWorkspaceRequired.Set {
		r.SetCleanWorkspaceRequired(p, u.CleanWorkspaceRequired.Value)
	}
	if u.ConcurrentBuild.Set {
		r.SetConcurrentBuild(p, u.ConcurrentBuild.Value)
	}
}
