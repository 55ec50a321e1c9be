// Package jobfile reads and writes YAML job definition files. A file lists
// projects by their own overrides. Build stores values exactly as written;
// BuildWith applies them through the cascade resolver.
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/jobcascade/internal/cascade"
	"github.com/me/jobcascade/pkg/model"
)

// File is a parsed job definition file.
type File struct {
	Projects []Definition `yaml:"projects" json:"projects"`
}

// Definition describes one project.
type Definition struct {
	Name     string `yaml:"name" json:"name"`
	Group    string `yaml:"group,omitempty" json:"group,omitempty"`
	Template string `yaml:"template,omitempty" json:"template,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	LogRotator            *model.LogRotator `yaml:"log_rotator,omitempty" json:"log_rotator,omitempty"`
	CustomWorkspace       string            `yaml:"custom_workspace,omitempty" json:"custom_workspace,omitempty"`
	JDK                   string            `yaml:"jdk,omitempty" json:"jdk,omitempty"`
	QuietPeriod           string            `yaml:"quiet_period,omitempty" json:"quiet_period,omitempty"`
	SCMCheckoutRetryCount string            `yaml:"scm_checkout_retry_count,omitempty" json:"scm_checkout_retry_count,omitempty"`

	BlockBuildWhenDownstreamBuilding *bool `yaml:"block_build_when_downstream_building,omitempty" json:"block_build_when_downstream_building,omitempty"`
	BlockBuildWhenUpstreamBuilding   *bool `yaml:"block_build_when_upstream_building,omitempty" json:"block_build_when_upstream_building,omitempty"`
	CleanWorkspaceRequired           *bool `yaml:"clean_workspace_required,omitempty" json:"clean_workspace_required,omitempty"`
	ConcurrentBuild                  *bool `yaml:"concurrent_build,omitempty" json:"concurrent_build,omitempty"`

	Triggers *Triggers `yaml:"triggers,omitempty" json:"triggers,omitempty"`
}

// Triggers lists the projects to build after this one.
type Triggers struct {
	Downstream []string          `yaml:"downstream" json:"downstream"`
	Threshold  model.BuildResult `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// ReadFile parses the job definition file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates a job definition file. Unknown keys are errors.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse job file YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that names are present and unique and that thresholds are
// known results. Template and trigger targets are not resolved here.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Projects))
	for i, d := range f.Projects {
		if d.Name == "" {
			return fmt.Errorf("projects[%d]: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("projects[%d]: duplicate project %q", i, d.Name)
		}
		seen[d.Name] = true
		if d.Triggers != nil && d.Triggers.Threshold != "" && !d.Triggers.Threshold.Valid() {
			return fmt.Errorf("project %q: unknown trigger threshold %q", d.Name, d.Triggers.Threshold)
		}
	}
	return nil
}

// Build creates the project described by d with every override stored as
// written.
func (d Definition) Build() *model.Project {
	p := d.shell()
	p.SetLogRotatorOverride(d.LogRotator)
	p.SetCustomWorkspaceOverride(d.CustomWorkspace)
	p.SetJDKOverride(d.JDK)
	p.SetQuietPeriodOverride(d.QuietPeriod)
	p.SetSCMCheckoutRetryCountOverride(d.SCMCheckoutRetryCount)
	p.SetBlockBuildWhenDownstreamBuildingOverride(d.BlockBuildWhenDownstreamBuilding)
	p.SetBlockBuildWhenUpstreamBuildingOverride(d.BlockBuildWhenUpstreamBuilding)
	p.SetCleanWorkspaceRequiredOverride(d.CleanWorkspaceRequired)
	p.SetConcurrentBuildOverride(d.ConcurrentBuild)
	return p
}

// BuildWith creates the project described by d, writing the cascaded fields
// through r. A value equal to the template's effective value is inherited
// rather than stored.
func (d Definition) BuildWith(r *cascade.Resolver) *model.Project {
	p := d.shell()
	r.Apply(p, d.Update())
	return p
}

// Update returns the cascaded fields of d as a complete update.
func (d Definition) Update() cascade.Update {
	return cascade.Update{
		LogRotator:                       cascade.Some(d.LogRotator),
		CustomWorkspace:                  cascade.Some(d.CustomWorkspace),
		JDK:                              cascade.Some(d.JDK),
		QuietPeriod:                      cascade.Some(d.QuietPeriod),
		SCMCheckoutRetryCount:            cascade.Some(d.SCMCheckoutRetryCount),
		BlockBuildWhenDownstreamBuilding: cascade.Some(d.BlockBuildWhenDownstreamBuilding),
		BlockBuildWhenUpstreamBuilding:   cascade.Some(d.BlockBuildWhenUpstreamBuilding),
		CleanWorkspaceRequired:           cascade.Some(d.CleanWorkspaceRequired),
		ConcurrentBuild:                  cascade.Some(d.ConcurrentBuild),
	}
}

// shell creates the project with its name, group, template, disabled flag
// and triggers, but no cascaded overrides.
func (d Definition) shell() *model.Project {
	p := model.NewProject(d.Name)
	p.SetGroup(d.Group)
	p.SetTemplate(d.Template)
	p.SetDisabled(d.Disabled)
	if d.Triggers != nil && len(d.Triggers.Downstream) > 0 {
		p.PutProperty(&model.BuildTriggerProperty{
			Downstream: append([]string(nil), d.Triggers.Downstream...),
			Threshold:  d.Triggers.Threshold,
		})
	}
	return p
}

// Describe returns the definition of p. Metadata such as creation time and
// authorization grants is not part of a definition.
func Describe(p *model.Project) Definition {
	r := p.Record()
	d := Definition{
		Name:                             r.Name,
		Group:                            r.Group,
		Template:                         r.Template,
		Disabled:                         r.Disabled,
		LogRotator:                       r.LogRotator,
		CustomWorkspace:                  r.CustomWorkspace,
		JDK:                              r.JDK,
		QuietPeriod:                      r.QuietPeriod,
		SCMCheckoutRetryCount:            r.SCMCheckoutRetryCount,
		BlockBuildWhenDownstreamBuilding: r.BlockBuildWhenDownstreamBuilding,
		BlockBuildWhenUpstreamBuilding:   r.BlockBuildWhenUpstreamBuilding,
		CleanWorkspaceRequired:           r.CleanWorkspaceRequired,
		ConcurrentBuild:                  r.ConcurrentBuild,
	}
	if t, ok := p.Property(model.PropertyBuildTrigger).(*model.BuildTriggerProperty); ok {
		d.Triggers = &Triggers{Downstream: append([]string(nil), t.Downstream...), Threshold: t.Threshold}
	}
	return d
}

// Write encodes projects as a job definition file.
func Write(w io.Writer, projects []*model.Project) error {
	f := File{Projects: make([]Definition, 0, len(projects))}
	for _, p := range projects {
		f.Projects = append(f.Projects, Describe(p))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode job file: %w", err)
	}
	return enc.Close()
}
