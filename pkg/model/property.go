package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PropertyKind identifies the variant of a Property. A project holds at most
// one property per kind.
type PropertyKind string

const (
	PropertyAuthorizationMatrix PropertyKind = "authorization_matrix"
	PropertyBuildTrigger        PropertyKind = "build_trigger"
)

// Property is a typed attachment on a Project.
type Property interface {
	Kind() PropertyKind
}

// AuthorizationMatrixProperty grants permissions on a single project.
type AuthorizationMatrixProperty struct {
	// Grants maps each permission to the sorted IDs of identities holding it.
	Grants map[Permission][]string `json:"grants"`
}

func (*AuthorizationMatrixProperty) Kind() PropertyKind { return PropertyAuthorizationMatrix }

// NewAuthorizationMatrixProperty grants every permission in perms to sid.
func NewAuthorizationMatrixProperty(sid string, perms []Permission) *AuthorizationMatrixProperty {
	grants := make(map[Permission][]string, len(perms))
	for _, perm := range perms {
		grants[perm] = []string{sid}
	}
	return &AuthorizationMatrixProperty{Grants: grants}
}

// HasPermission reports whether sid holds perm.
func (a *AuthorizationMatrixProperty) HasPermission(sid string, perm Permission) bool {
	for _, id := range a.Grants[perm] {
		if id == sid {
			return true
		}
	}
	return false
}

// Grant adds sid to the holders of perm.
func (a *AuthorizationMatrixProperty) Grant(perm Permission, sid string) {
	if a.HasPermission(sid, perm) {
		return
	}
	if a.Grants == nil {
		a.Grants = make(map[Permission][]string)
	}
	a.Grants[perm] = append(a.Grants[perm], sid)
	sort.Strings(a.Grants[perm])
}

// BuildTriggerProperty lists the projects to build after this one completes.
// Downstream builds are only triggered when the upstream result is at least
// Threshold; an empty Threshold means ResultSuccess.
type BuildTriggerProperty struct {
	Downstream []string    `json:"downstream"`
	Threshold  BuildResult `json:"threshold,omitempty"`
}

// EffectiveThreshold returns Threshold, defaulting to ResultSuccess.
func (b *BuildTriggerProperty) EffectiveThreshold() BuildResult {
	if b.Threshold == "" {
		return ResultSuccess
	}
	return b.Threshold
}

func (*BuildTriggerProperty) Kind() PropertyKind { return PropertyBuildTrigger }

// PropertySet is an insertion-ordered collection of properties, unique by kind.
// The zero value is empty and ready to use.
type PropertySet struct {
	items []Property
}

// All returns the properties in insertion order.
func (s *PropertySet) All() []Property {
	out := make([]Property, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of properties.
func (s *PropertySet) Len() int {
	return len(s.items)
}

// Get returns the property of the given kind, or nil.
func (s *PropertySet) Get(kind PropertyKind) Property {
	for _, p := range s.items {
		if p.Kind() == kind {
			return p
		}
	}
	return nil
}

// Add appends prop if no property of its kind exists. It reports whether prop
// was added.
func (s *PropertySet) Add(prop Property) bool {
	if prop == nil || s.Get(prop.Kind()) != nil {
		return false
	}
	s.items = append(s.items, prop)
	return true
}

// Put appends prop, or replaces the existing property of its kind in place.
func (s *PropertySet) Put(prop Property) {
	if prop == nil {
		return
	}
	for i, p := range s.items {
		if p.Kind() == prop.Kind() {
			s.items[i] = prop
			return
		}
	}
	s.items = append(s.items, prop)
}

// Remove deletes the property of the given kind.
func (s *PropertySet) Remove(kind PropertyKind) bool {
	for i, p := range s.items {
		if p.Kind() == kind {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// propertyEnvelope is the tagged JSON form of one property.
type propertyEnvelope struct {
	Kind                PropertyKind                 `json:"kind"`
	AuthorizationMatrix *AuthorizationMatrixProperty `json:"authorization_matrix,omitempty"`
	BuildTrigger        *BuildTriggerProperty        `json:"build_trigger,omitempty"`
}

func (s PropertySet) MarshalJSON() ([]byte, error) {
	envs := make([]propertyEnvelope, 0, len(s.items))
	for _, p := range s.items {
		env := propertyEnvelope{Kind: p.Kind()}
		switch v := p.(type) {
		case *AuthorizationMatrixProperty:
			env.AuthorizationMatrix = v
		case *BuildTriggerProperty:
			env.BuildTrigger = v
		default:
			return nil, fmt.Errorf("unsupported property kind %q", p.Kind())
		}
		envs = append(envs, env)
	}
	return json.Marshal(envs)
}

func (s *PropertySet) UnmarshalJSON(data []byte) error {
	var envs []propertyEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	s.items = nil
	for _, env := range envs {
		var p Property
		switch env.Kind {
		case PropertyAuthorizationMatrix:
			if env.AuthorizationMatrix == nil {
				return fmt.Errorf("property %q: missing body", env.Kind)
			}
			p = env.AuthorizationMatrix
		case PropertyBuildTrigger:
			if env.BuildTrigger == nil {
				return fmt.Errorf("property %q: missing body", env.Kind)
			}
			p = env.BuildTrigger
		default:
			return fmt.Errorf("unknown property kind %q", env.Kind)
		}
		if !s.Add(p) {
			return fmt.Errorf("duplicate property kind %q", env.Kind)
		}
	}
	return nil
}
