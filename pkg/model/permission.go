package model

// Permission names a project-scoped action.
type Permission string

const (
	PermissionConfigure Permission = "item.configure"
	PermissionRead      Permission = "item.read"
	PermissionBuild     Permission = "item.build"
	PermissionWorkspace Permission = "item.workspace"
	PermissionDiscover  Permission = "item.discover"
	PermissionCancel    Permission = "item.cancel"
	PermissionDelete    Permission = "item.delete"
)

// CreatorPermissions is the set granted to the creator of a project when a
// project-scoped matrix strategy is active.
var CreatorPermissions = []Permission{
	PermissionConfigure,
	PermissionRead,
	PermissionBuild,
	PermissionWorkspace,
	PermissionDiscover,
	PermissionCancel,
	PermissionDelete,
}

// AuthorizationStrategy identifies the active authorization model.
type AuthorizationStrategy string

const (
	// StrategyProjectMatrix grants permissions per project.
	StrategyProjectMatrix AuthorizationStrategy = "project_matrix"
	// StrategyGlobalMatrix grants permissions globally only.
	StrategyGlobalMatrix AuthorizationStrategy = "global_matrix"
	// StrategyUnsecured lets everyone do everything.
	StrategyUnsecured AuthorizationStrategy = "unsecured"
)

// IsProjectScoped reports whether the strategy honors per-project grants.
func (s AuthorizationStrategy) IsProjectScoped() bool {
	return s == StrategyProjectMatrix
}

// Valid reports whether s is a known strategy.
func (s AuthorizationStrategy) Valid() bool {
	switch s {
	case StrategyProjectMatrix, StrategyGlobalMatrix, StrategyUnsecured:
		return true
	}
	return false
}
