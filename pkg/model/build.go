package model

import (
	"fmt"
	"time"
)

// BuildResult is the outcome of a finished build.
type BuildResult string

const (
	ResultSuccess  BuildResult = "SUCCESS"
	ResultUnstable BuildResult = "UNSTABLE"
	ResultFailure  BuildResult = "FAILURE"
	ResultAborted  BuildResult = "ABORTED"
)

// Valid reports whether r is a known result.
func (r BuildResult) Valid() bool {
	switch r {
	case ResultSuccess, ResultUnstable, ResultFailure, ResultAborted:
		return true
	}
	return false
}

// resultOrdinal ranks results from best to worst.
var resultOrdinal = map[BuildResult]int{
	ResultSuccess:  0,
	ResultUnstable: 1,
	ResultFailure:  2,
	ResultAborted:  3,
}

// IsBetterOrEqualTo reports whether r is at least as good as other. Unknown
// results compare false.
func (r BuildResult) IsBetterOrEqualTo(other BuildResult) bool {
	a, ok := resultOrdinal[r]
	if !ok {
		return false
	}
	b, ok := resultOrdinal[other]
	if !ok {
		return false
	}
	return a <= b
}

// Build is a handle on one run of a project.
type Build struct {
	ID          string      `json:"id"`
	ProjectName string      `json:"project"`
	Number      int         `json:"number"`
	Result      BuildResult `json:"result"`
	CompletedAt time.Time   `json:"completed_at"`
}

// FullDisplayName returns the human-readable build name, e.g. "core #12".
func (b *Build) FullDisplayName() string {
	return fmt.Sprintf("%s #%d", b.ProjectName, b.Number)
}
