package model

import "time"

// QueueItem is a pending build request waiting out its quiet period.
type QueueItem struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"project"`
	Cause       Cause     `json:"cause"`
	QueuedAt    time.Time `json:"queued_at"`
	NotBefore   time.Time `json:"not_before"`
}

// Cause records why a build was scheduled.
type Cause struct {
	UpstreamProject string `json:"upstream_project,omitempty"`
	UpstreamBuild   int    `json:"upstream_build,omitempty"`
	UserID          string `json:"user_id,omitempty"`
}
