// Package event defines the project event log entry consumed by
// server-push streaming.
package event

import "github.com/meshforge/pipeline/internal/domain/project"

// TypeProjectSnapshot is the only event type emitted today: a full
// materialized copy of the project at emission time.
const TypeProjectSnapshot = "project_snapshot"

// ProjectEvent is one entry in a project's event history. Seq values
// are drawn from a single counter shared across all projects, so a
// consumer cursor is globally comparable.
type ProjectEvent struct {
	Seq   int64            `json:"seq"`
	Event string           `json:"event"`
	Data  *project.Project `json:"data"`
}

// Clone returns a copy whose project snapshot is independently owned.
func (e ProjectEvent) Clone() ProjectEvent {
	return ProjectEvent{Seq: e.Seq, Event: e.Event, Data: e.Data.Clone()}
}
