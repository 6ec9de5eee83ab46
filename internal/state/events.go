package state

import (
	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/project"
)

// appendSnapshot draws the next global sequence number and appends a
// full project snapshot to that project's event history. Returns a
// clone of the appended event for push delivery, or nil when the
// project is gone.
func (c *Container) appendSnapshot(projectID string) *event.ProjectEvent {
	p, ok := c.Projects[projectID]
	if !ok {
		return nil
	}
	seq := c.nextEventSeq
	c.nextEventSeq++
	ev := event.ProjectEvent{Seq: seq, Event: event.TypeProjectSnapshot, Data: p.Clone()}
	c.Events[projectID] = append(c.Events[projectID], ev)
	out := ev.Clone()
	return &out
}

// EventsSince returns the project's stored events with seq > lastSeq in
// ascending order. A project with no stored history at all yields a
// single synthesized snapshot at max(project.revision, lastSeq+1) so a
// fresh consumer always starts from a full picture. The synthesized
// event is not stored, and a caught-up consumer gets an empty result.
func (c *Container) EventsSince(projectID string, lastSeq int64) ([]event.ProjectEvent, error) {
	p, ok := c.Projects[projectID]
	if !ok {
		return nil, project.ErrNotFound
	}
	history := c.Events[projectID]
	if len(history) == 0 {
		seq := p.Revision
		if lastSeq+1 > seq {
			seq = lastSeq + 1
		}
		return []event.ProjectEvent{{Seq: seq, Event: event.TypeProjectSnapshot, Data: p.Clone()}}, nil
	}
	var out []event.ProjectEvent
	for _, ev := range history {
		if ev.Seq > lastSeq {
			out = append(out, ev.Clone())
		}
	}
	return out, nil
}

// RebuildEvents discards all event history and synthesizes one fresh
// snapshot per project with newly drawn sequence numbers. This is the
// restart-time rebuild: consumers resuming with a pre-restart cursor
// observe a gap.
func (c *Container) RebuildEvents() {
	c.Events = make(map[string][]event.ProjectEvent, len(c.Projects))
	for _, p := range c.ListProjects() {
		c.appendSnapshot(p.ID)
	}
}
