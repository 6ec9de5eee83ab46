// Package state holds the mutable pipeline collections: projects,
// folders, jobs, the pending-job index, and the global event log.
// A Container is not safe for concurrent use; the store façade wraps
// it in a single mutex so every transition runs as one uninterrupted
// step.
package state

import (
	"sort"

	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
)

// Container is the root of all pipeline state plus its monotonic
// counters. The public store methods are the only legal mutation path.
type Container struct {
	Projects     map[string]*project.Project
	Folders      map[string]*project.Folder
	Jobs         map[int64]*job.Job
	RootChildren []project.ChildRef
	Events       map[string][]event.ProjectEvent

	nextJobID    int64
	nextEventSeq int64
	entityNonce  int64
	enqueueOrder int64
	pending      pendingHeap
}

// NewContainer returns an empty container with counters at their
// starting values.
func NewContainer() *Container {
	return &Container{
		Projects:     make(map[string]*project.Project),
		Folders:      make(map[string]*project.Folder),
		Jobs:         make(map[int64]*job.Job),
		Events:       make(map[string][]event.ProjectEvent),
		nextJobID:    1,
		nextEventSeq: 1,
	}
}

// Counters reports the next-to-allocate counter values.
func (c *Container) Counters() (nextJobID, nextEventSeq, entityNonce int64) {
	return c.nextJobID, c.nextEventSeq, c.entityNonce
}

// RestoreCounters sets the counters, used by the persistence codec
// after reconciling stored values against observed ids.
func (c *Container) RestoreCounters(nextJobID, nextEventSeq, entityNonce int64) {
	if nextJobID > c.nextJobID {
		c.nextJobID = nextJobID
	}
	if nextEventSeq > c.nextEventSeq {
		c.nextEventSeq = nextEventSeq
	}
	if entityNonce > c.entityNonce {
		c.entityNonce = entityNonce
	}
}

// PendingJobIDs returns the pending index as an ordered id list,
// earliest-due first. Used by the persistence codec.
func (c *Container) PendingJobIDs() []int64 {
	entries := append([]pendingEntry(nil), c.pending...)
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].dueAt.Equal(entries[j].dueAt) {
			return entries[i].dueAt.Before(entries[j].dueAt)
		}
		return entries[i].order < entries[j].order
	})
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.jobID
	}
	return ids
}

// RestorePending rebuilds the pending index from an id list. Due times
// come from each job's NextRetryAt; ids without a matching queued job
// are still indexed and dropped lazily at claim time.
func (c *Container) RestorePending(ids []int64) {
	c.pending = nil
	for _, id := range ids {
		entry := pendingEntry{jobID: id}
		if j, ok := c.Jobs[id]; ok && j.NextRetryAt != nil {
			entry.dueAt = *j.NextRetryAt
		}
		c.pushPending(entry)
	}
}

// Clone deep-copies the container, counters and pending index included.
func (c *Container) Clone() *Container {
	cp := NewContainer()
	cp.nextJobID = c.nextJobID
	cp.nextEventSeq = c.nextEventSeq
	cp.entityNonce = c.entityNonce
	cp.enqueueOrder = c.enqueueOrder
	for id, p := range c.Projects {
		cp.Projects[id] = p.Clone()
	}
	for id, f := range c.Folders {
		cp.Folders[id] = f.Clone()
	}
	for id, j := range c.Jobs {
		cp.Jobs[id] = j.Clone()
	}
	cp.RootChildren = append([]project.ChildRef(nil), c.RootChildren...)
	for id, evs := range c.Events {
		cloned := make([]event.ProjectEvent, len(evs))
		for i, ev := range evs {
			cloned[i] = ev.Clone()
		}
		cp.Events[id] = cloned
	}
	cp.pending = append(pendingHeap(nil), c.pending...)
	return cp
}

// GetProject returns a clone of the project, or ErrNotFound.
func (c *Container) GetProject(id string) (*project.Project, error) {
	p, ok := c.Projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	return p.Clone(), nil
}

// ListProjects returns clones of all projects ordered by creation time.
func (c *Container) ListProjects() []*project.Project {
	out := make([]*project.Project, 0, len(c.Projects))
	for _, p := range c.Projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
