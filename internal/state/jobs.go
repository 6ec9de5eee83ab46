package state

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
)

// SubmitJob validates and enqueues a new job. Submitting against an
// unknown project creates that project at the root of the tree.
// Returns the created job (clone) and the emitted snapshot event.
func (c *Container) SubmitJob(now time.Time, req job.SubmitRequest) (*job.Job, *event.ProjectEvent, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, nil, fmt.Errorf("%w: projectId is required", job.ErrInvalidPayload)
	}
	payload, err := job.NormalizePayload(req.Kind, req.Payload)
	if err != nil {
		return nil, nil, err
	}

	p, ok := c.Projects[req.ProjectID]
	if !ok {
		p = c.insertProject(req.ProjectID, req.ProjectID, "", len(c.RootChildren), now)
	}

	id := c.nextJobID
	c.nextJobID++
	j := &job.Job{
		ID:          id,
		ProjectID:   req.ProjectID,
		Kind:        req.Kind,
		Payload:     payload,
		Status:      job.StatusQueued,
		MaxAttempts: job.ClampAttempts(req.MaxAttempts),
		Lease:       job.ClampLease(req.Lease),
		CreatedAt:   now,
	}
	c.Jobs[id] = j
	c.pushPending(pendingEntry{jobID: id})

	p.ActiveJob = &project.ActiveJobRef{ID: id, Status: string(job.StatusQueued)}
	ev := c.appendSnapshot(req.ProjectID)
	return j.Clone(), ev, nil
}

// ClaimJob sweeps expired leases, then claims the earliest eligible
// queued job for the worker. Returns (nil, nil, swept, nil) when no job
// is currently eligible; swept reports whether the sweep mutated state.
func (c *Container) ClaimJob(now time.Time, workerID string) (*job.Job, *event.ProjectEvent, bool, error) {
	swept := c.sweepExpiredLeases(now)

	for {
		top, ok := c.peekPending()
		if !ok || top.dueAt.After(now) {
			return nil, nil, swept, nil
		}
		entry, _ := c.popPending()
		j, ok := c.Jobs[entry.jobID]
		if !ok || j.Status != job.StatusQueued {
			// Stale index entry; the job record already moved on.
			continue
		}
		if j.NextRetryAt != nil {
			if j.NextRetryAt.After(now) {
				// Entry surfaced early (rebuilt index); push it back
				// under its real due time and keep scanning.
				c.pushPending(pendingEntry{jobID: entry.jobID, dueAt: *j.NextRetryAt})
				continue
			}
			j.NextRetryAt = nil
		}

		j.Status = job.StatusRunning
		j.WorkerID = workerID
		started := now
		j.StartedAt = &started
		j.AttemptCount++
		expires := now.Add(j.Lease)
		j.LeaseExpires = &expires
		j.Error = ""
		j.CompletedAt = nil
		j.DeadLetter = false

		var ev *event.ProjectEvent
		if p, ok := c.Projects[j.ProjectID]; ok {
			p.ActiveJob = &project.ActiveJobRef{ID: j.ID, Status: string(job.StatusRunning)}
			ev = c.appendSnapshot(j.ProjectID)
		}
		return j.Clone(), ev, true, nil
	}
}

// sweepExpiredLeases lazily returns timed-out running jobs to the
// queue. Attempt counts are untouched and no error is recorded; the
// next claim simply re-runs them.
func (c *Container) sweepExpiredLeases(now time.Time) bool {
	var expired []int64
	for id, j := range c.Jobs {
		if j.Status == job.StatusRunning && j.LeaseExpires != nil && now.After(*j.LeaseExpires) {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	for _, id := range expired {
		j := c.Jobs[id]
		j.Status = job.StatusQueued
		j.WorkerID = ""
		j.StartedAt = nil
		j.LeaseExpires = nil
		c.pushPending(pendingEntry{jobID: id})
	}
	return len(expired) > 0
}

// CompleteJob records a successful result. A result that violates the
// kind's schema is rejected before any state changes. Completion bumps
// the project revision by exactly one and, for gltf.convert results
// carrying a hierarchy, replaces the project's geometry.
func (c *Container) CompleteJob(now time.Time, id int64, result map[string]any) (*job.Job, *event.ProjectEvent, error) {
	j, ok := c.Jobs[id]
	if !ok {
		return nil, nil, job.ErrNotFound
	}
	if j.Status != job.StatusRunning {
		return nil, nil, fmt.Errorf("%w: cannot complete %s job %d", job.ErrInvalidTransition, j.Status, id)
	}
	if err := job.ValidateResult(j.Kind, result); err != nil {
		return nil, nil, err
	}

	j.Status = job.StatusCompleted
	j.Result = job.CloneMap(result)
	completed := now
	j.CompletedAt = &completed
	j.LeaseExpires = nil
	j.NextRetryAt = nil
	j.DeadLetter = false

	var ev *event.ProjectEvent
	if p, ok := c.Projects[j.ProjectID]; ok {
		if j.Kind == job.KindGltfConvert && result != nil {
			if hierarchy, ok := result["hierarchy"]; ok {
				p.Hierarchy = project.DecodeHierarchy(hierarchy)
				p.SyncSnapshot()
			}
		}
		p.Revision++
		p.ActiveJob = &project.ActiveJobRef{ID: j.ID, Status: string(job.StatusCompleted)}
		ev = c.appendSnapshot(j.ProjectID)
	}
	return j.Clone(), ev, nil
}

// FailJob records a failure. With attempts remaining the job is
// requeued with exponential backoff; otherwise it dead-letters. Both
// branches bump the project revision by exactly one.
func (c *Container) FailJob(now time.Time, id int64, jobErr string) (*job.Job, *event.ProjectEvent, error) {
	j, ok := c.Jobs[id]
	if !ok {
		return nil, nil, job.ErrNotFound
	}
	if j.Status != job.StatusRunning {
		return nil, nil, fmt.Errorf("%w: cannot fail %s job %d", job.ErrInvalidTransition, j.Status, id)
	}

	j.Error = jobErr
	j.LeaseExpires = nil
	status := job.StatusFailed
	if j.AttemptCount < j.MaxAttempts {
		status = job.StatusQueued
		retryAt := now.Add(job.Backoff(j.AttemptCount))
		j.Status = status
		j.NextRetryAt = &retryAt
		j.CompletedAt = nil
		j.WorkerID = ""
		j.StartedAt = nil
		c.pushPending(pendingEntry{jobID: id, dueAt: retryAt})
	} else {
		j.Status = status
		j.DeadLetter = true
		j.NextRetryAt = nil
	}

	var ev *event.ProjectEvent
	if p, ok := c.Projects[j.ProjectID]; ok {
		p.Revision++
		p.ActiveJob = &project.ActiveJobRef{ID: j.ID, Status: string(status)}
		ev = c.appendSnapshot(j.ProjectID)
	}
	return j.Clone(), ev, nil
}

// GetJob returns a clone of the job, or ErrNotFound.
func (c *Container) GetJob(id int64) (*job.Job, error) {
	j, ok := c.Jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return j.Clone(), nil
}

// ListProjectJobs returns clones of the project's jobs, oldest first.
func (c *Container) ListProjectJobs(projectID string) []*job.Job {
	var out []*job.Job
	for _, j := range c.Jobs {
		if j.ProjectID == projectID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
