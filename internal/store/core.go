package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meshforge/pipeline/internal/codec"
	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
	"github.com/meshforge/pipeline/internal/state"
)

// watchBuffer is the per-subscriber event buffer. A subscriber that
// falls this far behind starts dropping events; it can resynchronize
// through EventsSince.
const watchBuffer = 64

// core implements Store over a state container. Every operation runs
// under one mutex, so check-and-set sequences (claim in particular)
// never interleave. With a persister attached, mutations are applied to
// a clone, persisted, and only then swapped in: a failed save leaves
// the visible state untouched.
type core struct {
	mu        sync.Mutex
	st        *state.Container
	persister Persister
	clock     func() time.Time
	logger    *slog.Logger

	watchMu  sync.Mutex
	watchers map[string]map[int64]chan event.ProjectEvent
	watchSeq int64
}

// NewMemory returns the transient backend.
func NewMemory(opts ...Option) Store {
	o := resolveOptions(opts)
	return &core{
		st:       state.NewContainer(),
		clock:    o.clock,
		logger:   o.logger,
		watchers: make(map[string]map[int64]chan event.ProjectEvent),
	}
}

// NewDurable returns a backend that round-trips every mutation through
// the persister. The previously saved document, if any, is loaded and
// repaired; an undecodable or incompatible document is discarded and
// the store starts fresh.
func NewDurable(p Persister, opts ...Option) (Store, error) {
	o := resolveOptions(opts)
	c := &core{
		st:        state.NewContainer(),
		persister: p,
		clock:     o.clock,
		logger:    o.logger,
		watchers:  make(map[string]map[int64]chan event.ProjectEvent),
	}
	doc, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("load state document: %w", err)
	}
	if len(doc) > 0 {
		st, err := codec.Decode(doc)
		if err != nil {
			c.logger.Warn("discarding unusable state document", "error", err)
		} else {
			c.st = st
			// The rebuild drew fresh event sequence numbers; persist so
			// the document and counters stay ahead of anything served.
			if err := c.persistLocked(c.st); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// errNoop signals that fn left the container untouched; mutate skips
// the durable round-trip and reports success.
var errNoop = errors.New("noop")

// mutate runs fn against the container, persisting first when durable.
// Events emitted by fn are fanned out to watchers only after the
// mutation is committed.
func (c *core) mutate(fn func(st *state.Container) ([]*event.ProjectEvent, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.st
	if c.persister != nil {
		target = c.st.Clone()
	}
	events, err := fn(target)
	if errors.Is(err, errNoop) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.persister != nil {
		if err := c.persistLocked(target); err != nil {
			return err
		}
		c.st = target
	}
	for _, ev := range events {
		if ev != nil {
			c.fanOut(ev.Data.ID, *ev)
		}
	}
	return nil
}

func (c *core) persistLocked(target *state.Container) error {
	doc, err := codec.Encode(target)
	if err != nil {
		return err
	}
	if err := c.persister.Save(doc); err != nil {
		return fmt.Errorf("save state document: %w", err)
	}
	return nil
}

func (c *core) read(fn func(st *state.Container) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.st)
}

func (c *core) SubmitJob(_ context.Context, req job.SubmitRequest) (*job.Job, error) {
	var out *job.Job
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		j, ev, err := st.SubmitJob(c.clock(), req)
		if err != nil {
			return nil, err
		}
		out = j
		return []*event.ProjectEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("job submitted", "job", out.ID, "project", out.ProjectID, "kind", out.Kind)
	return out, nil
}

func (c *core) ClaimJob(_ context.Context, workerID string) (*job.Job, error) {
	var out *job.Job
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		j, ev, swept, err := st.ClaimJob(c.clock(), workerID)
		if err != nil {
			return nil, err
		}
		if j == nil && !swept {
			return nil, errNoop
		}
		out = j
		return []*event.ProjectEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		c.logger.Debug("job claimed", "job", out.ID, "worker", workerID, "attempt", out.AttemptCount)
	}
	return out, nil
}

func (c *core) CompleteJob(_ context.Context, id int64, result map[string]any) (*job.Job, error) {
	var out *job.Job
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		j, ev, err := st.CompleteJob(c.clock(), id, result)
		if err != nil {
			return nil, err
		}
		out = j
		return []*event.ProjectEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("job completed", "job", id)
	return out, nil
}

func (c *core) FailJob(_ context.Context, id int64, jobErr string) (*job.Job, error) {
	var out *job.Job
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		j, ev, err := st.FailJob(c.clock(), id, jobErr)
		if err != nil {
			return nil, err
		}
		out = j
		return []*event.ProjectEvent{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("job failed", "job", id, "deadLetter", out.DeadLetter, "status", out.Status)
	return out, nil
}

func (c *core) GetJob(_ context.Context, id int64) (*job.Job, error) {
	var out *job.Job
	err := c.read(func(st *state.Container) error {
		j, err := st.GetJob(id)
		out = j
		return err
	})
	return out, err
}

func (c *core) ListProjectJobs(_ context.Context, projectID string) ([]*job.Job, error) {
	var out []*job.Job
	err := c.read(func(st *state.Container) error {
		out = st.ListProjectJobs(projectID)
		return nil
	})
	return out, err
}

func (c *core) CreateFolder(_ context.Context, name, parentID string, index int) (*project.Folder, error) {
	var out *project.Folder
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		f, err := st.CreateFolder(name, parentID, index)
		out = f
		return nil, err
	})
	return out, err
}

func (c *core) CreateProject(_ context.Context, name, parentID string, index int) (*project.Project, error) {
	var out *project.Project
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		p, err := st.CreateProject(name, parentID, index, c.clock())
		out = p
		return nil, err
	})
	return out, err
}

func (c *core) MoveNode(_ context.Context, nodeID, newParentID string, index int) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.MoveNode(nodeID, newParentID, index)
	})
}

func (c *core) RenameNode(_ context.Context, nodeID, name string) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.RenameNode(nodeID, name)
	})
}

func (c *core) DeleteNode(_ context.Context, nodeID string) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.DeleteNode(nodeID)
	})
}

func (c *core) GetProject(_ context.Context, projectID string) (*project.Project, error) {
	var out *project.Project
	err := c.read(func(st *state.Container) error {
		p, err := st.GetProject(projectID)
		out = p
		return err
	})
	return out, err
}

func (c *core) ListProjects(_ context.Context) ([]*project.Project, error) {
	var out []*project.Project
	err := c.read(func(st *state.Container) error {
		out = st.ListProjects()
		return nil
	})
	return out, err
}

func (c *core) EventsSince(_ context.Context, projectID string, lastSeq int64) ([]event.ProjectEvent, error) {
	var out []event.ProjectEvent
	err := c.read(func(st *state.Container) error {
		evs, err := st.EventsSince(projectID, lastSeq)
		out = evs
		return err
	})
	return out, err
}

// Watch subscribes to a project's snapshot events as they are
// appended. The returned cancel func releases the subscription and
// closes the channel. Delivery is best-effort: a full buffer drops.
func (c *core) Watch(projectID string) (<-chan event.ProjectEvent, func()) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.watchSeq++
	id := c.watchSeq
	ch := make(chan event.ProjectEvent, watchBuffer)
	if c.watchers[projectID] == nil {
		c.watchers[projectID] = make(map[int64]chan event.ProjectEvent)
	}
	c.watchers[projectID][id] = ch

	cancel := func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		if subs, ok := c.watchers[projectID]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(c.watchers, projectID)
			}
		}
	}
	return ch, cancel
}

func (c *core) fanOut(projectID string, ev event.ProjectEvent) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	for _, ch := range c.watchers[projectID] {
		select {
		case ch <- ev.Clone():
		default:
			// Subscriber is behind; it can catch up via EventsSince.
		}
	}
}

func (c *core) AcquireProjectLock(_ context.Context, projectID, owner string) (*project.Lock, error) {
	var out *project.Lock
	err := c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		lock, err := st.AcquireProjectLock(c.clock(), projectID, owner)
		out = lock
		return nil, err
	})
	return out, err
}

func (c *core) HeartbeatProjectLock(_ context.Context, projectID, token string) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.HeartbeatProjectLock(c.clock(), projectID, token)
	})
}

func (c *core) ReleaseProjectLock(_ context.Context, projectID, token string) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.ReleaseProjectLock(projectID, token)
	})
}

func (c *core) SetFocusAnchor(_ context.Context, projectID, anchor string) error {
	return c.mutate(func(st *state.Container) ([]*event.ProjectEvent, error) {
		return nil, st.SetFocusAnchor(projectID, anchor)
	})
}

func (c *core) Close() error {
	c.watchMu.Lock()
	for projectID, subs := range c.watchers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(c.watchers, projectID)
	}
	c.watchMu.Unlock()
	if c.persister != nil {
		return c.persister.Close()
	}
	return nil
}

var _ Store = (*core)(nil)
