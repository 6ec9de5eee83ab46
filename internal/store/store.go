// Package store exposes the pipeline state behind one narrow port,
// implemented by a transient in-memory backend and a durable
// document-backed backend with identical external behavior.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
)

// ErrStateConflict indicates the durable backend lost a conditional
// write to a concurrent owner of the same state document.
var ErrStateConflict = errors.New("state document conflict")

// Store is the single port over job queue, project tree, event stream,
// and lock operations. Every returned value is a clone; callers can
// never mutate store internals through it.
type Store interface {
	SubmitJob(ctx context.Context, req job.SubmitRequest) (*job.Job, error)
	ClaimJob(ctx context.Context, workerID string) (*job.Job, error)
	CompleteJob(ctx context.Context, id int64, result map[string]any) (*job.Job, error)
	FailJob(ctx context.Context, id int64, jobErr string) (*job.Job, error)
	GetJob(ctx context.Context, id int64) (*job.Job, error)
	ListProjectJobs(ctx context.Context, projectID string) ([]*job.Job, error)

	CreateFolder(ctx context.Context, name, parentID string, index int) (*project.Folder, error)
	CreateProject(ctx context.Context, name, parentID string, index int) (*project.Project, error)
	MoveNode(ctx context.Context, nodeID, newParentID string, index int) error
	RenameNode(ctx context.Context, nodeID, name string) error
	DeleteNode(ctx context.Context, nodeID string) error
	GetProject(ctx context.Context, projectID string) (*project.Project, error)
	ListProjects(ctx context.Context) ([]*project.Project, error)

	EventsSince(ctx context.Context, projectID string, lastSeq int64) ([]event.ProjectEvent, error)
	Watch(projectID string) (<-chan event.ProjectEvent, func())

	AcquireProjectLock(ctx context.Context, projectID, owner string) (*project.Lock, error)
	HeartbeatProjectLock(ctx context.Context, projectID, token string) error
	ReleaseProjectLock(ctx context.Context, projectID, token string) error
	SetFocusAnchor(ctx context.Context, projectID, anchor string) error

	Close() error
}

// Persister is the durability hook: it saves encoded state documents
// and loads the last one back at open. Save must be atomic and
// conditional on the previously saved document still being current.
type Persister interface {
	Load() ([]byte, error)
	Save(doc []byte) error
	Close() error
}

// Option configures a store instance.
type Option func(*options)

type options struct {
	clock  func() time.Time
	logger *slog.Logger
}

// WithClock overrides the time source, mainly for tests that advance
// leases and retry windows without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func resolveOptions(opts []Option) options {
	o := options{clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
