package job

import "time"

// Kind identifies the fixed set of work the pipeline can execute.
type Kind string

const (
	// KindGltfConvert converts a project's geometry into glTF output.
	KindGltfConvert Kind = "gltf.convert"
	// KindTexturePreflight checks project textures for export problems.
	KindTexturePreflight Kind = "texture.preflight"
)

// Kinds lists every supported job kind, in the order reported to callers.
func Kinds() []Kind {
	return []Kind{KindGltfConvert, KindTexturePreflight}
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Attempt and lease bounds. Requests outside these ranges fall back to
// the defaults rather than erroring.
const (
	DefaultMaxAttempts = 3
	MinAttempts        = 1
	MaxAttempts        = 10

	DefaultLease = 30 * time.Second
	MinLease     = 5 * time.Second
	MaxLease     = 300 * time.Second
)

// Job is a single unit of asynchronous work against a project.
// All fields are owned by the store; callers only ever see clones.
type Job struct {
	ID           int64          `json:"id"`
	ProjectID    string         `json:"projectId"`
	Kind         Kind           `json:"kind"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       Status         `json:"status"`
	AttemptCount int            `json:"attemptCount"`
	MaxAttempts  int            `json:"maxAttempts"`
	Lease        time.Duration  `json:"lease"`
	CreatedAt    time.Time      `json:"createdAt"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	LeaseExpires *time.Time     `json:"leaseExpiresAt,omitempty"`
	NextRetryAt  *time.Time     `json:"nextRetryAt,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	WorkerID     string         `json:"workerId,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	DeadLetter   bool           `json:"deadLetter"`
}

// SubmitRequest defines job submission inputs. Zero values for
// MaxAttempts and Lease mean "use the default".
type SubmitRequest struct {
	ProjectID   string
	Kind        Kind
	Payload     map[string]any
	MaxAttempts int
	Lease       time.Duration
}

// ClampAttempts resolves a requested attempt budget. Unset or
// out-of-range values fall back to DefaultMaxAttempts.
func ClampAttempts(requested int) int {
	if requested < MinAttempts || requested > MaxAttempts {
		return DefaultMaxAttempts
	}
	return requested
}

// ClampLease resolves a requested lease duration. Unset or
// out-of-range values fall back to DefaultLease.
func ClampLease(requested time.Duration) time.Duration {
	if requested < MinLease || requested > MaxLease {
		return DefaultLease
	}
	return requested
}

// Backoff returns the retry delay after the given failed attempt
// (1-indexed): 250ms, 500ms, 1s, 2s, 4s, then capped at 5s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 250 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 5*time.Second {
			return 5 * time.Second
		}
	}
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// Clone returns a deep copy of the job. The payload and result maps are
// copied via JSON-safe value cloning so callers cannot reach store state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Payload = cloneMap(j.Payload)
	cp.Result = cloneMap(j.Result)
	cp.StartedAt = cloneTime(j.StartedAt)
	cp.LeaseExpires = cloneTime(j.LeaseExpires)
	cp.NextRetryAt = cloneTime(j.NextRetryAt)
	cp.CompletedAt = cloneTime(j.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// CloneMap deep-copies a JSON-shaped map (nested maps and slices).
func CloneMap(m map[string]any) map[string]any {
	return cloneMap(m)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
