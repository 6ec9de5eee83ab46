package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshforge/pipeline/internal/domain/job"
)

func TestClampAttempts(t *testing.T) {
	require.Equal(t, 3, job.ClampAttempts(0))
	require.Equal(t, 3, job.ClampAttempts(-5))
	require.Equal(t, 3, job.ClampAttempts(11))
	require.Equal(t, 1, job.ClampAttempts(1))
	require.Equal(t, 10, job.ClampAttempts(10))
	require.Equal(t, 7, job.ClampAttempts(7))
}

func TestClampLease(t *testing.T) {
	require.Equal(t, 30*time.Second, job.ClampLease(0))
	require.Equal(t, 30*time.Second, job.ClampLease(time.Second))
	require.Equal(t, 30*time.Second, job.ClampLease(10*time.Minute))
	require.Equal(t, 5*time.Second, job.ClampLease(5*time.Second))
	require.Equal(t, 300*time.Second, job.ClampLease(300*time.Second))
}

func TestBackoffSequence(t *testing.T) {
	expected := []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	for i, want := range expected {
		require.Equal(t, want, job.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestJobCloneIsolation(t *testing.T) {
	started := time.Now()
	j := &job.Job{
		ID:        1,
		ProjectID: "proj-1",
		Kind:      job.KindGltfConvert,
		Payload:   map[string]any{"format": "glb", "nested": map[string]any{"a": 1}},
		StartedAt: &started,
		Result:    map[string]any{"warnings": []any{"w1"}},
	}

	cp := j.Clone()
	cp.Payload["format"] = "gltf"
	cp.Payload["nested"].(map[string]any)["a"] = 2
	cp.Result["warnings"].([]any)[0] = "changed"
	*cp.StartedAt = cp.StartedAt.Add(time.Hour)

	require.Equal(t, "glb", j.Payload["format"])
	require.Equal(t, 1, j.Payload["nested"].(map[string]any)["a"])
	require.Equal(t, "w1", j.Result["warnings"].([]any)[0])
	require.Equal(t, started, *j.StartedAt)
}

func TestExportBlobKey(t *testing.T) {
	require.Equal(t, "t1/p1/out/model.glb", job.ExportBlobKey("t1", "p1", "out/model.glb"))
	require.Equal(t, "t1/p1/out/model.glb", job.ExportBlobKey("t1", "p1", "../../out/../out/model.glb"))
	require.Equal(t, "t1/p1/model.glb", job.ExportBlobKey("t1", "p1", "/model.glb"))
	require.Equal(t, "t1/p1/a/b.glb", job.ExportBlobKey("t1", "p1", `a\b.glb`))
}
