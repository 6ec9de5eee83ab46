package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/sqlite"
	"github.com/meshforge/pipeline/internal/store"
)

func TestReopenRestoresJobsAndProjects(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)

	submitted, err := s.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindGltfConvert})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	j, err := reopened.GetJob(ctx, submitted.ID)
	require.NoError(t, err)
	require.Equal(t, job.StatusQueued, j.Status)

	p, err := reopened.GetProject(ctx, "hero")
	require.NoError(t, err)
	require.Equal(t, "hero", p.ID)

	// The queued job survived the restart and is still claimable.
	claimed, err := reopened.ClaimJob(ctx, "worker-a")
	require.NoError(t, err)
	require.Equal(t, submitted.ID, claimed.ID)

	// New ids never collide with restored ones.
	fresh, err := reopened.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindTexturePreflight})
	require.NoError(t, err)
	require.Greater(t, fresh.ID, submitted.ID)
}

func TestReopenTruncatesEventHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)

	_, err = s.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindTexturePreflight})
	require.NoError(t, err)
	claimed, err := s.ClaimJob(ctx, "worker-a")
	require.NoError(t, err)
	_, err = s.CompleteJob(ctx, claimed.ID, map[string]any{"ok": true})
	require.NoError(t, err)

	evs, err := s.EventsSince(ctx, "hero", 0)
	require.NoError(t, err)
	require.Len(t, evs, 3)
	lastSeq := evs[len(evs)-1].Seq
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	// History collapses to one rebuilt snapshot past the old cursor; a
	// consumer resuming with a pre-restart cursor sees a gap.
	evs, err = reopened.EventsSince(ctx, "hero", 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Greater(t, evs[0].Seq, lastSeq)
}

func TestConcurrentOwnersConflict(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := sqlite.New(path)
	require.NoError(t, err)
	defer first.Close()
	_, err = first.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindGltfConvert})
	require.NoError(t, err)

	// A second owner of the same file advances the generation...
	second, err := sqlite.New(path)
	require.NoError(t, err)
	defer second.Close()
	_, err = second.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindTexturePreflight})
	require.NoError(t, err)

	// ...so the stale first owner loses its next conditional write
	// instead of clobbering newer state.
	_, err = first.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindGltfConvert})
	require.ErrorIs(t, err, store.ErrStateConflict)
}

func TestOpenWithCorruptDocumentStartsFresh(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO pipeline_state (id, generation, document) VALUES (1, 5, ?)`, []byte("not json"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Empty(t, projects)

	// The store is usable; the corrupt row is overwritten on the next
	// mutation.
	_, err = s.SubmitJob(ctx, job.SubmitRequest{ProjectID: "hero", Kind: job.KindGltfConvert})
	require.NoError(t, err)
}
