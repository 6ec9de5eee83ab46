package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
	"github.com/meshforge/pipeline/internal/state"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateFolderAndProject(t *testing.T) {
	c := state.NewContainer()

	f, err := c.CreateFolder("characters", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, f.ID)

	p, err := c.CreateProject("hero", f.ID, 0, t0)
	require.NoError(t, err)
	require.Equal(t, f.ID, p.ParentFolderID)
	require.False(t, p.HasGeometry)

	// The project appears exactly once, in its parent's children.
	owner := c.Folders[f.ID]
	require.Equal(t, []project.ChildRef{{Kind: project.ChildProject, ID: p.ID}}, owner.Children)
	require.Equal(t, []project.ChildRef{{Kind: project.ChildFolder, ID: f.ID}}, c.RootChildren)
}

func TestCreateFolderUnknownParent(t *testing.T) {
	c := state.NewContainer()
	_, err := c.CreateFolder("orphans", "missing", 0)
	require.ErrorIs(t, err, project.ErrFolderNotFound)
	_, err = c.CreateProject("p", "missing", 0, t0)
	require.ErrorIs(t, err, project.ErrFolderNotFound)
}

func TestInsertIndexClamping(t *testing.T) {
	c := state.NewContainer()
	a, err := c.CreateProject("a", "", 99, t0)
	require.NoError(t, err)
	b, err := c.CreateProject("b", "", -1, t0)
	require.NoError(t, err)
	mid, err := c.CreateProject("mid", "", 1, t0)
	require.NoError(t, err)

	require.Equal(t, []project.ChildRef{
		{Kind: project.ChildProject, ID: b.ID},
		{Kind: project.ChildProject, ID: mid.ID},
		{Kind: project.ChildProject, ID: a.ID},
	}, c.RootChildren)
}

func TestMoveNode(t *testing.T) {
	c := state.NewContainer()
	f1, _ := c.CreateFolder("one", "", 0)
	f2, _ := c.CreateFolder("two", "", 1)
	p, _ := c.CreateProject("hero", f1.ID, 0, t0)

	require.NoError(t, c.MoveNode(p.ID, f2.ID, 0))
	require.Empty(t, c.Folders[f1.ID].Children)
	require.Equal(t, f2.ID, c.Projects[p.ID].ParentFolderID)
	require.Len(t, c.Folders[f2.ID].Children, 1)

	// Folder cannot move under its own subtree.
	require.NoError(t, c.MoveNode(f2.ID, f1.ID, 0))
	err := c.MoveNode(f1.ID, f2.ID, 0)
	require.ErrorIs(t, err, project.ErrInvalidMove)

	require.ErrorIs(t, c.MoveNode("missing", "", 0), project.ErrNotFound)
	require.ErrorIs(t, c.MoveNode(p.ID, "missing", 0), project.ErrFolderNotFound)
}

func TestRenameNode(t *testing.T) {
	c := state.NewContainer()
	f, _ := c.CreateFolder("old", "", 0)
	p, _ := c.CreateProject("old", "", 1, t0)

	require.NoError(t, c.RenameNode(f.ID, "new"))
	require.NoError(t, c.RenameNode(p.ID, "new"))
	require.Equal(t, "new", c.Folders[f.ID].Name)
	require.Equal(t, "new", c.Projects[p.ID].Name)
	require.Zero(t, c.Projects[p.ID].Revision)

	require.ErrorIs(t, c.RenameNode("missing", "x"), project.ErrNotFound)
}

func TestDeleteFolderCascades(t *testing.T) {
	c := state.NewContainer()
	top, _ := c.CreateFolder("top", "", 0)
	nested, _ := c.CreateFolder("nested", top.ID, 0)
	p1, _ := c.CreateProject("p1", nested.ID, 0, t0)
	p2, _ := c.CreateProject("p2", top.ID, 1, t0)
	keep, _ := c.CreateProject("keep", "", 1, t0)

	require.NoError(t, c.DeleteNode(top.ID))
	require.NotContains(t, c.Folders, top.ID)
	require.NotContains(t, c.Folders, nested.ID)
	require.NotContains(t, c.Projects, p1.ID)
	require.NotContains(t, c.Projects, p2.ID)
	require.Contains(t, c.Projects, keep.ID)
	require.Equal(t, []project.ChildRef{{Kind: project.ChildProject, ID: keep.ID}}, c.RootChildren)
}

func TestProjectLockLifecycle(t *testing.T) {
	c := state.NewContainer()
	p, _ := c.CreateProject("hero", "", 0, t0)

	lock, err := c.AcquireProjectLock(t0, p.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", lock.Owner)
	require.NotEmpty(t, lock.Token)

	// Another owner is blocked while the lock is fresh.
	_, err = c.AcquireProjectLock(t0.Add(time.Second), p.ID, "bob")
	require.ErrorIs(t, err, project.ErrLocked)

	// Heartbeat extends the lock.
	require.NoError(t, c.HeartbeatProjectLock(t0.Add(30*time.Second), p.ID, lock.Token))
	_, err = c.AcquireProjectLock(t0.Add(80*time.Second), p.ID, "bob")
	require.ErrorIs(t, err, project.ErrLocked)

	// After expiry anyone can take it.
	taken, err := c.AcquireProjectLock(t0.Add(3*time.Minute), p.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", taken.Owner)

	require.ErrorIs(t, c.HeartbeatProjectLock(t0, p.ID, lock.Token), project.ErrLockTokenMismatch)
	require.NoError(t, c.ReleaseProjectLock(p.ID, taken.Token))
	require.Nil(t, c.Projects[p.ID].Lock)
}

func TestSetFocusAnchor(t *testing.T) {
	c := state.NewContainer()
	p, _ := c.CreateProject("hero", "", 0, t0)
	require.NoError(t, c.SetFocusAnchor(p.ID, "root/arm"))
	require.Equal(t, "root/arm", c.Projects[p.ID].FocusAnchor)
	require.ErrorIs(t, c.SetFocusAnchor("missing", "x"), project.ErrNotFound)
}

func TestEventsSinceSynthesizesForQuietProjects(t *testing.T) {
	c := state.NewContainer()
	p, _ := c.CreateProject("hero", "", 0, t0)

	// Explicit creation emits no event, so the first read synthesizes
	// a snapshot.
	evs, err := c.EventsSince(p.ID, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, event.TypeProjectSnapshot, evs[0].Event)
	require.Equal(t, int64(1), evs[0].Seq)
	require.Equal(t, p.ID, evs[0].Data.ID)

	// Cursor ahead of revision drives the synthesized seq upward.
	evs, err = c.EventsSince(p.ID, 41)
	require.NoError(t, err)
	require.Equal(t, int64(42), evs[0].Seq)

	_, err = c.EventsSince("missing", 0)
	require.ErrorIs(t, err, project.ErrNotFound)
}

func TestSubmitEmitsOrderedEvents(t *testing.T) {
	c := state.NewContainer()

	j1, ev1, err := c.SubmitJob(t0, job.SubmitRequest{ProjectID: "hero", Kind: job.KindGltfConvert})
	require.NoError(t, err)
	require.NotNil(t, ev1)
	j2, ev2, err := c.SubmitJob(t0, job.SubmitRequest{ProjectID: "hero", Kind: job.KindTexturePreflight})
	require.NoError(t, err)

	require.Equal(t, j1.ID+1, j2.ID)
	require.Greater(t, ev2.Seq, ev1.Seq)
	require.Equal(t, j2.ID, ev2.Data.ActiveJob.ID)

	evs, err := c.EventsSince("hero", ev1.Seq)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, ev2.Seq, evs[0].Seq)
}
