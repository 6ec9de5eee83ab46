package project_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshforge/pipeline/internal/domain/project"
)

func TestSyncSnapshot(t *testing.T) {
	p := &project.Project{ID: "p1"}
	p.SyncSnapshot()
	require.False(t, p.HasGeometry)
	require.Equal(t, project.Stats{}, p.Stats)

	p.Hierarchy = []project.Node{
		{Kind: project.NodeBone, Name: "root", Children: []project.Node{
			{Kind: project.NodeCube, Name: "head"},
			{Kind: project.NodeBone, Name: "arm", Children: []project.Node{
				{Kind: project.NodeCube, Name: "hand"},
			}},
		}},
	}
	p.SyncSnapshot()
	require.True(t, p.HasGeometry)
	require.Equal(t, project.Stats{Bones: 2, Cubes: 2}, p.Stats)
}

func TestProjectCloneIsolation(t *testing.T) {
	now := time.Now()
	p := &project.Project{
		ID:        "p1",
		Hierarchy: []project.Node{{Kind: project.NodeBone, Name: "root"}},
		ActiveJob: &project.ActiveJobRef{ID: 1, Status: "queued"},
		Lock:      &project.Lock{Owner: "alice", Token: "tok", ExpiresAt: now},
		Textures:  []project.Texture{{ID: "tex1", Name: "skin"}},
	}

	cp := p.Clone()
	cp.Hierarchy[0].Name = "changed"
	cp.ActiveJob.Status = "running"
	cp.Lock.Owner = "bob"
	cp.Textures[0].Name = "changed"

	require.Equal(t, "root", p.Hierarchy[0].Name)
	require.Equal(t, "queued", p.ActiveJob.Status)
	require.Equal(t, "alice", p.Lock.Owner)
	require.Equal(t, "skin", p.Textures[0].Name)
}

func TestLockExpired(t *testing.T) {
	now := time.Now()
	lock := &project.Lock{ExpiresAt: now.Add(time.Minute)}
	require.False(t, lock.Expired(now))
	require.True(t, lock.Expired(now.Add(2*time.Minute)))
	require.True(t, (*project.Lock)(nil).Expired(now))
}

func TestDecodeHierarchy(t *testing.T) {
	nodes := project.DecodeHierarchy([]any{
		map[string]any{
			"kind": "bone",
			"name": "root",
			"children": []any{
				map[string]any{"kind": "cube", "name": "head"},
			},
		},
	})
	require.Len(t, nodes, 1)
	require.Equal(t, project.NodeBone, nodes[0].Kind)
	require.Equal(t, "root", nodes[0].Name)
	require.Len(t, nodes[0].Children, 1)
	require.Equal(t, project.NodeCube, nodes[0].Children[0].Kind)

	require.Nil(t, project.DecodeHierarchy(nil))
	require.Nil(t, project.DecodeHierarchy("not a list"))
}
