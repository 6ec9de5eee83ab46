package state

import (
	"fmt"
	"time"

	"github.com/meshforge/pipeline/internal/domain/project"
)

// CreateFolder inserts a new folder under the given parent ("" for
// root) at the given index, clamped into the children range.
func (c *Container) CreateFolder(name, parentID string, index int) (*project.Folder, error) {
	if parentID != "" {
		if _, ok := c.Folders[parentID]; !ok {
			return nil, project.ErrFolderNotFound
		}
	}
	c.entityNonce++
	f := &project.Folder{
		ID:             fmt.Sprintf("fold-%d", c.entityNonce),
		Name:           name,
		ParentFolderID: parentID,
		Children:       []project.ChildRef{},
	}
	c.Folders[f.ID] = f
	c.attachChild(parentID, project.ChildRef{Kind: project.ChildFolder, ID: f.ID}, index)
	return f.Clone(), nil
}

// CreateProject inserts a new empty project under the given parent
// ("" for root) at the given index.
func (c *Container) CreateProject(name, parentID string, index int, now time.Time) (*project.Project, error) {
	if parentID != "" {
		if _, ok := c.Folders[parentID]; !ok {
			return nil, project.ErrFolderNotFound
		}
	}
	c.entityNonce++
	id := fmt.Sprintf("proj-%d", c.entityNonce)
	p := c.insertProject(id, name, parentID, index, now)
	return p.Clone(), nil
}

// insertProject creates a project record and attaches it to the tree.
// Also used by SubmitJob for first-submit project creation, where the
// id is supplied by the caller.
func (c *Container) insertProject(id, name, parentID string, index int, now time.Time) *project.Project {
	p := &project.Project{
		ID:             id,
		Name:           name,
		ParentFolderID: parentID,
		CreatedAt:      now,
	}
	p.SyncSnapshot()
	c.Projects[id] = p
	c.attachChild(parentID, project.ChildRef{Kind: project.ChildProject, ID: id}, index)
	return p
}

// MoveNode detaches a folder or project from its current parent and
// reattaches it under newParentID ("" for root) at the given index.
func (c *Container) MoveNode(nodeID, newParentID string, index int) error {
	ref, ok := c.refFor(nodeID)
	if !ok {
		return project.ErrNotFound
	}
	if newParentID != "" {
		if _, ok := c.Folders[newParentID]; !ok {
			return project.ErrFolderNotFound
		}
	}
	if ref.Kind == project.ChildFolder && c.isDescendantFolder(newParentID, nodeID) {
		return fmt.Errorf("%w: folder %s cannot move under its own subtree", project.ErrInvalidMove, nodeID)
	}
	c.detachChild(ref)
	c.attachChild(newParentID, ref, index)
	switch ref.Kind {
	case project.ChildFolder:
		c.Folders[nodeID].ParentFolderID = newParentID
	case project.ChildProject:
		c.Projects[nodeID].ParentFolderID = newParentID
	}
	return nil
}

// RenameNode changes only the name of a folder or project.
func (c *Container) RenameNode(nodeID, name string) error {
	if f, ok := c.Folders[nodeID]; ok {
		f.Name = name
		return nil
	}
	if p, ok := c.Projects[nodeID]; ok {
		p.Name = name
		return nil
	}
	return project.ErrNotFound
}

// DeleteNode removes a project, or a folder together with all of its
// descendant folders and projects. Jobs referencing removed projects
// are left alone; reconciling them is a caller concern.
func (c *Container) DeleteNode(nodeID string) error {
	ref, ok := c.refFor(nodeID)
	if !ok {
		return project.ErrNotFound
	}
	c.detachChild(ref)
	c.deleteSubtree(ref)
	return nil
}

func (c *Container) deleteSubtree(ref project.ChildRef) {
	switch ref.Kind {
	case project.ChildProject:
		delete(c.Projects, ref.ID)
		delete(c.Events, ref.ID)
	case project.ChildFolder:
		f := c.Folders[ref.ID]
		if f != nil {
			for _, child := range f.Children {
				c.deleteSubtree(child)
			}
		}
		delete(c.Folders, ref.ID)
	}
}

func (c *Container) refFor(nodeID string) (project.ChildRef, bool) {
	if _, ok := c.Folders[nodeID]; ok {
		return project.ChildRef{Kind: project.ChildFolder, ID: nodeID}, true
	}
	if _, ok := c.Projects[nodeID]; ok {
		return project.ChildRef{Kind: project.ChildProject, ID: nodeID}, true
	}
	return project.ChildRef{}, false
}

// isDescendantFolder reports whether candidate is folderID itself or
// lies anywhere below it.
func (c *Container) isDescendantFolder(candidate, folderID string) bool {
	for candidate != "" {
		if candidate == folderID {
			return true
		}
		f, ok := c.Folders[candidate]
		if !ok {
			return false
		}
		candidate = f.ParentFolderID
	}
	return false
}

func (c *Container) attachChild(parentID string, ref project.ChildRef, index int) {
	if parentID == "" {
		c.RootChildren = insertRef(c.RootChildren, ref, index)
		return
	}
	f := c.Folders[parentID]
	f.Children = insertRef(f.Children, ref, index)
}

// detachChild removes the ref from whichever children list owns it,
// preserving the single-owner invariant.
func (c *Container) detachChild(ref project.ChildRef) {
	if removed, rest := removeRef(c.RootChildren, ref); removed {
		c.RootChildren = rest
		return
	}
	for _, f := range c.Folders {
		if removed, rest := removeRef(f.Children, ref); removed {
			f.Children = rest
			return
		}
	}
}

func insertRef(list []project.ChildRef, ref project.ChildRef, index int) []project.ChildRef {
	if index < 0 {
		index = 0
	}
	if index > len(list) {
		index = len(list)
	}
	list = append(list, project.ChildRef{})
	copy(list[index+1:], list[index:])
	list[index] = ref
	return list
}

func removeRef(list []project.ChildRef, ref project.ChildRef) (bool, []project.ChildRef) {
	for i, r := range list {
		if r == ref {
			return true, append(list[:i], list[i+1:]...)
		}
	}
	return false, list
}
