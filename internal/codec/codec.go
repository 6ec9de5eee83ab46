// Package codec serializes the whole pipeline state container to and
// from a versioned JSON document, repairing malformed or orphaned
// entries on load.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meshforge/pipeline/internal/domain/event"
	"github.com/meshforge/pipeline/internal/domain/job"
	"github.com/meshforge/pipeline/internal/domain/project"
	"github.com/meshforge/pipeline/internal/state"
)

// Version of the document format. Any incompatible field change bumps
// this; older documents are rejected wholesale.
const Version = 1

var (
	// ErrVersionMismatch indicates the document was written by an
	// incompatible format version.
	ErrVersionMismatch = errors.New("state document version mismatch")
	// ErrMalformedDocument indicates the document is not structurally
	// decodable at all.
	ErrMalformedDocument = errors.New("malformed state document")
)

// Document is the persisted form of the state container.
type Document struct {
	Version      int                             `json:"version"`
	Counters     Counters                        `json:"counters"`
	RootChildren []project.ChildRef              `json:"rootChildren"`
	Folders      []*project.Folder               `json:"folders"`
	Projects     []*project.Project              `json:"projects"`
	Jobs         []*job.Job                      `json:"jobs"`
	PendingQueue []int64                         `json:"pendingQueue"`
	Events       map[string][]event.ProjectEvent `json:"events"`
}

// Counters carries the monotonic allocators.
type Counters struct {
	NextJobID    int64 `json:"nextJobId"`
	NextEventSeq int64 `json:"nextEventSeq"`
	EntityNonce  int64 `json:"entityNonce"`
}

// Encode renders the container into document bytes. Collections are
// sorted so identical state always encodes identically.
func Encode(c *state.Container) ([]byte, error) {
	nextJobID, nextEventSeq, entityNonce := c.Counters()
	doc := Document{
		Version:      Version,
		Counters:     Counters{NextJobID: nextJobID, NextEventSeq: nextEventSeq, EntityNonce: entityNonce},
		RootChildren: c.RootChildren,
		PendingQueue: c.PendingJobIDs(),
		Events:       c.Events,
	}
	for _, f := range c.Folders {
		doc.Folders = append(doc.Folders, f)
	}
	sort.Slice(doc.Folders, func(i, j int) bool { return doc.Folders[i].ID < doc.Folders[j].ID })
	for _, p := range c.Projects {
		doc.Projects = append(doc.Projects, p)
	}
	sort.Slice(doc.Projects, func(i, j int) bool { return doc.Projects[i].ID < doc.Projects[j].ID })
	for _, j := range c.Jobs {
		doc.Jobs = append(doc.Jobs, j)
	}
	sort.Slice(doc.Jobs, func(i, j int) bool { return doc.Jobs[i].ID < doc.Jobs[j].ID })

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode state document: %w", err)
	}
	return out, nil
}

// Decode rebuilds a container from document bytes. Entries that fail
// shape validation are dropped, dangling and orphaned tree entries are
// reattached, counters are reconciled against every observed id, and
// event history is replaced by one fresh snapshot per project.
func Decode(data []byte) (*state.Container, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, doc.Version, Version)
	}

	c := state.NewContainer()
	for _, f := range doc.Folders {
		if f == nil || strings.TrimSpace(f.ID) == "" {
			continue
		}
		if f.Children == nil {
			f.Children = []project.ChildRef{}
		}
		c.Folders[f.ID] = f
	}
	for _, p := range doc.Projects {
		if p == nil || strings.TrimSpace(p.ID) == "" {
			continue
		}
		p.SyncSnapshot()
		c.Projects[p.ID] = p
	}
	for _, j := range doc.Jobs {
		if j == nil || j.ID <= 0 || strings.TrimSpace(j.ProjectID) == "" {
			continue
		}
		j.MaxAttempts = job.ClampAttempts(j.MaxAttempts)
		j.Lease = job.ClampLease(j.Lease)
		c.Jobs[j.ID] = j
	}
	c.RootChildren = doc.RootChildren

	repairTree(c)
	reconcileCounters(c, doc)
	c.RestorePending(doc.PendingQueue)
	c.RebuildEvents()
	return c, nil
}

// repairTree restores the single-owner forest invariant: stale refs are
// dropped, duplicates removed, dangling parents cleared, unreferenced
// entities reattached, and cycles broken by reparenting to root.
func repairTree(c *state.Container) {
	exists := func(ref project.ChildRef) bool {
		switch ref.Kind {
		case project.ChildFolder:
			_, ok := c.Folders[ref.ID]
			return ok
		case project.ChildProject:
			_, ok := c.Projects[ref.ID]
			return ok
		}
		return false
	}

	seen := map[project.ChildRef]bool{}
	prune := func(list []project.ChildRef) []project.ChildRef {
		out := list[:0]
		for _, ref := range list {
			if !exists(ref) || seen[ref] {
				continue
			}
			seen[ref] = true
			out = append(out, ref)
		}
		return out
	}
	c.RootChildren = prune(c.RootChildren)
	for _, id := range sortedFolderIDs(c) {
		f := c.Folders[id]
		f.Children = prune(f.Children)
	}

	// Reattach entities no children list references: to their recorded
	// parent when it still exists, otherwise to root.
	reattach := func(ref project.ChildRef, parentID string) {
		if parentID != "" {
			if parent, ok := c.Folders[parentID]; ok {
				parent.Children = append(parent.Children, ref)
				seen[ref] = true
				return
			}
		}
		setParent(c, ref, "")
		c.RootChildren = append(c.RootChildren, ref)
		seen[ref] = true
	}
	for _, id := range sortedFolderIDs(c) {
		ref := project.ChildRef{Kind: project.ChildFolder, ID: id}
		if !seen[ref] {
			reattach(ref, c.Folders[id].ParentFolderID)
		}
	}
	for _, id := range sortedProjectIDs(c) {
		ref := project.ChildRef{Kind: project.ChildProject, ID: id}
		if !seen[ref] {
			reattach(ref, c.Projects[id].ParentFolderID)
		}
	}

	// Break ownership cycles: anything still unreachable from root gets
	// detached and reparented to root.
	reachable := map[project.ChildRef]bool{}
	var walk func(refs []project.ChildRef)
	walk = func(refs []project.ChildRef) {
		for _, ref := range refs {
			if reachable[ref] {
				continue
			}
			reachable[ref] = true
			if ref.Kind == project.ChildFolder {
				walk(c.Folders[ref.ID].Children)
			}
		}
	}
	walk(c.RootChildren)
	for _, id := range sortedFolderIDs(c) {
		ref := project.ChildRef{Kind: project.ChildFolder, ID: id}
		if !reachable[ref] {
			detach(c, ref)
			setParent(c, ref, "")
			c.RootChildren = append(c.RootChildren, ref)
			walk([]project.ChildRef{ref})
		}
	}

	// Ownership lists are now authoritative; realign parent pointers.
	for _, ref := range c.RootChildren {
		setParent(c, ref, "")
	}
	for _, id := range sortedFolderIDs(c) {
		for _, ref := range c.Folders[id].Children {
			setParent(c, ref, id)
		}
	}
}

func detach(c *state.Container, ref project.ChildRef) {
	for _, f := range c.Folders {
		for i, r := range f.Children {
			if r == ref {
				f.Children = append(f.Children[:i], f.Children[i+1:]...)
				return
			}
		}
	}
	for i, r := range c.RootChildren {
		if r == ref {
			c.RootChildren = append(c.RootChildren[:i], c.RootChildren[i+1:]...)
			return
		}
	}
}

func setParent(c *state.Container, ref project.ChildRef, parentID string) {
	switch ref.Kind {
	case project.ChildFolder:
		c.Folders[ref.ID].ParentFolderID = parentID
	case project.ChildProject:
		c.Projects[ref.ID].ParentFolderID = parentID
	}
}

// reconcileCounters lifts each counter to max(stored, maxObserved+1) so
// restoring an older document never reissues an id already present.
func reconcileCounters(c *state.Container, doc Document) {
	nextJobID := doc.Counters.NextJobID
	for id := range c.Jobs {
		if id+1 > nextJobID {
			nextJobID = id + 1
		}
	}
	nextEventSeq := doc.Counters.NextEventSeq
	for _, evs := range doc.Events {
		for _, ev := range evs {
			if ev.Seq+1 > nextEventSeq {
				nextEventSeq = ev.Seq + 1
			}
		}
	}
	nonce := doc.Counters.EntityNonce
	for id := range c.Folders {
		if n, ok := mintedNonce(id, "fold-"); ok && n > nonce {
			nonce = n
		}
	}
	for id := range c.Projects {
		if n, ok := mintedNonce(id, "proj-"); ok && n > nonce {
			nonce = n
		}
	}
	c.RestoreCounters(nextJobID, nextEventSeq, nonce)
}

func mintedNonce(id, prefix string) (int64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[len(prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func sortedFolderIDs(c *state.Container) []string {
	ids := make([]string, 0, len(c.Folders))
	for id := range c.Folders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedProjectIDs(c *state.Container) []string {
	ids := make([]string, 0, len(c.Projects))
	for id := range c.Projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
