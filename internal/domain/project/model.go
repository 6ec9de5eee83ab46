package project

import "time"

// NodeKind discriminates geometry hierarchy nodes.
type NodeKind string

const (
	NodeBone NodeKind = "bone"
	NodeCube NodeKind = "cube"
)

// Node is one element of a project's geometry hierarchy.
type Node struct {
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name"`
	Children []Node   `json:"children,omitempty"`
}

// Stats holds derived hierarchy counts. Never authoritative on its own;
// recomputed via SyncSnapshot after every hierarchy-affecting change.
type Stats struct {
	Bones int `json:"bones"`
	Cubes int `json:"cubes"`
}

// Texture is a project texture reference.
type Texture struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// ActiveJobRef points at the most recent job touching the project.
// Informational only; the job record is authoritative.
type ActiveJobRef struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// Lock is an exclusive editor lock on a project.
type Lock struct {
	Owner       string    `json:"owner"`
	Token       string    `json:"token"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	HeartbeatAt time.Time `json:"heartbeatAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the lock's expiry has passed.
func (l *Lock) Expired(now time.Time) bool {
	return l == nil || now.After(l.ExpiresAt)
}

// Project is a versioned modeling project. Revision moves only on job
// completion or failure.
type Project struct {
	ID             string        `json:"projectId"`
	Name           string        `json:"name"`
	ParentFolderID string        `json:"parentFolderId,omitempty"`
	Revision       int64         `json:"revision"`
	HasGeometry    bool          `json:"hasGeometry"`
	Stats          Stats         `json:"stats"`
	Hierarchy      []Node        `json:"hierarchy,omitempty"`
	Textures       []Texture     `json:"textures,omitempty"`
	ActiveJob      *ActiveJobRef `json:"activeJob,omitempty"`
	Lock           *Lock         `json:"projectLock,omitempty"`
	FocusAnchor    string        `json:"focusAnchor,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ChildKind discriminates folder children.
type ChildKind string

const (
	ChildFolder  ChildKind = "folder"
	ChildProject ChildKind = "project"
)

// ChildRef is one ordered entry in a folder's (or the root's) children.
type ChildRef struct {
	Kind ChildKind `json:"kind"`
	ID   string    `json:"id"`
}

// Folder groups projects and other folders. Every folder and project id
// appears in exactly one children list (or the root list).
type Folder struct {
	ID             string     `json:"folderId"`
	Name           string     `json:"name"`
	ParentFolderID string     `json:"parentFolderId,omitempty"`
	Children       []ChildRef `json:"children"`
}

// SyncSnapshot recomputes the project's derived fields from its
// hierarchy. Must be called after any hierarchy change.
func (p *Project) SyncSnapshot() {
	bones, cubes := countNodes(p.Hierarchy)
	p.Stats = Stats{Bones: bones, Cubes: cubes}
	p.HasGeometry = bones > 0 || cubes > 0
}

func countNodes(nodes []Node) (bones, cubes int) {
	for _, n := range nodes {
		switch n.Kind {
		case NodeBone:
			bones++
		case NodeCube:
			cubes++
		}
		b, c := countNodes(n.Children)
		bones += b
		cubes += c
	}
	return bones, cubes
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Hierarchy = cloneNodes(p.Hierarchy)
	if p.Textures != nil {
		cp.Textures = append([]Texture(nil), p.Textures...)
	}
	if p.ActiveJob != nil {
		ref := *p.ActiveJob
		cp.ActiveJob = &ref
	}
	if p.Lock != nil {
		lock := *p.Lock
		cp.Lock = &lock
	}
	return &cp
}

// Clone returns a deep copy of the folder.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Children = append([]ChildRef(nil), f.Children...)
	return &cp
}

func cloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = Node{Kind: n.Kind, Name: n.Name, Children: cloneNodes(n.Children)}
	}
	return out
}

// DecodeHierarchy converts a schema-validated hierarchy value (as found
// in a gltf.convert result) into nodes. Entries that are not objects
// are skipped; the result schema has already rejected them upstream.
func DecodeHierarchy(v any) []Node {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Node, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		n := Node{}
		if kind, ok := m["kind"].(string); ok {
			n.Kind = NodeKind(kind)
		}
		if name, ok := m["name"].(string); ok {
			n.Name = name
		}
		n.Children = DecodeHierarchy(m["children"])
		out = append(out, n)
	}
	return out
}
