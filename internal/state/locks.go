package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/meshforge/pipeline/internal/domain/project"
)

// LockTTL is how long a project lock stays valid without a heartbeat.
const LockTTL = 60 * time.Second

// AcquireProjectLock grants an exclusive editor lock. An unexpired lock
// held by a different owner blocks acquisition; re-acquiring by the
// same owner refreshes the lock with a new token. Expiry is checked
// lazily here, not by a background timer.
func (c *Container) AcquireProjectLock(now time.Time, projectID, owner string) (*project.Lock, error) {
	p, ok := c.Projects[projectID]
	if !ok {
		return nil, project.ErrNotFound
	}
	if p.Lock != nil && !p.Lock.Expired(now) && p.Lock.Owner != owner {
		return nil, project.ErrLocked
	}
	lock := &project.Lock{
		Owner:       owner,
		Token:       uuid.NewString(),
		AcquiredAt:  now,
		HeartbeatAt: now,
		ExpiresAt:   now.Add(LockTTL),
	}
	p.Lock = lock
	cp := *lock
	return &cp, nil
}

// HeartbeatProjectLock extends the lock held under the given token.
func (c *Container) HeartbeatProjectLock(now time.Time, projectID, token string) error {
	p, ok := c.Projects[projectID]
	if !ok {
		return project.ErrNotFound
	}
	if p.Lock == nil || p.Lock.Token != token {
		return project.ErrLockTokenMismatch
	}
	p.Lock.HeartbeatAt = now
	p.Lock.ExpiresAt = now.Add(LockTTL)
	return nil
}

// ReleaseProjectLock clears the lock held under the given token.
func (c *Container) ReleaseProjectLock(projectID, token string) error {
	p, ok := c.Projects[projectID]
	if !ok {
		return project.ErrNotFound
	}
	if p.Lock == nil || p.Lock.Token != token {
		return project.ErrLockTokenMismatch
	}
	p.Lock = nil
	return nil
}

// SetFocusAnchor stores an opaque editor focus hint on the project.
func (c *Container) SetFocusAnchor(projectID, anchor string) error {
	p, ok := c.Projects[projectID]
	if !ok {
		return project.ErrNotFound
	}
	p.FocusAnchor = anchor
	return nil
}
