// Package lock implements the per-document edit lock: at most one user, the
// current editor, may change a document at a time.
//
// A lock is FREE or HELD by one editor. While HELD, a second user may leave
// a time-boxed request to take over; the request never transfers the lock by
// itself. Held locks whose editor has been idle too long, and requests past
// their deadline, are cleared by Expire, which the owner calls from its
// periodic sweep.
package lock

import (
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	DefaultInactivity = 2 * time.Minute
	DefaultRequestTTL = 30 * time.Second
)

var (
	ErrNotHolder          = errors.New("NOT_LOCK_HOLDER")
	ErrNoPendingRequest   = errors.New("NO_PENDING_REQUEST")
	ErrExpiredLockRequest = errors.New("EXPIRED_LOCK_REQUEST")
)

// EditLock is the lock record of one document. A zero CurrentEditorID means
// the lock is free; a zero RequestedByUserID means no request is pending.
type EditLock struct {
	DocumentID        string    `json:"documentId"`
	CurrentEditorID   uint64    `json:"currentEditorId,omitempty"`
	LockAcquiredAt    time.Time `json:"lockAcquiredAt,omitempty"`
	LastActivityAt    time.Time `json:"lastActivityAt,omitempty"`
	RequestedByUserID uint64    `json:"requestedByUserId,omitempty"`
	RequestExpiresAt  time.Time `json:"requestExpiresAt,omitempty"`
}

func (l EditLock) IsLocked() bool { return l.CurrentEditorID != 0 }

func (l EditLock) HasRequest() bool { return l.RequestedByUserID != 0 }

type RequestResult struct {
	Granted bool
	// Acquired is set when the call moved the lock from FREE to HELD.
	Acquired        bool
	CurrentEditorID uint64
	Lock            EditLock
}

type ExpireResult struct {
	Freed             bool
	FormerEditorID    uint64
	RequestCleared    bool
	FormerRequesterID uint64
}

type Options struct {
	Inactivity time.Duration
	RequestTTL time.Duration
	Now        func() time.Time
}

type Manager struct {
	mu         sync.Mutex
	locks      map[string]*EditLock
	inactivity time.Duration
	requestTTL time.Duration
	now        func() time.Time
}

func NewManager(opt Options) *Manager {
	if opt.Inactivity <= 0 {
		opt.Inactivity = DefaultInactivity
	}
	if opt.RequestTTL <= 0 {
		opt.RequestTTL = DefaultRequestTTL
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Manager{
		locks:      make(map[string]*EditLock),
		inactivity: opt.Inactivity,
		requestTTL: opt.RequestTTL,
		now:        opt.Now,
	}
}

func (m *Manager) get(docID string) *EditLock {
	l := m.locks[docID]
	if l == nil {
		l = &EditLock{DocumentID: docID}
		m.locks[docID] = l
	}
	return l
}

// Request grants the lock when it is free and refreshes it when userID
// already holds it. Otherwise the request is recorded for RequestTTL and
// the current editor is returned.
func (m *Manager) Request(docID string, userID uint64) RequestResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	l := m.get(docID)
	switch l.CurrentEditorID {
	case 0:
		l.CurrentEditorID = userID
		l.LockAcquiredAt = now
		l.LastActivityAt = now
		if l.RequestedByUserID == userID {
			l.RequestedByUserID = 0
			l.RequestExpiresAt = time.Time{}
		}
		return RequestResult{Granted: true, Acquired: true, CurrentEditorID: userID, Lock: *l}
	case userID:
		l.LastActivityAt = now
		return RequestResult{Granted: true, CurrentEditorID: userID, Lock: *l}
	default:
		l.RequestedByUserID = userID
		l.RequestExpiresAt = now.Add(m.requestTTL)
		return RequestResult{Granted: false, CurrentEditorID: l.CurrentEditorID, Lock: *l}
	}
}

// Check reports whether userID may edit docID right now, that is whether the
// lock is free or held by userID, along with the current editor.
func (m *Manager) Check(docID string, userID uint64) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[docID]
	if l == nil || l.CurrentEditorID == 0 {
		return 0, true
	}
	return l.CurrentEditorID, l.CurrentEditorID == userID
}

// Release frees the lock. Only the current editor may release it.
func (m *Manager) Release(docID string, userID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[docID]
	if l == nil || l.CurrentEditorID == 0 || l.CurrentEditorID != userID {
		return false
	}
	free(l)
	return true
}

// Heartbeat refreshes the editor's activity so Expire leaves the lock alone.
func (m *Manager) Heartbeat(docID string, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[docID]
	if l == nil || l.CurrentEditorID == 0 || l.CurrentEditorID != userID {
		return ErrNotHolder
	}
	l.LastActivityAt = m.now()
	return nil
}

// Handoff passes a held lock from its editor to the pending requester. The
// request must not have expired yet.
func (m *Manager) Handoff(docID string, holderID uint64) (EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[docID]
	if l == nil || l.CurrentEditorID == 0 || l.CurrentEditorID != holderID {
		return EditLock{}, ErrNotHolder
	}
	if l.RequestedByUserID == 0 {
		return EditLock{}, ErrNoPendingRequest
	}
	now := m.now()
	if now.After(l.RequestExpiresAt) {
		l.RequestedByUserID = 0
		l.RequestExpiresAt = time.Time{}
		return EditLock{}, ErrExpiredLockRequest
	}

	l.CurrentEditorID = l.RequestedByUserID
	l.LockAcquiredAt = now
	l.LastActivityAt = now
	l.RequestedByUserID = 0
	l.RequestExpiresAt = time.Time{}
	return *l, nil
}

// Status returns a copy of the lock record. Unknown documents are free.
func (m *Manager) Status(docID string) EditLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l := m.locks[docID]; l != nil {
		return *l
	}
	return EditLock{DocumentID: docID}
}

// Expire frees the lock when its editor has been idle longer than the
// inactivity threshold and drops a request past its deadline. Calling it
// again with nothing eligible is a no-op.
func (m *Manager) Expire(docID string) ExpireResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res ExpireResult
	l := m.locks[docID]
	if l == nil {
		return res
	}
	now := m.now()
	if l.CurrentEditorID != 0 && now.Sub(l.LastActivityAt) > m.inactivity {
		res.Freed = true
		res.FormerEditorID = l.CurrentEditorID
		free(l)
	}
	if l.RequestedByUserID != 0 && now.After(l.RequestExpiresAt) {
		res.RequestCleared = true
		res.FormerRequesterID = l.RequestedByUserID
		l.RequestedByUserID = 0
		l.RequestExpiresAt = time.Time{}
	}
	if !l.IsLocked() && !l.HasRequest() {
		delete(m.locks, docID)
	}
	return res
}

// ForceRelease frees the lock regardless of who holds it and returns the
// former editor.
func (m *Manager) ForceRelease(docID string) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.locks[docID]
	if l == nil || l.CurrentEditorID == 0 {
		return 0, false
	}
	former := l.CurrentEditorID
	free(l)
	return former, true
}

// Restore loads persisted lock records, replacing any in memory.
func (m *Manager) Restore(locks []EditLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range locks {
		l := l
		m.locks[l.DocumentID] = &l
	}
}

// Documents returns the ids of every document with a lock record.
func (m *Manager) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.locks))
	for id := range m.locks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func free(l *EditLock) {
	l.CurrentEditorID = 0
	l.LockAcquiredAt = time.Time{}
	l.LastActivityAt = time.Time{}
}
