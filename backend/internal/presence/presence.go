// Package presence tracks which users are connected to which document and
// when they were last heard from.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHeartbeatWindow = 30 * time.Second
	DefaultRetention       = 24 * time.Hour
)

type Presence struct {
	DocumentID      string    `json:"documentId"`
	UserID          uint64    `json:"userId"`
	Username        string    `json:"username,omitempty"`
	ConnectionToken string    `json:"connectionToken"`
	Connected       bool      `json:"connected"`
	LastPingAt      time.Time `json:"lastPingAt"`
}

type SweepResult struct {
	Disconnected []uint64
	Purged       int
}

type Options struct {
	// HeartbeatWindow is how long a connected user may stay silent before
	// being marked disconnected.
	HeartbeatWindow time.Duration
	// Retention is how long a disconnected record is kept.
	Retention time.Duration
	Now       func() time.Time
}

type Tracker struct {
	mu        sync.RWMutex
	docs      map[string]map[uint64]*Presence
	window    time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewTracker(opt Options) *Tracker {
	if opt.HeartbeatWindow <= 0 {
		opt.HeartbeatWindow = DefaultHeartbeatWindow
	}
	if opt.Retention <= 0 {
		opt.Retention = DefaultRetention
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Tracker{
		docs:      make(map[string]map[uint64]*Presence),
		window:    opt.HeartbeatWindow,
		retention: opt.Retention,
		now:       opt.Now,
	}
}

// Connect registers a new connection of userID to docID and returns its
// record with a fresh connection token.
func (t *Tracker) Connect(docID string, userID uint64, username string) Presence {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &Presence{
		DocumentID:      docID,
		UserID:          userID,
		Username:        username,
		ConnectionToken: uuid.NewString(),
		Connected:       true,
		LastPingAt:      t.now(),
	}
	room := t.docs[docID]
	if room == nil {
		room = make(map[uint64]*Presence)
		t.docs[docID] = room
	}
	room[userID] = p
	return *p
}

// Ping records a heartbeat. A user without a record, or whose record was
// marked disconnected, is connected again.
func (t *Tracker) Ping(docID string, userID uint64, username string) Presence {
	t.mu.Lock()
	p := t.docs[docID][userID]
	if p == nil {
		t.mu.Unlock()
		return t.Connect(docID, userID, username)
	}
	defer t.mu.Unlock()

	p.Connected = true
	p.LastPingAt = t.now()
	if username != "" {
		p.Username = username
	}
	return *p
}

// Disconnect marks the user disconnected; the record is kept until Sweep
// purges it after the retention window.
func (t *Tracker) Disconnect(docID string, userID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.docs[docID][userID]
	if p == nil || !p.Connected {
		return false
	}
	p.Connected = false
	return true
}

// Has reports whether docID has any presence record, connected or not.
func (t *Tracker) Has(docID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs[docID]) > 0
}

func (t *Tracker) Get(docID string, userID uint64) (Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := t.docs[docID][userID]
	if p == nil {
		return Presence{}, false
	}
	return *p, true
}

// Members returns the connected users of docID ordered by user id.
func (t *Tracker) Members(docID string) []Presence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Presence, 0, len(t.docs[docID]))
	for _, p := range t.docs[docID] {
		if p.Connected {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sweep marks users of docID that missed the heartbeat window as
// disconnected and drops records that have been silent past retention.
func (t *Tracker) Sweep(docID string) SweepResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res SweepResult
	room := t.docs[docID]
	now := t.now()
	for id, p := range room {
		silent := now.Sub(p.LastPingAt)
		if p.Connected && silent > t.window {
			p.Connected = false
			res.Disconnected = append(res.Disconnected, id)
		}
		if !p.Connected && silent > t.retention {
			delete(room, id)
			res.Purged++
		}
	}
	if room != nil && len(room) == 0 {
		delete(t.docs, docID)
	}
	sort.Slice(res.Disconnected, func(i, j int) bool { return res.Disconnected[i] < res.Disconnected[j] })
	return res
}

// Documents returns every document with at least one presence record.
func (t *Tracker) Documents() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.docs))
	for id := range t.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
