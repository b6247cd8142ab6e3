package collab

import (
	"context"
	"log"
	"sort"
	"time"

	"sharednote/backend/internal/presence"
)

const DefaultSweepInterval = 30 * time.Second

type SweepResult struct {
	Documents       int
	LocksExpired    []string
	RequestsCleared int
	Disconnected    int
	Purged          int
	Evicted         int
}

func (r SweepResult) Changed() bool {
	return len(r.LocksExpired) > 0 || r.RequestsCleared > 0 || r.Disconnected > 0 || r.Purged > 0 || r.Evicted > 0
}

// Sweep runs one cleanup pass over every document with a lock or presence
// record: it marks silent users disconnected, drops long-gone presence,
// frees locks of idle editors and clears expired lock requests. Each
// document is swept inside its critical section. Cached documents left
// without a lock or presence record are dropped from memory; the next access
// rebuilds them from the snapshot and the log. Running it twice in a row
// changes nothing the second time.
func (s *Service) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	for _, docID := range s.sweepTargets() {
		if ctx.Err() != nil {
			break
		}
		s.sweepDocument(ctx, docID, &res)
		res.Documents++
	}
	return res
}

func (s *Service) sweepTargets() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, list := range [][]string{s.locks.Documents(), s.presence.Documents(), s.cachedDocuments()} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) cachedDocuments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) sweepDocument(ctx context.Context, docID string, res *SweepResult) {
	ds := s.lockDoc(docID)
	pr := s.expireDocument(ctx, docID, res)
	if l := s.locks.Status(docID); !l.IsLocked() && !l.HasRequest() && !s.presence.Has(docID) {
		if ds.loaded {
			res.Evicted++
		}
		s.evict(docID, ds)
	}
	ds.mu.Unlock()

	for _, userID := range pr.Disconnected {
		s.mirrorRemove(ctx, docID, userID)
	}
}

// expireDocument applies the presence and lock timeouts of docID inside its
// critical section.
func (s *Service) expireDocument(ctx context.Context, docID string, res *SweepResult) presence.SweepResult {
	pr := s.presence.Sweep(docID)
	res.Disconnected += len(pr.Disconnected)
	res.Purged += pr.Purged
	if len(pr.Disconnected) > 0 {
		s.publishPresence(ctx, docID)
	}

	exp := s.locks.Expire(docID)
	if !exp.Freed && s.releaseOnDisconnect {
		if l := s.locks.Status(docID); l.IsLocked() {
			if p, ok := s.presence.Get(docID, l.CurrentEditorID); ok && !p.Connected {
				exp.FormerEditorID, exp.Freed = s.locks.ForceRelease(docID)
			}
		}
	}
	if !exp.Freed && !exp.RequestCleared {
		return pr
	}

	l := s.locks.Status(docID)
	s.persistLock(ctx, l)
	if exp.RequestCleared {
		res.RequestsCleared++
	}
	if exp.Freed {
		res.LocksExpired = append(res.LocksExpired, docID)
		s.publish(ctx, Event{Type: EventLockExpired, DocumentID: docID, UserID: exp.FormerEditorID, Lock: &l})
	}
	return pr
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res := s.Sweep(ctx)
			if res.Changed() {
				log.Printf("sweep docs=%d locksExpired=%v requestsCleared=%d disconnected=%d purged=%d evicted=%d",
					res.Documents, res.LocksExpired, res.RequestsCleared, res.Disconnected, res.Purged, res.Evicted)
			}
		}
	}
}
