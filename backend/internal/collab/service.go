// Package collab coordinates editing of shared documents. Every change to a
// document, whether an operation, a lock transition or a presence update,
// runs inside that document's critical section, so documents proceed in
// parallel while the edits of one document are strictly ordered.
//
// The edit lock is the concurrency control: a submit against a document
// held by someone else is rejected with LOCK_DENIED, and a submit against a
// free document takes the lock for its author. Operations that name the
// sequence number they were based on are still transformed against what
// other authors logged after it, with the logged history winning ties.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/oplog"
	"sharednote/backend/internal/ot"
	"sharednote/backend/internal/presence"
)

// Document is the materialized state of a document: the fold of its log up
// to LastSequence.
type Document struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	LastSequence uint64    `json:"lastSequence"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastEditorID uint64    `json:"lastEditorId,omitempty"`
}

// 快照存储接口，实现在 store 中
type DocumentStore interface {
	// LoadDocument reports ok=false when no snapshot exists yet.
	LoadDocument(ctx context.Context, docID string) (doc Document, ok bool, err error)
	// SaveDocument must ignore a snapshot older than the stored one.
	SaveDocument(ctx context.Context, doc Document) error
}

type LockStore interface {
	SaveLock(ctx context.Context, l lock.EditLock) error
	LoadLocks(ctx context.Context) ([]lock.EditLock, error)
}

// PresenceMirror publishes presence to other instances, e.g. a Redis room.
type PresenceMirror interface {
	AddMember(ctx context.Context, docID string, userID uint64, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, userID uint64) error
}

type Options struct {
	Locks     *lock.Manager
	Presence  *presence.Tracker
	Documents DocumentStore
	LockStore LockStore
	Mirror    PresenceMirror
	// MirrorTTL is the lifetime of a mirrored presence entry; heartbeats renew it.
	MirrorTTL time.Duration
	Notifier  Notifier
	// ReleaseOnDisconnect lets the sweep free a lock as soon as its editor is
	// marked disconnected instead of waiting for the inactivity timeout.
	ReleaseOnDisconnect bool
	Now                 func() time.Time
}

type docState struct {
	mu         sync.Mutex
	loaded     bool
	// evicted is set by the sweep once the state left s.docs; holders of a
	// stale pointer must look the document up again.
	evicted    bool
	buf        Buffer
	seq        uint64
	updatedAt  time.Time
	lastEditor uint64
}

type Service struct {
	log       oplog.Log
	locks     *lock.Manager
	presence  *presence.Tracker
	documents DocumentStore
	lockStore LockStore
	mirror    PresenceMirror
	mirrorTTL time.Duration
	notifier  Notifier

	releaseOnDisconnect bool
	now                 func() time.Time

	mu   sync.RWMutex
	docs map[string]*docState
}

func NewService(l oplog.Log, opt Options) *Service {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Locks == nil {
		opt.Locks = lock.NewManager(lock.Options{Now: opt.Now})
	}
	if opt.Presence == nil {
		opt.Presence = presence.NewTracker(presence.Options{Now: opt.Now})
	}
	if opt.MirrorTTL <= 0 {
		opt.MirrorTTL = presence.DefaultHeartbeatWindow
	}
	return &Service{
		log:                 l,
		locks:               opt.Locks,
		presence:            opt.Presence,
		documents:           opt.Documents,
		lockStore:           opt.LockStore,
		mirror:              opt.Mirror,
		mirrorTTL:           opt.MirrorTTL,
		notifier:            opt.Notifier,
		releaseOnDisconnect: opt.ReleaseOnDisconnect,
		now:                 opt.Now,
		docs:                make(map[string]*docState),
	}
}

// SubmitRequest carries one raw client operation. BaseSequence, when set, is
// the last sequence number the client had applied before producing it.
type SubmitRequest struct {
	DocumentID   string
	UserID       uint64
	Operation    ot.Operation
	BaseSequence *uint64
}

type SubmitResult struct {
	Operation ot.Operation
	Content   string
}

// BatchRequest carries sequential operations from one client: each applies
// to the content left by the previous one.
type BatchRequest struct {
	DocumentID   string
	UserID       uint64
	Operations   []ot.Operation
	BaseSequence *uint64
}

type BatchResult struct {
	Operations []ot.Operation
	Content    string
}

// 获取或创建指定文档的状态
func (s *Service) getOrCreateDoc(docID string) *docState {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds == nil {
		ds = &docState{}
		s.docs[docID] = ds
	}
	return ds
}

// lockDoc returns the state of docID with its mutex held.
func (s *Service) lockDoc(docID string) *docState {
	for {
		ds := s.getOrCreateDoc(docID)
		ds.mu.Lock()
		if !ds.evicted {
			return ds
		}
		ds.mu.Unlock()
	}
}

// evict drops ds from the cache. ds.mu must be held.
func (s *Service) evict(docID string, ds *docState) {
	ds.evicted = true
	s.mu.Lock()
	if s.docs[docID] == ds {
		delete(s.docs, docID)
	}
	s.mu.Unlock()
}

// SubmitOperation checks the lock, transforms, logs and applies a single
// operation and returns it as logged together with the new content.
func (s *Service) SubmitOperation(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	logged, content, err := s.submit(ctx, req.DocumentID, req.UserID, []ot.Operation{req.Operation}, req.BaseSequence)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Operation: logged[0], Content: content}, nil
}

// SubmitOperations is SubmitOperation for a batch. Consecutive operations
// that compose are merged before they are logged.
func (s *Service) SubmitOperations(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if len(req.Operations) == 0 {
		return BatchResult{}, fmt.Errorf("%w: empty batch", ErrInvalidOperation)
	}
	logged, content, err := s.submit(ctx, req.DocumentID, req.UserID, req.Operations, req.BaseSequence)
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Operations: logged, Content: content}, nil
}

func (s *Service) submit(ctx context.Context, docID string, userID uint64, raw []ot.Operation, base *uint64) ([]ot.Operation, string, error) {
	ds := s.lockDoc(docID)

	if holder, ok := s.locks.Check(docID, userID); !ok {
		ds.mu.Unlock()
		return nil, "", &LockDeniedError{DocumentID: docID, CurrentEditorID: holder}
	}

	ops := make([]ot.Operation, len(raw))
	for i, op := range raw {
		if err := op.Validate(); err != nil {
			ds.mu.Unlock()
			return nil, "", err
		}
		ops[i] = ot.Operation{
			DocumentID: docID,
			AuthorID:   userID,
			Type:       op.Type,
			Position:   op.Position,
			Content:    op.Content,
			Length:     op.Length,
		}
	}

	if err := s.load(ctx, docID, ds); err != nil {
		ds.mu.Unlock()
		return nil, "", err
	}

	if base != nil {
		transformed, err := s.transformIncoming(ctx, docID, userID, ds, ops, *base)
		if err != nil {
			ds.mu.Unlock()
			return nil, "", err
		}
		ops = transformed
	}
	if len(ops) > 1 {
		ops = compact(ds.buf.String(), ops)
	}

	if res := s.locks.Request(docID, userID); res.Acquired {
		s.persistLock(ctx, res.Lock)
		s.publish(ctx, Event{Type: EventLockAcquired, DocumentID: docID, UserID: userID, Lock: &res.Lock})
	}

	logged := make([]ot.Operation, 0, len(ops))
	var appendErr error
	for _, op := range ops {
		op.CreatedAt = s.now()
		entry, err := s.log.Append(ctx, docID, op)
		if err != nil {
			appendErr = fmt.Errorf("append operation to %s: %w", docID, err)
			break
		}
		ds.buf.Apply(entry)
		ds.seq = entry.SequenceNumber
		ds.updatedAt = entry.CreatedAt
		ds.lastEditor = userID
		logged = append(logged, entry)
		s.publish(ctx, Event{
			Type:           EventOperation,
			DocumentID:     docID,
			Operation:      &entry,
			UpdatedContent: ds.buf.String(),
			AuthorID:       userID,
		})
	}
	if len(logged) > 0 {
		_ = s.locks.Heartbeat(docID, userID)
	}
	doc := s.document(docID, ds)
	ds.mu.Unlock()

	if len(logged) > 0 {
		s.saveDocument(ctx, doc)
	}
	if appendErr != nil {
		log.Printf("submit failed doc=%s user=%d logged=%d err=%v", docID, userID, len(logged), appendErr)
		return nil, "", appendErr
	}
	return logged, doc.Content, nil
}

// transformIncoming rebases ops, generated against sequence base, over the
// operations other authors logged since. The author's own later operations
// are already reflected in what the client sent, as long as they were logged
// before any foreign one. Once a foreign operation precedes one of the
// author's, the log only holds the rebased form of the author's operation,
// not the one the client built on, and the client has to catch up first.
func (s *Service) transformIncoming(ctx context.Context, docID string, userID uint64, ds *docState, ops []ot.Operation, base uint64) ([]ot.Operation, error) {
	if base > ds.seq {
		return nil, fmt.Errorf("%w: base sequence %d is ahead of document %s at %d", ErrStaleReference, base, docID, ds.seq)
	}
	if base == ds.seq {
		return ops, nil
	}
	history, err := s.log.ListSince(ctx, docID, base, 0)
	if err != nil {
		return nil, fmt.Errorf("list operations of %s: %w", docID, err)
	}
	foreign := history[:0:0]
	for _, op := range history {
		if op.AuthorID != userID {
			foreign = append(foreign, op)
			continue
		}
		if len(foreign) > 0 {
			return nil, fmt.Errorf("%w: operation %d of user %d was rebased over other authors after base sequence %d of document %s",
				ErrStaleReference, op.SequenceNumber, userID, base, docID)
		}
	}
	if len(foreign) == 0 {
		return ops, nil
	}
	// 未入日志的操作对任何已记录操作都没有优先级，所以每一对的结果相同
	out, _ := ot.TransformOperations(ops, foreign, ot.HasPriority(ops[0], foreign[0]))
	return out, nil
}

// compact brings ops into range of the content they apply to and merges the
// ones that compose.
func compact(content string, ops []ot.Operation) []ot.Operation {
	normalized := make([]ot.Operation, 0, len(ops))
	for _, op := range ops {
		n := ot.Normalize(content, op)
		content = ot.Apply(content, n)
		if n.IsNoop() {
			continue
		}
		normalized = append(normalized, n)
	}
	if len(normalized) == 0 {
		// keep one entry so the batch still leaves a trace in the log
		return ops[:1]
	}
	return ot.Compact(normalized)
}

// load materializes the document on first use from its snapshot and the log,
// and afterwards brings the cache up to date with anything logged elsewhere.
func (s *Service) load(ctx context.Context, docID string, ds *docState) error {
	if !ds.loaded {
		base, after := "", uint64(0)
		if s.documents != nil {
			doc, ok, err := s.documents.LoadDocument(ctx, docID)
			if err != nil {
				return fmt.Errorf("load document %s: %w", docID, err)
			}
			if ok {
				base, after = doc.Content, doc.LastSequence
				ds.updatedAt, ds.lastEditor = doc.UpdatedAt, doc.LastEditorID
			}
		}
		ds.buf = NewPieceTable(base)
		ds.seq = after
		ds.loaded = true
	}

	ops, err := s.log.ListSince(ctx, docID, ds.seq, 0)
	if err != nil {
		return fmt.Errorf("list operations of %s: %w", docID, err)
	}
	for _, op := range ops {
		ds.buf.Apply(op)
		ds.seq = op.SequenceNumber
		ds.updatedAt = op.CreatedAt
		ds.lastEditor = op.AuthorID
	}
	return nil
}

func (s *Service) document(docID string, ds *docState) Document {
	return Document{
		ID:           docID,
		Content:      ds.buf.String(),
		LastSequence: ds.seq,
		UpdatedAt:    ds.updatedAt,
		LastEditorID: ds.lastEditor,
	}
}

// GetCurrentContent returns the materialized document. Unknown documents
// are created lazily and read as empty.
func (s *Service) GetCurrentContent(ctx context.Context, docID string) (Document, error) {
	ds := s.lockDoc(docID)
	defer ds.mu.Unlock()

	if err := s.load(ctx, docID, ds); err != nil {
		return Document{}, err
	}
	return s.document(docID, ds), nil
}

// OperationsSince returns logged operations after afterSeq so a client can
// catch up. limit <= 0 means all of them.
func (s *Service) OperationsSince(ctx context.Context, docID string, afterSeq uint64, limit int) ([]ot.Operation, error) {
	ops, err := s.log.ListSince(ctx, docID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations of %s: %w", docID, err)
	}
	return ops, nil
}

func (s *Service) GetOperation(ctx context.Context, docID string, seq uint64) (ot.Operation, error) {
	op, err := s.log.Get(ctx, docID, seq)
	if errors.Is(err, oplog.ErrNotFound) {
		return ot.Operation{}, fmt.Errorf("%w: operation %d of document %s", ErrStaleReference, seq, docID)
	}
	return op, err
}

// RequestLock grants a free lock, refreshes the holder's, or records the
// request of anyone else for the holder to hand off.
func (s *Service) RequestLock(ctx context.Context, docID string, userID uint64) lock.RequestResult {
	ds := s.lockDoc(docID)
	defer ds.mu.Unlock()

	res := s.locks.Request(docID, userID)
	switch {
	case res.Acquired:
		s.persistLock(ctx, res.Lock)
		s.publish(ctx, Event{Type: EventLockAcquired, DocumentID: docID, UserID: userID, Lock: &res.Lock})
	case !res.Granted:
		s.persistLock(ctx, res.Lock)
		s.publish(ctx, Event{Type: EventLockRequested, DocumentID: docID, UserID: userID, Lock: &res.Lock})
	}
	return res
}

func (s *Service) ReleaseLock(ctx context.Context, docID string, userID uint64) bool {
	ds := s.lockDoc(docID)
	defer ds.mu.Unlock()

	if !s.locks.Release(docID, userID) {
		return false
	}
	l := s.locks.Status(docID)
	s.persistLock(ctx, l)
	s.publish(ctx, Event{Type: EventLockReleased, DocumentID: docID, UserID: userID, Lock: &l})
	return true
}

// HandoffLock passes the lock from holderID to the pending requester.
func (s *Service) HandoffLock(ctx context.Context, docID string, holderID uint64) (lock.EditLock, error) {
	ds := s.lockDoc(docID)
	defer ds.mu.Unlock()

	l, err := s.locks.Handoff(docID, holderID)
	if errors.Is(err, ErrExpiredLockRequest) {
		s.persistLock(ctx, s.locks.Status(docID))
	}
	if err != nil {
		return lock.EditLock{}, err
	}
	s.persistLock(ctx, l)
	s.publish(ctx, Event{Type: EventLockHandoff, DocumentID: docID, UserID: l.CurrentEditorID, Lock: &l})
	return l, nil
}

func (s *Service) LockStatus(docID string) lock.EditLock {
	return s.locks.Status(docID)
}

// Connect registers a user's connection to a document and announces the
// updated member list.
func (s *Service) Connect(ctx context.Context, docID string, userID uint64, username string) presence.Presence {
	ds := s.lockDoc(docID)
	p := s.presence.Connect(docID, userID, username)
	s.publishPresence(ctx, docID)
	ds.mu.Unlock()

	s.mirrorAdd(ctx, docID, userID, username)
	return p
}

// Heartbeat keeps the user's presence alive and, when the user holds the
// lock, its activity too.
func (s *Service) Heartbeat(ctx context.Context, docID string, userID uint64, username string) presence.Presence {
	ds := s.lockDoc(docID)
	before, known := s.presence.Get(docID, userID)
	p := s.presence.Ping(docID, userID, username)
	_ = s.locks.Heartbeat(docID, userID)
	if !known || !before.Connected {
		s.publishPresence(ctx, docID)
	}
	ds.mu.Unlock()

	s.mirrorAdd(ctx, docID, userID, p.Username)
	return p
}

func (s *Service) Disconnect(ctx context.Context, docID string, userID uint64) bool {
	ds := s.lockDoc(docID)
	if !s.presence.Disconnect(docID, userID) {
		ds.mu.Unlock()
		return false
	}
	s.publishPresence(ctx, docID)
	ds.mu.Unlock()

	s.mirrorRemove(ctx, docID, userID)
	return true
}

func (s *Service) Members(docID string) []presence.Presence {
	return s.presence.Members(docID)
}

// Restore loads persisted lock records. It is meant to run once at startup,
// before any request is served.
func (s *Service) Restore(ctx context.Context) error {
	if s.lockStore == nil {
		return nil
	}
	locks, err := s.lockStore.LoadLocks(ctx)
	if err != nil {
		return fmt.Errorf("load locks: %w", err)
	}
	s.locks.Restore(locks)
	return nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = s.now()
	}
	if err := s.notifier.Publish(ctx, evt); err != nil {
		log.Printf("publish event type=%s doc=%s err=%v", evt.Type, evt.DocumentID, err)
	}
}

func (s *Service) publishPresence(ctx context.Context, docID string) {
	s.publish(ctx, Event{Type: EventPresence, DocumentID: docID, Members: s.presence.Members(docID)})
}

func (s *Service) persistLock(ctx context.Context, l lock.EditLock) {
	if s.lockStore == nil {
		return
	}
	if err := s.lockStore.SaveLock(ctx, l); err != nil {
		log.Printf("save lock doc=%s err=%v", l.DocumentID, err)
	}
}

func (s *Service) saveDocument(ctx context.Context, doc Document) {
	if s.documents == nil {
		return
	}
	if err := s.documents.SaveDocument(ctx, doc); err != nil {
		log.Printf("save document snapshot doc=%s seq=%d err=%v", doc.ID, doc.LastSequence, err)
	}
}

func (s *Service) mirrorAdd(ctx context.Context, docID string, userID uint64, username string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.AddMember(ctx, docID, userID, username, s.mirrorTTL); err != nil {
		log.Printf("add member error doc=%s user=%d: %v", docID, userID, err)
	}
}

func (s *Service) mirrorRemove(ctx context.Context, docID string, userID uint64) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.RemoveMember(ctx, docID, userID); err != nil {
		log.Printf("remove member error doc=%s user=%d: %v", docID, userID, err)
	}
}
