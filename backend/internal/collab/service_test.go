package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/oplog"
	"sharednote/backend/internal/ot"
	"sharednote/backend/internal/ot/delta"
)

const (
	alice uint64 = 1
	bob   uint64 = 2
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memoryDocuments struct {
	mu   sync.Mutex
	docs map[string]Document
}

func (m *memoryDocuments) LoadDocument(_ context.Context, docID string) (Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	return d, ok, nil
}

func (m *memoryDocuments) SaveDocument(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string]Document)
	}
	if cur, ok := m.docs[doc.ID]; ok && cur.LastSequence >= doc.LastSequence {
		return nil
	}
	m.docs[doc.ID] = doc
	return nil
}

type memoryLocks struct {
	mu    sync.Mutex
	locks map[string]lock.EditLock
}

func (m *memoryLocks) SaveLock(_ context.Context, l lock.EditLock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]lock.EditLock)
	}
	m.locks[l.DocumentID] = l
	return nil
}

func (m *memoryLocks) LoadLocks(context.Context) ([]lock.EditLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]lock.EditLock, 0, len(m.locks))
	for _, l := range m.locks {
		out = append(out, l)
	}
	return out, nil
}

type fixture struct {
	svc    *Service
	log    *oplog.MemoryLog
	clock  *fakeClock
	events *recorder
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		log:    oplog.NewMemoryLog(),
		clock:  &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		events: &recorder{},
	}
	opt := Options{Notifier: f.events, Now: f.clock.Now}
	for _, m := range mutate {
		m(&opt)
	}
	f.svc = NewService(f.log, opt)
	return f
}

func (f *fixture) submit(t *testing.T, user uint64, op ot.Operation) SubmitResult {
	t.Helper()
	res, err := f.svc.SubmitOperation(context.Background(), SubmitRequest{DocumentID: "doc", UserID: user, Operation: op})
	require.NoError(t, err)
	return res
}

func seqPtr(v uint64) *uint64 { return &v }

func TestScenarioA_InsertThenLockDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.submit(t, alice, ot.NewInsert(0, "Hello"))
	assert.Equal(t, "Hello", res.Content)
	assert.Equal(t, uint64(1), res.Operation.SequenceNumber)
	assert.Equal(t, alice, res.Operation.AuthorID)
	assert.NotEmpty(t, res.Operation.ID)

	_, err := f.svc.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(0, "x")})
	require.ErrorIs(t, err, ErrLockDenied)
	var denied *LockDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, alice, denied.CurrentEditorID)

	doc, err := f.svc.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Content)
	assert.Equal(t, uint64(1), doc.LastSequence)
	assert.Equal(t, alice, doc.LastEditorID)
	assert.Equal(t, f.clock.Now(), doc.UpdatedAt)

	acquired := f.events.ofType(EventLockAcquired)
	require.Len(t, acquired, 1)
	assert.Equal(t, alice, acquired[0].UserID)

	ops := f.events.ofType(EventOperation)
	require.Len(t, ops, 1)
	assert.Equal(t, "Hello", ops[0].UpdatedContent)
	assert.Equal(t, alice, ops[0].AuthorID)
}

func TestSubmit_InvalidOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, op := range []ot.Operation{
		{Type: "REPLACE", Position: 0},
		ot.NewInsert(-1, "x"),
		ot.NewDelete(0, -2),
	} {
		_, err := f.svc.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: alice, Operation: op})
		assert.ErrorIs(t, err, ErrInvalidOperation, op.String())
	}

	assert.False(t, f.svc.LockStatus("doc").IsLocked(), "rejected operations must not take the lock")
	last, err := f.log.LastSequence(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestSubmit_LockCheckedBeforeValidation(t *testing.T) {
	f := newFixture(t)
	f.submit(t, alice, ot.NewInsert(0, "Hello"))

	_, err := f.svc.SubmitOperation(context.Background(), SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.Operation{Type: "BOGUS"},
	})
	assert.ErrorIs(t, err, ErrLockDenied)
}

func TestSubmit_OutOfRangeIsLoggedAndClamped(t *testing.T) {
	f := newFixture(t)
	f.submit(t, alice, ot.NewInsert(0, "abc"))

	res := f.submit(t, alice, ot.NewDelete(2, 40))
	assert.Equal(t, "ab", res.Content)
	assert.Equal(t, 40, res.Operation.Length, "the log keeps the operation as sent")

	res = f.submit(t, alice, ot.NewInsert(99, "!"))
	assert.Equal(t, "ab!", res.Content)
	assert.Equal(t, 99, res.Operation.Position)
}

func TestScenarioB_TransformAgainstConcurrentInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "Hello"))
	f.submit(t, alice, ot.NewInsert(5, " World"))
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	// bob deleted "Hello" while looking at sequence 1
	res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewDelete(0, 5), BaseSequence: seqPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Operation.SequenceNumber)
	assert.Equal(t, 0, res.Operation.Position)
	assert.Equal(t, 5, res.Operation.Length)
	assert.Equal(t, " World", res.Content)
}

func TestSubmit_ServerOperationWinsInsertTie(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "Hello"))
	f.submit(t, alice, ot.NewInsert(5, " World"))
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(5, "!"), BaseSequence: seqPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Operation.Position)
	assert.Equal(t, "Hello World!", res.Content)
}

func TestSubmit_OwnOperationsAreNotTransformed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "Hello"))
	// pipelined: produced locally after "Hello" but before the ack
	res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(0, "X"), BaseSequence: seqPtr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "XHello", res.Content)
}

func TestSubmit_OwnOperationAfterForeignNeedsCatchUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "abcdef"))
	f.submit(t, alice, ot.NewInsert(4, "X"))
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewDelete(0, 3), BaseSequence: seqPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "dXef", res.Content)

	// bob still sees "def" and wants Y between e and f
	_, err = f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(2, "Y"), BaseSequence: seqPtr(1),
	})
	assert.ErrorIs(t, err, ErrStaleReference)

	doc, err := f.svc.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "dXef", doc.Content)
	assert.Equal(t, uint64(3), doc.LastSequence)

	missed, err := f.svc.OperationsSince(ctx, "doc", 1, 0)
	require.NoError(t, err)
	require.Len(t, missed, 2)

	res, err = f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(3, "Y"), BaseSequence: seqPtr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "dXeYf", res.Content)
}

func TestSubmit_OwnThenForeignHistoryIsRebased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "abcdef"))
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	_, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(0, "Z"), BaseSequence: seqPtr(1),
	})
	require.NoError(t, err)
	require.True(t, f.svc.ReleaseLock(ctx, "doc", bob))

	_, err = f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(7, "!"), BaseSequence: seqPtr(2),
	})
	require.NoError(t, err)
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	// bob removes "a" from "Zabcdef" before seeing alice's "!"
	res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
		DocumentID: "doc", UserID: bob, Operation: ot.NewDelete(1, 1), BaseSequence: seqPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "Zbcdef!", res.Content)
}

func TestSubmit_CreatedAtFollowsClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Advance(time.Minute)
	res := f.submit(t, alice, ot.NewInsert(0, "Hello"))
	assert.Equal(t, f.clock.Now(), res.Operation.CreatedAt)

	doc, err := f.svc.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, res.Operation.CreatedAt, doc.UpdatedAt)

	f.clock.Advance(time.Hour)
	rebuilt, err := NewService(f.log, Options{Now: f.clock.Now}).GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, doc.UpdatedAt, rebuilt.UpdatedAt)
}

func TestSubmit_BaseAheadOfLogIsStale(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SubmitOperation(context.Background(), SubmitRequest{
		DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(0, "x"), BaseSequence: seqPtr(3),
	})
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestScenarioD_SameOffsetInsertsOrderBySequence(t *testing.T) {
	for run := 0; run < 5; run++ {
		f := newFixture(t)
		ctx := context.Background()

		f.submit(t, alice, ot.NewInsert(0, "abcdef"))
		f.submit(t, alice, ot.NewInsert(3, "A"))
		require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

		res, err := f.svc.SubmitOperation(ctx, SubmitRequest{
			DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(3, "B"), BaseSequence: seqPtr(1),
		})
		require.NoError(t, err)
		assert.Equal(t, "abcABdef", res.Content)
	}
}

func TestSubmitOperations_CompactsBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	typed, err := delta.Delta{
		{Kind: delta.KindInsert, Text: "H"},
		{Kind: delta.KindInsert, Text: "e"},
		{Kind: delta.KindInsert, Text: "l"},
		{Kind: delta.KindInsert, Text: "l"},
		{Kind: delta.KindInsert, Text: "o"},
	}.ToOperations()
	require.NoError(t, err)
	require.Len(t, typed, 5)

	res, err := f.svc.SubmitOperations(ctx, BatchRequest{DocumentID: "doc", UserID: alice, Operations: typed})
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, "Hello", res.Operations[0].Content)
	assert.Equal(t, uint64(1), res.Operations[0].SequenceNumber)
	assert.Equal(t, "Hello", res.Content)

	res, err = f.svc.SubmitOperations(ctx, BatchRequest{DocumentID: "doc", UserID: alice, Operations: []ot.Operation{
		ot.NewDelete(4, 1),
		ot.NewDelete(3, 1),
		ot.NewInsert(3, "p!"),
	}})
	require.NoError(t, err)
	require.Len(t, res.Operations, 2)
	assert.Equal(t, 3, res.Operations[0].Position)
	assert.Equal(t, 2, res.Operations[0].Length)
	assert.Equal(t, "Help!", res.Content)

	_, err = f.svc.SubmitOperations(ctx, BatchRequest{DocumentID: "doc", UserID: alice})
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestSubmitOperations_BatchTransformedAgainstHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, alice, ot.NewInsert(0, "Hello"))
	f.submit(t, alice, ot.NewInsert(0, ">> "))
	require.True(t, f.svc.ReleaseLock(ctx, "doc", alice))

	res, err := f.svc.SubmitOperations(ctx, BatchRequest{
		DocumentID:   "doc",
		UserID:       bob,
		BaseSequence: seqPtr(1),
		Operations:   []ot.Operation{ot.NewInsert(5, " Go"), ot.NewDelete(0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, ">> ello Go", res.Content)
}

func TestReplayEquivalence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, op := range []ot.Operation{
		ot.NewInsert(0, "The quick fox"),
		ot.NewInsert(4, "brown "),
		ot.NewDelete(10, 100),
		ot.NewRetain(3, 2),
		ot.NewInsert(1000, "!"),
		ot.NewDelete(0, 4),
		ot.NewInsert(0, "日本語 "),
		ot.NewDelete(2, 1),
	} {
		res := f.submit(t, alice, op)
		replayed, seq, err := oplog.Replay(ctx, f.log, "doc")
		require.NoError(t, err)
		assert.Equal(t, replayed, res.Content, "after %s", op)
		assert.Equal(t, res.Operation.SequenceNumber, seq)
	}
}

func TestConcurrentSubmits_LockIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const users, perUser = 8, 10

	accepted := make([]int, users+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				_, err := f.svc.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: user, Operation: ot.NewInsert(0, "x")})
				if err == nil {
					mu.Lock()
					accepted[user]++
					mu.Unlock()
					continue
				}
				assert.ErrorIs(t, err, ErrLockDenied)
			}
		}(uint64(u))
	}
	wg.Wait()

	winners := 0
	for u := 1; u <= users; u++ {
		if accepted[u] > 0 {
			winners++
			assert.Equal(t, perUser, accepted[u])
		}
	}
	assert.Equal(t, 1, winners)

	ops, err := f.log.ListSince(ctx, "doc", 0, 0)
	require.NoError(t, err)
	require.Len(t, ops, perUser)
	for i, op := range ops {
		assert.Equal(t, uint64(i+1), op.SequenceNumber)
	}
}

func TestConcurrentDocumentsProceedIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for d := 0; d < 4; d++ {
		wg.Add(1)
		go func(docID string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := f.svc.SubmitOperation(ctx, SubmitRequest{DocumentID: docID, UserID: alice, Operation: ot.NewInsert(i, "a")})
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("doc-%d", d))
	}
	wg.Wait()

	for d := 0; d < 4; d++ {
		doc, err := f.svc.GetCurrentContent(ctx, fmt.Sprintf("doc-%d", d))
		require.NoError(t, err)
		assert.Len(t, doc.Content, 20)
		assert.Equal(t, uint64(20), doc.LastSequence)
	}
}

func TestGetCurrentContent_LazyAndRebuiltWhenStale(t *testing.T) {
	ctx := context.Background()
	shared := oplog.NewMemoryLog()
	first := NewService(shared, Options{})
	second := NewService(shared, Options{})

	doc, err := second.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "", doc.Content)
	assert.Zero(t, doc.LastSequence)

	_, err = first.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(0, "Hello")})
	require.NoError(t, err)

	doc, err = second.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Content)
	assert.Equal(t, uint64(1), doc.LastSequence)
}

func TestColdStartFromSnapshot(t *testing.T) {
	ctx := context.Background()
	l := oplog.NewMemoryLog()
	for _, op := range []ot.Operation{ot.NewInsert(0, "Hello"), ot.NewInsert(5, " World"), ot.NewInsert(11, "!")} {
		_, err := l.Append(ctx, "doc", op)
		require.NoError(t, err)
	}
	docs := &memoryDocuments{docs: map[string]Document{
		"doc": {ID: "doc", Content: "HELLO WORLD", LastSequence: 2},
	}}

	svc := NewService(l, Options{Documents: docs})
	doc, err := svc.GetCurrentContent(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD!", doc.Content)
	assert.Equal(t, uint64(3), doc.LastSequence)
}

func TestSubmit_SavesSnapshot(t *testing.T) {
	docs := &memoryDocuments{}
	f := newFixture(t, func(o *Options) { o.Documents = docs })

	f.submit(t, alice, ot.NewInsert(0, "Hello"))
	f.submit(t, alice, ot.NewInsert(5, "!"))

	saved, ok, err := docs.LoadDocument(context.Background(), "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Hello!", saved.Content)
	assert.Equal(t, uint64(2), saved.LastSequence)
	assert.Equal(t, alice, saved.LastEditorID)
}

func TestOperationsSinceAndGetOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, alice, ot.NewInsert(0, "a"))
	f.submit(t, alice, ot.NewInsert(1, "b"))
	f.submit(t, alice, ot.NewInsert(2, "c"))

	ops, err := f.svc.OperationsSince(ctx, "doc", 1, 0)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "b", ops[0].Content)

	op, err := f.svc.GetOperation(ctx, "doc", 3)
	require.NoError(t, err)
	assert.Equal(t, "c", op.Content)

	_, err = f.svc.GetOperation(ctx, "doc", 9)
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestRequestReleaseHandoff(t *testing.T) {
	locks := &memoryLocks{}
	f := newFixture(t, func(o *Options) { o.LockStore = locks })
	ctx := context.Background()

	res := f.svc.RequestLock(ctx, "doc", alice)
	require.True(t, res.Granted)

	res = f.svc.RequestLock(ctx, "doc", bob)
	assert.False(t, res.Granted)
	assert.Equal(t, alice, res.CurrentEditorID)
	require.Len(t, f.events.ofType(EventLockRequested), 1)

	assert.False(t, f.svc.ReleaseLock(ctx, "doc", bob))

	l, err := f.svc.HandoffLock(ctx, "doc", alice)
	require.NoError(t, err)
	assert.Equal(t, bob, l.CurrentEditorID)
	assert.Equal(t, bob, locks.locks["doc"].CurrentEditorID)

	handoffs := f.events.ofType(EventLockHandoff)
	require.Len(t, handoffs, 1)
	assert.Equal(t, bob, handoffs[0].UserID)

	_, err = f.svc.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(0, "x")})
	assert.ErrorIs(t, err, ErrLockDenied)

	assert.True(t, f.svc.ReleaseLock(ctx, "doc", bob))
	assert.False(t, f.svc.LockStatus("doc").IsLocked())
	assert.False(t, locks.locks["doc"].IsLocked())
	require.Len(t, f.events.ofType(EventLockReleased), 1)
}

func TestHandoffLock_ExpiredRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.RequestLock(ctx, "doc", alice)
	f.svc.RequestLock(ctx, "doc", bob)

	f.clock.Advance(lock.DefaultRequestTTL + time.Second)
	_, err := f.svc.HandoffLock(ctx, "doc", alice)
	assert.ErrorIs(t, err, ErrExpiredLockRequest)
	assert.False(t, f.svc.LockStatus("doc").HasRequest())
}

func TestRestoreLocks(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	locks := &memoryLocks{locks: map[string]lock.EditLock{
		"doc": {DocumentID: "doc", CurrentEditorID: alice, LockAcquiredAt: now, LastActivityAt: now},
	}}
	svc := NewService(oplog.NewMemoryLog(), Options{LockStore: locks})
	require.NoError(t, svc.Restore(ctx))

	_, err := svc.SubmitOperation(ctx, SubmitRequest{DocumentID: "doc", UserID: bob, Operation: ot.NewInsert(0, "x")})
	assert.ErrorIs(t, err, ErrLockDenied)
}

type failingLog struct {
	oplog.Log
}

func (failingLog) Append(context.Context, string, ot.Operation) (ot.Operation, error) {
	return ot.Operation{}, errors.New("disk full")
}

func TestSubmit_AppendFailureIsReported(t *testing.T) {
	svc := NewService(failingLog{Log: oplog.NewMemoryLog()}, Options{})
	_, err := svc.SubmitOperation(context.Background(), SubmitRequest{DocumentID: "doc", UserID: alice, Operation: ot.NewInsert(0, "x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	doc, err := svc.GetCurrentContent(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, "", doc.Content)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "LOCK_DENIED", ErrorCode(&LockDeniedError{DocumentID: "doc", CurrentEditorID: alice}))
	assert.Equal(t, "INVALID_OPERATION", ErrorCode(fmt.Errorf("wrapped: %w", ErrInvalidOperation)))
	assert.Equal(t, "STALE_REFERENCE", ErrorCode(ErrStaleReference))
	assert.Equal(t, "EXPIRED_LOCK_REQUEST", ErrorCode(ErrExpiredLockRequest))
	assert.Equal(t, "NOT_LOCK_HOLDER", ErrorCode(ErrNotLockHolder))
	assert.Equal(t, "NO_PENDING_REQUEST", ErrorCode(ErrNoPendingRequest))
	assert.Equal(t, "INTERNAL", ErrorCode(errors.New("disk full")))
}
