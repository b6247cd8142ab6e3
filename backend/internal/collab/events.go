package collab

import (
	"context"
	"errors"
	"time"

	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/ot"
	"sharednote/backend/internal/presence"
)

type EventType string

const (
	EventOperation     EventType = "OPERATION"
	EventLockAcquired  EventType = "LOCK_ACQUIRED"
	EventLockReleased  EventType = "LOCK_RELEASED"
	EventLockExpired   EventType = "LOCK_EXPIRED"
	EventLockRequested EventType = "LOCK_REQUESTED"
	EventLockHandoff   EventType = "LOCK_HANDOFF"
	EventPresence      EventType = "PRESENCE"
)

// Event is what subscribers of a document receive. Operation events carry
// the logged operation and the content right after it; lock events carry the
// lock record and the user the change is about.
type Event struct {
	Type           EventType           `json:"type"`
	DocumentID     string              `json:"documentId"`
	Operation      *ot.Operation       `json:"operation,omitempty"`
	UpdatedContent string              `json:"updatedContent,omitempty"`
	AuthorID       uint64              `json:"authorId,omitempty"`
	UserID         uint64              `json:"userId,omitempty"`
	Lock           *lock.EditLock      `json:"lock,omitempty"`
	Members        []presence.Presence `json:"members,omitempty"`
	At             time.Time           `json:"at"`
}

// Notifier delivers events to whoever subscribes to a document. Publish is
// called while the document is locked and must not block on the network.
type Notifier interface {
	Publish(ctx context.Context, evt Event) error
}

// Notifiers fans an event out to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
