package collab

import (
	"errors"
	"fmt"

	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/ot"
)

var (
	ErrLockDenied         = errors.New("LOCK_DENIED")
	ErrStaleReference     = errors.New("STALE_REFERENCE")
	ErrInvalidOperation   = ot.ErrInvalidOperation
	ErrExpiredLockRequest = lock.ErrExpiredLockRequest
	ErrNotLockHolder      = lock.ErrNotHolder
	ErrNoPendingRequest   = lock.ErrNoPendingRequest
)

// LockDeniedError is returned when another user holds the edit lock.
// errors.Is(err, ErrLockDenied) matches it.
type LockDeniedError struct {
	DocumentID      string
	CurrentEditorID uint64
}

func (e *LockDeniedError) Error() string {
	return fmt.Sprintf("%s: document %s is being edited by user %d", ErrLockDenied, e.DocumentID, e.CurrentEditorID)
}

func (e *LockDeniedError) Is(target error) bool { return target == ErrLockDenied }

// ErrorCode maps an error returned by Service to the code clients see.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLockDenied):
		return ErrLockDenied.Error()
	case errors.Is(err, ErrInvalidOperation):
		return ErrInvalidOperation.Error()
	case errors.Is(err, ErrStaleReference):
		return ErrStaleReference.Error()
	case errors.Is(err, ErrExpiredLockRequest):
		return ErrExpiredLockRequest.Error()
	case errors.Is(err, ErrNotLockHolder):
		return ErrNotLockHolder.Error()
	case errors.Is(err, ErrNoPendingRequest):
		return ErrNoPendingRequest.Error()
	}
	return "INTERNAL"
}
