// Package ot implements the operation model and the transform rules used to
// reconcile concurrent edits of a plain-text document.
package ot

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

type Type string

const (
	Insert Type = "INSERT"
	Delete Type = "DELETE"
	Retain Type = "RETAIN"
)

var ErrInvalidOperation = errors.New("INVALID_OPERATION")

// Operation is one atomic edit. Position and Length count characters (runes),
// not bytes. ID, SequenceNumber and CreatedAt are filled in by the log.
type Operation struct {
	ID             string    `json:"id,omitempty"`
	DocumentID     string    `json:"documentId,omitempty"`
	AuthorID       uint64    `json:"authorId,omitempty"`
	Type           Type      `json:"type"`
	Position       int       `json:"position"`
	Content        string    `json:"content,omitempty"`
	Length         int       `json:"length,omitempty"`
	SequenceNumber uint64    `json:"sequenceNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

func NewInsert(position int, content string) Operation {
	return Operation{Type: Insert, Position: position, Content: content}
}

func NewDelete(position, length int) Operation {
	return Operation{Type: Delete, Position: position, Length: length}
}

func NewRetain(position, length int) Operation {
	return Operation{Type: Retain, Position: position, Length: length}
}

func (t Type) Valid() bool {
	switch t {
	case Insert, Delete, Retain:
		return true
	}
	return false
}

// Validate rejects operations that can never be applied. Out-of-range
// positions and lengths are not errors here; Apply clamps them.
func (o Operation) Validate() error {
	if !o.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, o.Type)
	}
	if o.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidOperation, o.Position)
	}
	if o.Type != Insert && o.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInvalidOperation, o.Length)
	}
	return nil
}

// Span is the number of characters the operation inserts, deletes or retains.
func (o Operation) Span() int {
	if o.Type == Insert {
		return utf8.RuneCountInString(o.Content)
	}
	return o.Length
}

// IsNoop reports whether applying the operation leaves any content unchanged.
func (o Operation) IsNoop() bool {
	switch o.Type {
	case Insert:
		return o.Content == ""
	case Delete:
		return o.Length <= 0
	}
	return true
}

func (o Operation) String() string {
	switch o.Type {
	case Insert:
		return fmt.Sprintf("INSERT@%d %q", o.Position, o.Content)
	default:
		return fmt.Sprintf("%s@%d+%d", o.Type, o.Position, o.Length)
	}
}
